// Package audio handles the recorded-answer containers the command-line
// interview client uploads for transcription.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const DefaultSampleRate = 16000

type wavHeader struct {
	RIFF          [4]byte
	ChunkSize     uint32
	WAVE          [4]byte
	FmtID         [4]byte
	FmtSize       uint32
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	DataID        [4]byte
	DataSize      uint32
}

// EncodeWAV wraps raw mono PCM16LE samples in a WAV container.
func EncodeWAV(pcm []byte, sampleRate int) []byte {
	var buf bytes.Buffer
	_ = WriteWAV(&buf, pcm, sampleRate)
	return buf.Bytes()
}

// WriteWAV writes raw mono PCM16LE samples to out as a WAV stream.
func WriteWAV(out io.Writer, pcm []byte, sampleRate int) error {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	h := wavHeader{
		RIFF:          [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + uint32(len(pcm)),
		WAVE:          [4]byte{'W', 'A', 'V', 'E'},
		FmtID:         [4]byte{'f', 'm', 't', ' '},
		FmtSize:       16,
		AudioFormat:   1,
		Channels:      1,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * 2),
		BlockAlign:    2,
		BitsPerSample: 16,
		DataID:        [4]byte{'d', 'a', 't', 'a'},
		DataSize:      uint32(len(pcm)),
	}
	if err := binary.Write(out, binary.LittleEndian, h); err != nil {
		return err
	}
	_, err := out.Write(pcm)
	return err
}

var ErrNotWAV = errors.New("not a RIFF/WAVE stream")

// DecodeWAV returns the PCM16 samples of a WAV file, downmixed to mono, and
// its sample rate. Only uncompressed 16-bit PCM is accepted.
func DecodeWAV(data []byte) ([]byte, int, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, ErrNotWAV
	}

	var (
		haveFmt  bool
		format   uint16
		channels uint16
		rate     int
		bits     uint16
		samples  []byte
	)
	for off := 12; off+8 <= len(data); {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		off += 8
		if size < 0 || off+size > len(data) {
			return nil, 0, fmt.Errorf("wav chunk %q overruns file", id)
		}
		body := data[off : off+size]
		switch id {
		case "fmt ":
			if len(body) < 16 {
				return nil, 0, fmt.Errorf("wav fmt chunk too short")
			}
			format = binary.LittleEndian.Uint16(body[0:2])
			channels = binary.LittleEndian.Uint16(body[2:4])
			rate = int(binary.LittleEndian.Uint32(body[4:8]))
			bits = binary.LittleEndian.Uint16(body[14:16])
			haveFmt = true
		case "data":
			samples = body
		}
		// Chunks are word aligned.
		off += size + size%2
	}

	switch {
	case !haveFmt:
		return nil, 0, fmt.Errorf("wav fmt chunk missing")
	case len(samples) == 0:
		return nil, 0, fmt.Errorf("wav data chunk missing")
	case format != 1:
		return nil, 0, fmt.Errorf("unsupported wav audio format %d", format)
	case bits != 16:
		return nil, 0, fmt.Errorf("unsupported wav bits per sample %d", bits)
	case channels == 0:
		return nil, 0, fmt.Errorf("wav declares zero channels")
	}
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	return downmix(samples, int(channels)), rate, nil
}

func downmix(samples []byte, channels int) []byte {
	if channels == 1 {
		out := make([]byte, len(samples)&^1)
		copy(out, samples)
		return out
	}
	frame := channels * 2
	frames := len(samples) / frame
	out := make([]byte, frames*2)
	for i := 0; i < frames; i++ {
		sum := 0
		for ch := 0; ch < channels; ch++ {
			at := i*frame + ch*2
			sum += int(int16(binary.LittleEndian.Uint16(samples[at : at+2])))
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(sum/channels)))
	}
	return out
}

// Duration is the playback length of mono PCM16 samples at sampleRate.
func Duration(pcm []byte, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(len(pcm)/2) / float64(sampleRate)
}
