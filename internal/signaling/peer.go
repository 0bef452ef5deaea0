package signaling

import (
	"context"
	"errors"

	"github.com/pion/webrtc/v4"
)

// ChannelLabel is the data channel the realtime agent exchanges events on.
const ChannelLabel = "oai-events"

// Channel is an ordered, reliable text message channel.
type Channel interface {
	Label() string
	SendText(text string) error
	OnOpen(fn func())
	OnMessage(fn func(data []byte))
	OnClose(fn func())
	Close() error
}

// AudioTrack is an inbound remote audio stream.
type AudioTrack interface {
	ID() string
	Codec() string
	Read(b []byte) (int, error)
}

// AudioSink receives inbound audio as soon as a track arrives.
type AudioSink interface {
	Attach(track AudioTrack)
}

// Peer is the local end of a peer connection.
type Peer interface {
	CreateChannel(label string) (Channel, error)
	AddAudioReceiver() error
	// CreateOffer returns the local description once candidate gathering
	// has finished.
	CreateOffer(ctx context.Context) (string, error)
	ApplyAnswer(sdp string) error
	OnTrack(fn func(AudioTrack))
	Close() error
}

// PeerFactory builds a Peer using the given NAT traversal servers.
type PeerFactory func(iceURLs []string) (Peer, error)

type pionPeer struct {
	pc *webrtc.PeerConnection
}

// NewPionPeer is the default PeerFactory.
func NewPionPeer(iceURLs []string) (Peer, error) {
	if len(iceURLs) == 0 {
		return nil, errors.New("at least one ice server url is required")
	}
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: iceURLs}},
	})
	if err != nil {
		return nil, err
	}
	return &pionPeer{pc: pc}, nil
}

func (p *pionPeer) CreateChannel(label string) (Channel, error) {
	ordered := true
	dc, err := p.pc.CreateDataChannel(label, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return nil, err
	}
	return &pionChannel{dc: dc}, nil
}

func (p *pionPeer) AddAudioReceiver() error {
	_, err := p.pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	})
	return err
}

func (p *pionPeer) CreateOffer(ctx context.Context) (string, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return "", err
	}
	gathered := webrtc.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return "", err
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	local := p.pc.LocalDescription()
	if local == nil {
		return "", errors.New("local description unavailable after gathering")
	}
	return local.SDP, nil
}

func (p *pionPeer) ApplyAnswer(sdp string) error {
	return p.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  sdp,
	})
}

func (p *pionPeer) OnTrack(fn func(AudioTrack)) {
	p.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if track.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		fn(pionTrack{track: track})
	})
}

func (p *pionPeer) Close() error {
	return p.pc.Close()
}

type pionChannel struct {
	dc *webrtc.DataChannel
}

func (c *pionChannel) Label() string              { return c.dc.Label() }
func (c *pionChannel) SendText(text string) error { return c.dc.SendText(text) }
func (c *pionChannel) OnOpen(fn func())           { c.dc.OnOpen(fn) }
func (c *pionChannel) OnClose(fn func())          { c.dc.OnClose(fn) }
func (c *pionChannel) Close() error               { return c.dc.Close() }

func (c *pionChannel) OnMessage(fn func(data []byte)) {
	c.dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		fn(msg.Data)
	})
}

type pionTrack struct {
	track *webrtc.TrackRemote
}

func (t pionTrack) ID() string    { return t.track.ID() }
func (t pionTrack) Codec() string { return t.track.Codec().MimeType }

func (t pionTrack) Read(b []byte) (int, error) {
	n, _, err := t.track.Read(b)
	return n, err
}
