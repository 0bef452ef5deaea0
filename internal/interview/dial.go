package interview

import (
	"context"

	"github.com/mitchellbreust/mockwise/internal/credential"
	"github.com/mitchellbreust/mockwise/internal/signaling"
	"github.com/mitchellbreust/mockwise/internal/transport"
)

// WebRTC dials the realtime agent over a peer connection. Inbound audio is
// handed to sink.
func WebRTC(neg *signaling.Negotiator, cred credential.Credential, sink signaling.AudioSink) DialFunc {
	return func(ctx context.Context, ev Events) (Link, error) {
		conn, err := neg.Negotiate(ctx, cred, signaling.Handlers{
			OnOpen:    ev.OnOpen,
			OnMessage: ev.OnMessage,
			OnClose:   ev.OnClose,
			Audio:     sink,
		})
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

// WebSocket dials the text-only websocket endpoint of the realtime agent.
func WebSocket(cfg transport.Config, cred credential.Credential) DialFunc {
	return func(ctx context.Context, ev Events) (Link, error) {
		conn, err := transport.Dial(ctx, cfg, cred, transport.Handlers{
			OnOpen:    ev.OnOpen,
			OnMessage: ev.OnMessage,
			OnClose:   ev.OnClose,
		})
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}
