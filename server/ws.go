package server

import (
	"context"
	"encoding/json"
	"net/http"

	"vizdirector/logger"
)

// wsHandler upgrades a host page and attaches it to the hub.
func (s *Server) wsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", logger.ErrorField(err))
		return
	}
	// the request context ends with the handler; the link outlives it
	c := s.hub.Attach(context.Background(), conn, hostLink{s})

	hello, err := NewMessage(MsgTypeHello, map[string]interface{}{
		"client": c.ID,
		"state":  s.engine.Snapshot(),
	})
	if err == nil {
		c.Send(hello)
	}
}

// hostLink handles messages from one host connection.
type hostLink struct{ s *Server }

func (h hostLink) HandleBinary(_ context.Context, c *Client, data []byte) {
	if len(data) < 1 {
		return
	}
	kind, payload := data[0], data[1:]

	if kind == KindVideo {
		if h.s.frames == nil || !h.s.frames.PushFrame(payload) {
			logger.Debug("video frame dropped", logger.String("client", c.ID), logger.Int("bytes", len(payload)))
		}
		return
	}
	if !h.s.feed.PutAnalysis(kind, payload) {
		logger.Warn("unknown analysis kind", logger.String("client", c.ID), logger.Int("kind", int(kind)))
		return
	}
	h.s.claimHost(c)
}

func (h hostLink) HandleText(ctx context.Context, c *Client, msg *WSMessage) {
	switch msg.Type {
	case MsgTypePlayback:
		var p PlaybackReport
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			h.reply(c, "", err)
			return
		}
		h.s.feed.PutPlayback(p)
		h.s.claimHost(c)

	case MsgTypeCommand:
		var cmd Command
		if err := json.Unmarshal(msg.Data, &cmd); err != nil {
			h.reply(c, "", err)
			return
		}
		if err := h.s.dispatch(ctx, cmd); err != nil {
			h.reply(c, cmd.Op, err)
		}

	default:
		logger.Warn("unhandled message type", logger.String("client", c.ID), logger.String("type", string(msg.Type)))
	}
}

func (h hostLink) Disconnected(c *Client) {
	h.s.hostMu.Lock()
	defer h.s.hostMu.Unlock()
	if h.s.hostID == c.ID {
		h.s.hostID = ""
		h.s.feed.Reset()
		logger.Info("analysis host left", logger.String("client", c.ID))
	}
}

func (h hostLink) reply(c *Client, op string, err error) {
	msg, merr := NewMessage(MsgTypeError, map[string]interface{}{
		"op":     op,
		"error":  err.Error(),
		"status": statusFor(err),
	})
	if merr == nil {
		c.Send(msg)
	}
}

// claimHost records c as the connection feeding analysis.
func (s *Server) claimHost(c *Client) {
	s.hostMu.Lock()
	defer s.hostMu.Unlock()
	if s.hostID == c.ID {
		return
	}
	if s.hostID != "" {
		logger.Info("analysis host replaced", logger.String("previous", s.hostID), logger.String("client", c.ID))
	}
	s.hostID = c.ID
}
