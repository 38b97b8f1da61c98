package wsserver

import (
	"artflow-sync/internal/hub"
	"artflow-sync/internal/protocol"

	"github.com/sirupsen/logrus"
)

// Handler validates incoming frames and relays operation envelopes to the
// room. Malformed frames are dropped with a warning; the init handshake is
// answered with connected. Log appends stay on the producer side, so the
// relay never duplicates entries.
type Handler struct {
	hub   *hub.Hub
	codec *protocol.Codec

	log *logrus.Entry
}

func NewHandler(h *hub.Hub) *Handler {
	return &Handler{
		hub:   h,
		codec: protocol.NewCodec(),
		log:   logrus.WithField("component", "wsserver"),
	}
}

func (h *Handler) Handle(conn hub.Connection, data []byte) {
	msg, err := h.codec.Decode(data)
	if err != nil {
		h.log.Warnf("dropping frame from %s: %v", conn.ID(), err)
		return
	}

	switch msg.Type {
	case protocol.TypeInit:
		conn.Send(h.codec.EncodeConnected())
		return
	case protocol.TypeConnected:
		return
	}

	// Operation envelope: relay verbatim so clients see the exact frame
	// the producer built.
	h.hub.Broadcast(conn, data)
}
