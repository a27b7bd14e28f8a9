package frame

import (
	"errors"

	"github.com/nhle/hrnotify/internal/logging"
	"github.com/nhle/hrnotify/internal/metrics"
)

// Handler receives routed frames. Implementations must make every
// method safe to call twice with the same frame.
type Handler interface {
	OnChatMessage(ChatMessage)
	OnActivity(Activity)
	OnStatusUpdate(StatusUpdate)
	OnError(Error)
}

// Router parses inbound payloads and dispatches them to a Handler.
type Router struct {
	h Handler
}

// NewRouter returns a router dispatching to h.
func NewRouter(h Handler) *Router {
	return &Router{h: h}
}

// Route parses data and dispatches it. Frames that cannot be parsed or
// routed are dropped and counted; the returned error is informational.
func (r *Router) Route(data []byte) error {
	f, err := Parse(data)
	if err != nil {
		reason := "malformed"
		if errors.Is(err, ErrUnroutable) {
			reason = "unroutable"
		}
		metrics.FramesDropped.WithLabelValues(reason).Inc()
		logging.Debug().Err(err).Int("bytes", len(data)).Msg("dropping frame")
		return err
	}

	metrics.FramesReceived.WithLabelValues(string(f.Kind())).Inc()
	r.Dispatch(f)
	return nil
}

// Dispatch hands an already parsed frame to the handler.
func (r *Router) Dispatch(f Frame) {
	switch v := f.(type) {
	case ChatMessage:
		r.h.OnChatMessage(v)
	case Activity:
		r.h.OnActivity(v)
	case StatusUpdate:
		r.h.OnStatusUpdate(v)
	case Error:
		r.h.OnError(v)
	}
}
