package server

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/aristath/horizon/internal/events"
)

// EventsHandler streams run lifecycle events over a websocket.
type EventsHandler struct {
	bus *events.Bus
	log zerolog.Logger
}

// NewEventsHandler creates the events websocket handler.
func NewEventsHandler(bus *events.Bus, log zerolog.Logger) *EventsHandler {
	return &EventsHandler{
		bus: bus,
		log: log.With().Str("handler", "events_ws").Logger(),
	}
}

// writeTimeout bounds a single event write to a client.
const writeTimeout = 5 * time.Second

// ServeWS handles GET /api/events/ws. Each connection gets its own bus
// subscription; events published while the client is connected are forwarded
// as JSON messages.
func (h *EventsHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ch, unsubscribe := h.bus.Subscribe()
	defer unsubscribe()

	h.log.Debug().Str("remote", r.RemoteAddr).Msg("Events subscriber connected")

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(writeCtx, conn, event)
			cancel()
			if err != nil {
				h.log.Debug().Err(err).Msg("Events subscriber disconnected")
				return
			}
		}
	}
}
