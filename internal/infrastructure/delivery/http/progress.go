package httprouter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"tubedl/internal/consts"
	"tubedl/internal/entity"
	"tubedl/internal/progress"

	"github.com/gorilla/websocket"
)

const wsWriteWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// ProgressSSE streams snapshots as server-sent events, one `data: <json>`
// event each, and ends the response after the terminal one.
func (ro *Router) ProgressSSE(w http.ResponseWriter, r *http.Request) {
	s := slotFrom(r)
	log := ro.log.With(slog.String("handler", "ProgressSSE"), s.attrs())
	ctx := r.Context()

	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	if err := rc.Flush(); err != nil {
		log.ErrorContext(ctx, consts.RespStreamingUnsupported, slog.Any("error", err))
		w.Header().Del("Content-Type")
		http.Error(w, consts.RespStreamingUnsupported, http.StatusInternalServerError)

		return
	}

	key := progress.Key(s.contentID, s.variantID, s.kind)

	err := ro.svc.SSE.Run(ctx, key, func(rec entity.ProgressRecord) error {
		data, err := json.Marshal(rec.Event())
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}

		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return fmt.Errorf("write event: %w", err)
		}

		return rc.Flush()
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.WarnContext(ctx, "progress stream ended", slog.Any("error", err))
	}
}

// ProgressWebSocket streams the same snapshots as JSON text messages and
// closes normally after the terminal one.
func (ro *Router) ProgressWebSocket(w http.ResponseWriter, r *http.Request) {
	s := slotFrom(r)
	log := ro.log.With(slog.String("handler", "ProgressWebSocket"), s.attrs())

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the client
		log.WarnContext(r.Context(), "websocket upgrade", slog.Any("error", err))

		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// the read side only detects the peer going away
	go func() {
		defer cancel()

		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	key := progress.Key(s.contentID, s.variantID, s.kind)

	err = ro.svc.WebSocket.Run(ctx, key, func(rec entity.ProgressRecord) error {
		if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}

		return conn.WriteJSON(rec.Event())
	})
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.WarnContext(ctx, "progress stream ended", slog.Any("error", err))
		}

		return
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done")
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait)); err != nil {
		log.DebugContext(ctx, "websocket close", slog.Any("error", err))
	}
}
