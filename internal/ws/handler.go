package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/wavesync/internal/coord"
	"github.com/DoyleJ11/wavesync/internal/resource"
	"github.com/DoyleJ11/wavesync/internal/types"
	wire "github.com/DoyleJ11/wavesync/pkg/types"
)

type Options struct {
	// OriginPatterns are host patterns allowed in addition to same-origin.
	OriginPatterns []string
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	Logger         *zap.Logger
}

// Submitter is the part of the coordinator a connection needs.
type Submitter interface {
	Submit(ctx context.Context, m coord.Msg) error
}

func Handler(svc Submitter, tr *Transport, opts Options) http.HandlerFunc {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 3 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	log := opts.Logger

	return func(w http.ResponseWriter, r *http.Request) {
		username := r.URL.Query().Get("username")

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			log.Warn("websocket accept failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
			return
		}
		defer conn.CloseNow()

		connID := uuid.NewString()
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		out := tr.Attach(connID, cancel)
		defer tr.Detach(connID)

		if err := svc.Submit(ctx, coord.Connect{ConnID: connID, Username: username}); err != nil {
			log.Warn("coordinator unavailable", zap.String("conn_id", connID), zap.Error(err))
			conn.Close(websocket.StatusTryAgainLater, "server shutting down")
			return
		}
		defer func() {
			// the request context is gone by now; give the disconnect its own deadline
			dctx, dcancel := context.WithTimeout(context.Background(), opts.WriteTimeout)
			defer dcancel()
			if err := svc.Submit(dctx, coord.Disconnect{ConnID: connID}); err != nil && !errors.Is(err, coord.ErrStopped) {
				log.Warn("disconnect not delivered", zap.String("conn_id", connID), zap.Error(err))
			}
		}()

		clog := log.With(zap.String("conn_id", connID))
		go writeLoop(ctx, cancel, conn, out, opts, clog)

		// Reader loop
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					clog.Debug("client closed connection")
				default:
					clog.Debug("read ended", zap.Error(err))
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				_ = tr.Send(ctx, connID, wire.ServerMessage{
					Type: wire.EvtError,
					Data: wire.ErrorPayload{Code: wire.ErrCodeBadJSON, Message: "bad json"},
				})
				continue
			}

			if err := svc.Submit(ctx, toCoordMsg(connID, cm)); err != nil {
				clog.Debug("submit failed", zap.Error(err))
				return
			}
		}
	}
}

func writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, out <-chan wire.ServerMessage, opts Options, log *zap.Logger) {
	defer cancel()

	var ping <-chan time.Time
	if opts.PingInterval > 0 {
		t := time.NewTicker(opts.PingInterval)
		defer t.Stop()
		ping = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return

		case msg := <-out:
			payload, err := json.Marshal(msg)
			if err != nil {
				log.Error("encode outbound message", zap.String("type", msg.Type), zap.Error(err))
				continue
			}
			wctx, wcancel := context.WithTimeout(ctx, opts.WriteTimeout)
			err = conn.Write(wctx, websocket.MessageText, payload)
			wcancel()
			if err != nil {
				log.Debug("write failed", zap.Error(err))
				return
			}

		case <-ping:
			pctx, pcancel := context.WithTimeout(ctx, opts.WriteTimeout)
			err := conn.Ping(pctx)
			pcancel()
			if err != nil {
				log.Debug("ping failed", zap.Error(err))
				return
			}
		}
	}
}

func toCoordMsg(connID string, m types.ClientMessage) coord.Msg {
	switch m.Type {
	case types.TypeJoinTerminal:
		return coord.JoinTerminal{ConnID: connID, TerminalID: m.TerminalID}
	case types.TypeLeaveTerminal:
		return coord.LeaveTerminal{ConnID: connID, TerminalID: m.TerminalID}
	case types.TypeTerminalCreated, types.TypeTerminalRenamed, types.TypeTerminalClosed:
		return coord.TerminalLifecycle{ConnID: connID, Event: m.Type, TerminalID: m.TerminalID, Name: m.Name, Port: m.Port}
	case types.TypeVariableUpdated:
		return coord.VariableUpdated{ConnID: connID, TerminalID: m.TerminalID, Name: m.Name, Value: m.Value, Action: m.Action}
	case types.TypePlaybookUpdated:
		return coord.PlaybookUpdated{ConnID: connID, TerminalID: m.TerminalID, Name: m.Name, Action: m.Action}
	case types.TypeNotesUpdated:
		return coord.NotesUpdated{ConnID: connID, TerminalID: m.TerminalID, Content: m.Content}
	case types.TypeEditingStarted, types.TypeEditingStopped:
		key, err := resource.Parse(m.ResourceID)
		if err != nil {
			return coord.Invalid{ConnID: connID, Event: m.Type, Code: wire.ErrCodeBadResourceID, Message: err.Error()}
		}
		if m.Type == types.TypeEditingStarted {
			return coord.EditingStarted{ConnID: connID, Key: key}
		}
		return coord.EditingStopped{ConnID: connID, Key: key}
	default:
		return coord.Invalid{ConnID: connID, Event: m.Type, Code: wire.ErrCodeUnknownType, Message: "unknown message type"}
	}
}
