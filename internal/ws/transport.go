package ws

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/DoyleJ11/wavesync/internal/router"
	"github.com/DoyleJ11/wavesync/pkg/types"
)

// ErrOutboxFull means the client stopped reading; its connection is being torn down.
var ErrOutboxFull = errors.New("client outbox full")

type client struct {
	out    chan types.ServerMessage
	cancel context.CancelFunc
}

// Transport maps connection ids to per-connection outboxes drained by each
// connection's writer goroutine. It implements router.Transport.
type Transport struct {
	mu         sync.RWMutex
	clients    map[string]*client
	outboxSize int
	log        *zap.Logger
}

func NewTransport(outboxSize int, log *zap.Logger) *Transport {
	if outboxSize <= 0 {
		outboxSize = 64
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Transport{
		clients:    make(map[string]*client),
		outboxSize: outboxSize,
		log:        log,
	}
}

// Attach registers id and returns the outbox its writer should drain. cancel
// is called if the client falls too far behind.
func (t *Transport) Attach(id string, cancel context.CancelFunc) <-chan types.ServerMessage {
	c := &client{out: make(chan types.ServerMessage, t.outboxSize), cancel: cancel}
	t.mu.Lock()
	t.clients[id] = c
	t.mu.Unlock()
	return c.out
}

func (t *Transport) Detach(id string) {
	t.mu.Lock()
	delete(t.clients, id)
	t.mu.Unlock()
}

// Send never blocks. A full outbox drops the client rather than stalling
// every other recipient behind it.
func (t *Transport) Send(ctx context.Context, id string, msg types.ServerMessage) error {
	t.mu.RLock()
	c, ok := t.clients[id]
	t.mu.RUnlock()
	if !ok {
		return router.ErrUnknownConnection
	}

	select {
	case c.out <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		t.log.Warn("dropping slow client", zap.String("conn_id", id), zap.String("type", msg.Type))
		c.cancel()
		return ErrOutboxFull
	}
}

func (t *Transport) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.clients)
}
