// Package coord is the connection-lifecycle state machine. A single goroutine
// owns every mutation of the presence registry and the lock table, so events
// are applied one at a time in arrival order.
package coord

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/wavesync/internal/locks"
	"github.com/DoyleJ11/wavesync/internal/metrics"
	"github.com/DoyleJ11/wavesync/internal/presence"
	"github.com/DoyleJ11/wavesync/internal/resource"
	"github.com/DoyleJ11/wavesync/internal/router"
	"github.com/DoyleJ11/wavesync/pkg/types"
)

var ErrStopped = errors.New("coordinator stopped")

type Options struct {
	InboxSize int
	// LockTTL expires locks not refreshed for this long. Zero disables expiry.
	LockTTL       time.Duration
	SweepInterval time.Duration
	Logger        *zap.Logger
}

type Service struct {
	inbox  chan Msg
	reg    *presence.Registry
	locks  *locks.Table
	router *router.Router
	log    *zap.Logger
	now    func() time.Time

	lockTTL    time.Duration
	sweepEvery time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewService(parent context.Context, reg *presence.Registry, tbl *locks.Table, rt *router.Router, opts Options) *Service {
	if opts.InboxSize <= 0 {
		opts.InboxSize = 256
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(parent)

	s := &Service{
		inbox:      make(chan Msg, opts.InboxSize),
		reg:        reg,
		locks:      tbl,
		router:     rt,
		log:        opts.Logger,
		now:        time.Now,
		lockTTL:    opts.LockTTL,
		sweepEvery: opts.SweepInterval,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	go s.loop()
	return s
}

// Inbox exposes the loop's inbox so tests or the transport can send messages.
func (s *Service) Inbox() chan<- Msg { return s.inbox }

// Submit enqueues m, giving up when ctx ends or the loop has stopped.
func (s *Service) Submit(ctx context.Context, m Msg) error {
	select {
	case <-s.done:
		return ErrStopped
	default:
	}
	select {
	case s.inbox <- m:
		return nil
	case <-s.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the loop has exited.
func (s *Service) Done() <-chan struct{} { return s.done }

// Stop asks the loop to exit and waits for it.
func (s *Service) Stop() {
	s.cancel()
	<-s.done
}

func (s *Service) loop() {
	defer close(s.done)

	var sweep <-chan time.Time
	if s.lockTTL > 0 {
		t := time.NewTicker(s.sweepEvery)
		defer t.Stop()
		sweep = t.C
	}

	for {
		select {
		case <-s.ctx.Done():
			s.log.Info("coordinator shutting down")
			return

		case <-sweep:
			s.handleSweep()

		case m := <-s.inbox:
			if _, ok := m.(Shutdown); ok {
				s.cancel()
				continue
			}
			s.handle(m)
		}
	}
}

func (s *Service) handle(m Msg) {
	metrics.Events.WithLabelValues(m.eventName()).Inc()

	switch msg := m.(type) {
	case Connect:
		s.handleConnect(msg)
	case Disconnect:
		s.handleDisconnect(msg)
	case JoinTerminal:
		s.handleJoin(msg)
	case LeaveTerminal:
		s.handleLeave(msg)
	case TerminalLifecycle:
		s.handleTerminalLifecycle(msg)
	case VariableUpdated:
		s.handleVariableUpdated(msg)
	case PlaybookUpdated:
		s.handlePlaybookUpdated(msg)
	case NotesUpdated:
		s.handleNotesUpdated(msg)
	case EditingStarted:
		s.handleEditingStarted(msg)
	case EditingStopped:
		s.handleEditingStopped(msg)
	case ForceUnlock:
		s.handleForceUnlock(msg)
	case Invalid:
		s.reject(msg.ConnID, msg.Event, msg.Code, msg.Message)
	case Sweep:
		s.handleSweep()
	case GetState:
		// test-only: reflect internal state without data races
		msg.Reply <- View{Clients: s.reg.Count(), Locks: s.locks.Len()}
	}

	metrics.Connections.Set(float64(s.reg.Count()))
	metrics.LocksHeld.Set(float64(s.locks.Len()))
}

// Clients is the synchronous presence listing. It reads a registry snapshot
// and never waits on the loop.
func (s *Service) Clients() []types.Client {
	return toClients(s.reg.All())
}

// TerminalClients lists the connections currently in terminal.
func (s *Service) TerminalClients(terminal string) []types.Client {
	return toClients(s.reg.ConnectionsIn(terminal))
}

// Locks lists every held lock.
func (s *Service) Locks() []types.Lock {
	held := s.locks.All()
	out := make([]types.Lock, 0, len(held))
	for _, l := range held {
		out = append(out, types.Lock{
			ResourceID: l.Key.String(),
			Kind:       string(l.Key.Kind),
			TerminalID: l.Key.Scope.Terminal,
			Name:       l.Key.Name,
			LockInfo:   lockInfo(l),
		})
	}
	return out
}

// ForceUnlock clears key's lock through the loop and reports whether one was held.
func (s *Service) ForceUnlock(ctx context.Context, key resource.Key) (bool, error) {
	reply := make(chan bool, 1)
	if err := s.Submit(ctx, ForceUnlock{Key: key, Reply: reply}); err != nil {
		return false, err
	}
	select {
	case ok := <-reply:
		return ok, nil
	case <-s.done:
		return false, ErrStopped
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (s *Service) broadcast(audience []string, event string, data any) {
	s.router.Deliver(s.ctx, audience, types.ServerMessage{Type: event, Data: data})
}

func (s *Service) reply(connID, event string, data any) {
	_ = s.router.Reply(s.ctx, connID, types.ServerMessage{Type: event, Data: data})
}

func (s *Service) reject(connID, event, code, message string) {
	s.log.Warn("request rejected",
		zap.String("conn_id", connID),
		zap.String("event", event),
		zap.String("code", code),
		zap.String("reason", message))
	s.reply(connID, types.EvtError, types.ErrorPayload{Code: code, Message: message, Event: event})
}

func (s *Service) stamp() int64 { return s.now().UnixMilli() }

func toClients(conns []presence.Connection) []types.Client {
	out := make([]types.Client, 0, len(conns))
	for _, c := range conns {
		out = append(out, types.Client{
			ID:             c.ID,
			Username:       c.Username,
			ActiveTerminal: c.Scope,
			ConnectedAt:    c.ConnectedAt.UnixMilli(),
		})
	}
	return out
}

func lockInfo(l locks.Lock) types.LockInfo {
	return types.LockInfo{
		ClientID:   l.Holder,
		Username:   l.Username,
		AcquiredAt: l.AcquiredAt.UnixMilli(),
	}
}
