// Package router computes who should receive a notification and fans it out.
// It reads the presence registry but never mutates it.
package router

import (
	"context"
	"errors"
	"slices"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/wavesync/internal/metrics"
	"github.com/DoyleJ11/wavesync/internal/presence"
	"github.com/DoyleJ11/wavesync/internal/resource"
	"github.com/DoyleJ11/wavesync/pkg/types"
)

var ErrUnknownConnection = errors.New("unknown connection")

// Transport pushes one message to one connection. Implementations must be
// safe for concurrent use and should honour ctx for their deadline.
type Transport interface {
	Send(ctx context.Context, connID string, msg types.ServerMessage) error
}

type Options struct {
	// Timeout bounds each per-recipient Send.
	Timeout time.Duration
	// Concurrency caps simultaneous Sends for one Deliver call.
	Concurrency int
	Logger      *zap.Logger
}

type Router struct {
	reg         *presence.Registry
	tr          Transport
	timeout     time.Duration
	concurrency int
	log         *zap.Logger
}

func New(reg *presence.Registry, tr Transport, opts Options) *Router {
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 16
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Router{
		reg:         reg,
		tr:          tr,
		timeout:     opts.Timeout,
		concurrency: opts.Concurrency,
		log:         opts.Logger,
	}
}

// GlobalAudience is every registered connection, optionally without sender.
func (r *Router) GlobalAudience(sender string, includeSender bool) []string {
	return without(r.reg.IDs(), sender, includeSender)
}

// TerminalAudience is every connection currently in terminal, optionally
// without sender.
func (r *Router) TerminalAudience(terminal, sender string, includeSender bool) []string {
	return without(r.reg.MembersOf(terminal), sender, includeSender)
}

// AudienceFor resolves a resource scope to its audience.
func (r *Router) AudienceFor(scope resource.Scope, sender string, includeSender bool) []string {
	if scope.IsGlobal() {
		return r.GlobalAudience(sender, includeSender)
	}
	return r.TerminalAudience(scope.Terminal, sender, includeSender)
}

func without(ids []string, sender string, includeSender bool) []string {
	if includeSender || sender == "" {
		return ids
	}
	return slices.DeleteFunc(ids, func(id string) bool { return id == sender })
}

// Deliver sends msg to every member of audience concurrently. A failed or slow
// recipient never stops delivery to the others; failures are logged and
// counted, and the number of failures is returned.
func (r *Router) Deliver(ctx context.Context, audience []string, msg types.ServerMessage) int {
	if len(audience) == 0 {
		return 0
	}

	var failed atomic.Int32
	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for _, id := range audience {
		id := id
		g.Go(func() error {
			if err := r.send(ctx, id, msg); err != nil {
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	return int(failed.Load())
}

// Reply sends msg to a single connection.
func (r *Router) Reply(ctx context.Context, connID string, msg types.ServerMessage) error {
	return r.send(ctx, connID, msg)
}

func (r *Router) send(ctx context.Context, id string, msg types.ServerMessage) error {
	sctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	metrics.Deliveries.Inc()
	if err := r.tr.Send(sctx, id, msg); err != nil {
		metrics.DeliveryFailures.Inc()
		r.log.Warn("delivery failed",
			zap.String("conn_id", id),
			zap.String("event", msg.Type),
			zap.Error(err))
		return err
	}
	return nil
}
