/*
Package audit provides generic.AuditSink implementations.

PURPOSE:
  The service notifies a sink on every transition, split recomputation,
  credit and policy change. Sinks are fire-and-forget: Notify returns
  nothing, and a failing sink logs its own error instead of failing the
  operation that produced the entry.

SINKS:
  LogSink:   Structured log line per entry
  StoreSink: Persists entries through generic.AuditLog (queryable trail)
  MailSink:  E-mails transition notices (mail.go)
  Multi:     Fans one entry out to several sinks
  Async:     Buffers entries and delivers them off the caller's goroutine

TYPICAL WIRING:
  sink := audit.NewAsync(audit.Multi{
      audit.NewStoreSink(db, logger),
      audit.NewLogSink(logger),
      audit.NewMailSink(mailCfg, logger),
  }, 256, logger)
  defer sink.Close()
*/
package audit

import (
	"context"
	"log/slog"
	"sync"

	"github.com/warp/contribution-engine/generic"
)

// =============================================================================
// LOG SINK
// =============================================================================

type LogSink struct {
	Logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{Logger: logger}
}

func (s *LogSink) Notify(ctx context.Context, e generic.AuditEntry) {
	attrs := []any{
		"action", e.Action,
		"contribution", e.ContributionID,
		"actor", e.ActorID,
		"role", e.ActorRole,
	}
	if e.FromStatus != e.ToStatus {
		attrs = append(attrs, "from", e.FromStatus, "to", e.ToStatus)
	}
	if e.Totals != nil {
		attrs = append(attrs,
			"pool_amount", e.Totals.PoolAmount.Value.String(),
			"pool_points", e.Totals.PoolPoints.Value.String(),
			"policy", e.Totals.PolicyID)
	}
	if e.Comment != "" {
		attrs = append(attrs, "comment", e.Comment)
	}
	s.Logger.InfoContext(ctx, "audit", attrs...)
}

// =============================================================================
// STORE SINK
// =============================================================================

type StoreSink struct {
	Log    generic.AuditLog
	Logger *slog.Logger
}

func NewStoreSink(log generic.AuditLog, logger *slog.Logger) *StoreSink {
	return &StoreSink{Log: log, Logger: logger}
}

func (s *StoreSink) Notify(ctx context.Context, e generic.AuditEntry) {
	if err := s.Log.AppendAudit(ctx, e); err != nil {
		s.Logger.Error("failed to persist audit entry", "id", e.ID, "action", e.Action, "error", err)
	}
}

// =============================================================================
// MULTI
// =============================================================================

// Multi notifies each sink in order.
type Multi []generic.AuditSink

func (m Multi) Notify(ctx context.Context, e generic.AuditEntry) {
	for _, s := range m {
		s.Notify(ctx, e)
	}
}

// =============================================================================
// ASYNC
// =============================================================================

// Async delivers entries to Next from a single background goroutine, in
// arrival order. When the buffer is full the entry is dropped and logged so
// that a slow sink (SMTP) never stalls a transition.
type Async struct {
	Next   generic.AuditSink
	Logger *slog.Logger

	entries chan asyncEntry
	done    chan struct{}

	mu     sync.RWMutex
	closed bool
}

type asyncEntry struct {
	ctx   context.Context
	entry generic.AuditEntry
}

func NewAsync(next generic.AuditSink, buffer int, logger *slog.Logger) *Async {
	if buffer <= 0 {
		buffer = 1
	}
	a := &Async{
		Next:    next,
		Logger:  logger,
		entries: make(chan asyncEntry, buffer),
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) run() {
	defer close(a.done)
	for e := range a.entries {
		a.Next.Notify(e.ctx, e.entry)
	}
}

func (a *Async) Notify(ctx context.Context, e generic.AuditEntry) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.Logger.Warn("audit sink closed, entry dropped", "id", e.ID, "action", e.Action)
		return
	}

	// Delivery outlives the request that produced the entry.
	select {
	case a.entries <- asyncEntry{ctx: context.WithoutCancel(ctx), entry: e}:
	default:
		a.Logger.Warn("audit buffer full, entry dropped", "id", e.ID, "action", e.Action, "contribution", e.ContributionID)
	}
}

// Close stops accepting entries and waits until buffered ones are delivered.
func (a *Async) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.entries)
	}
	a.mu.Unlock()
	<-a.done
}
