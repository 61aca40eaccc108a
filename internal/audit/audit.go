// Package audit records security-relevant gate outcomes.
package audit

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"
)

const (
	defaultPersistTimeout = 2 * time.Second
	defaultQueueSize      = 1024
	defaultWorkers        = 4
	dropWarnInterval      = 10 * time.Second
)

// Kind classifies an audit event.
type Kind string

const (
	KindForbidden       Kind = "forbidden"
	KindRateLimited     Kind = "rate_limited"
	KindUnauthenticated Kind = "unauthenticated"
	KindTenantNotFound  Kind = "tenant_not_found"
	KindLoginFailed     Kind = "login_failed"
	KindPasswordReset   Kind = "password_reset"
)

// Outcome represents the result recorded for an event
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeDenied  Outcome = "denied"
)

// Event represents an audit event
type Event struct {
	ID          uuid.UUID
	Kind        Kind
	Outcome     Outcome
	ActorID     *uuid.UUID
	ActorRole   string
	Tenant      string
	Requirement string
	Reason      string
	IPAddress   string
	Method      string
	Route       string
	RequestID   string
	CreatedAt   time.Time
}

// FromEcho fills the request fields of an event from c.
func FromEcho(c echo.Context, kind Kind, outcome Outcome) *Event {
	route := c.Path()
	if route == "" {
		route = c.Request().URL.Path
	}
	requestID := c.Response().Header().Get(echo.HeaderXRequestID)
	if requestID == "" {
		requestID = c.Request().Header.Get(echo.HeaderXRequestID)
	}
	return &Event{
		Kind:      kind,
		Outcome:   outcome,
		IPAddress: c.RealIP(),
		Method:    c.Request().Method,
		Route:     route,
		RequestID: requestID,
	}
}

// WithActor sets the acting principal.
func (e *Event) WithActor(id uuid.UUID, role string) *Event {
	if id != uuid.Nil {
		e.ActorID = &id
	}
	e.ActorRole = role
	return e
}

// Sink persists events.
type Sink interface {
	Write(ctx context.Context, event *Event) error
}

// Logger writes every event to zap and, when a sink is configured, hands it
// to a fixed pool of writers through a bounded queue. Events that find the
// queue full are dropped from the sink; they are still logged.
type Logger struct {
	log     *zap.Logger
	sink    Sink
	timeout time.Duration

	mu       sync.RWMutex
	closed   bool
	queue    chan *Event
	wg       sync.WaitGroup
	dropped  atomic.Uint64
	dropWarn rate.Sometimes
}

// NewLogger creates a new audit logger. sink may be nil.
func NewLogger(log *zap.Logger, sink Sink) *Logger {
	return newLogger(log, sink, defaultQueueSize, defaultWorkers)
}

func newLogger(log *zap.Logger, sink Sink, queueSize, workers int) *Logger {
	if log == nil {
		log = zap.NewNop()
	}
	l := &Logger{
		log:      log.Named("audit"),
		sink:     sink,
		timeout:  defaultPersistTimeout,
		dropWarn: rate.Sometimes{Interval: dropWarnInterval},
	}
	if sink == nil {
		return l
	}
	l.queue = make(chan *Event, queueSize)
	l.wg.Add(workers)
	for range workers {
		go l.persist()
	}
	return l
}

func (l *Logger) persist() {
	defer l.wg.Done()
	for event := range l.queue {
		ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
		if err := l.sink.Write(ctx, event); err != nil {
			l.log.Error("audit persist failed", zap.String("event_id", event.ID.String()), zap.Error(err))
		}
		cancel()
	}
}

// Record logs an event. Denials and rate-limit hits are warnings;
// unauthenticated requests and other outcomes are informational.
func (l *Logger) Record(event *Event) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	if ce := l.log.Check(levelFor(event.Kind), "security event"); ce != nil {
		ce.Write(fields(event)...)
	}

	if l.sink == nil {
		return
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if !l.closed {
		select {
		case l.queue <- event:
			return
		default:
		}
	}
	total := l.dropped.Add(1)
	l.dropWarn.Do(func() {
		l.log.Warn("audit queue full, event not persisted",
			zap.String("event_id", event.ID.String()),
			zap.Uint64("dropped_total", total),
		)
	})
}

// Dropped reports how many events were not handed to the sink.
func (l *Logger) Dropped() uint64 {
	return l.dropped.Load()
}

// Close stops accepting events for the sink and waits until the queue is
// drained or ctx is done.
func (l *Logger) Close(ctx context.Context) error {
	l.mu.Lock()
	if !l.closed && l.queue != nil {
		close(l.queue)
	}
	l.closed = true
	l.mu.Unlock()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func levelFor(kind Kind) zapcore.Level {
	switch kind {
	case KindForbidden, KindRateLimited, KindLoginFailed:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}

func fields(e *Event) []zap.Field {
	fs := []zap.Field{
		zap.String("event_id", e.ID.String()),
		zap.String("kind", string(e.Kind)),
		zap.String("outcome", string(e.Outcome)),
		zap.String("ip", e.IPAddress),
		zap.String("method", e.Method),
		zap.String("route", e.Route),
	}
	if e.ActorID != nil {
		fs = append(fs, zap.String("actor_id", e.ActorID.String()))
	}
	if e.ActorRole != "" {
		fs = append(fs, zap.String("actor_role", e.ActorRole))
	}
	if e.Tenant != "" {
		fs = append(fs, zap.String("tenant", e.Tenant))
	}
	if e.Requirement != "" {
		fs = append(fs, zap.String("requirement", e.Requirement))
	}
	if e.Reason != "" {
		fs = append(fs, zap.String("reason", e.Reason))
	}
	if e.RequestID != "" {
		fs = append(fs, zap.String("request_id", e.RequestID))
	}
	return fs
}

// Execer is satisfied by *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SQLSink stores events in the audit_events table.
type SQLSink struct {
	db Execer
}

func NewSQLSink(db Execer) *SQLSink {
	return &SQLSink{db: db}
}

func (s *SQLSink) Write(ctx context.Context, event *Event) error {
	query := `
		INSERT INTO audit_events (
			id, event_type, actor_id, actor_role, tenant, outcome, requirement,
			reason, ip_address, method, route, request_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		string(event.Kind),
		nullableUUID(event.ActorID),
		event.ActorRole,
		event.Tenant,
		string(event.Outcome),
		event.Requirement,
		event.Reason,
		event.IPAddress,
		event.Method,
		event.Route,
		event.RequestID,
		event.CreatedAt,
	)
	return err
}

func nullableUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}
