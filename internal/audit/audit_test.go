package audit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type memorySink struct {
	mu     sync.Mutex
	events []*Event
	err    error
}

func (s *memorySink) Write(_ context.Context, e *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return s.err
}

func TestFromEcho(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/agencies/acme/students", nil)
	req.Header.Set(echo.HeaderXRealIP, "203.0.113.9")
	req.Header.Set(echo.HeaderXRequestID, "req-1")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/api/agencies/:subdomain/students")

	ev := FromEcho(c, KindForbidden, OutcomeDenied).WithActor(uuid.New(), "agency_viewer")

	assert.Equal(t, "203.0.113.9", ev.IPAddress)
	assert.Equal(t, http.MethodGet, ev.Method)
	assert.Equal(t, "/api/agencies/:subdomain/students", ev.Route)
	assert.Equal(t, "req-1", ev.RequestID)
	assert.NotNil(t, ev.ActorID)

	anon := FromEcho(c, KindUnauthenticated, OutcomeDenied).WithActor(uuid.Nil, "")
	assert.Nil(t, anon.ActorID)
}

func TestRecord_LevelsAndPersistence(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	sink := &memorySink{}
	l := NewLogger(zap.New(core), sink)

	l.Record(&Event{Kind: KindForbidden, Outcome: OutcomeDenied, Requirement: "permission:manage_students", IPAddress: "1.2.3.4"})
	l.Record(&Event{Kind: KindRateLimited, Outcome: OutcomeDenied})
	l.Record(&Event{Kind: KindUnauthenticated, Outcome: OutcomeDenied, Reason: "token expired"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, l.Close(ctx))

	entries := logs.FilterMessage("security event").All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "permission:manage_students", entries[0].ContextMap()["requirement"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.InfoLevel, entries[2].Level)

	assert.Len(t, sink.events, 3)
	for _, ev := range sink.events {
		assert.NotEqual(t, uuid.Nil, ev.ID)
		assert.False(t, ev.CreatedAt.IsZero())
	}
}

func TestRecord_SinkFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := NewLogger(zap.New(core), &memorySink{err: errors.New("db down")})

	l.Record(&Event{Kind: KindForbidden})
	require.NoError(t, l.Close(context.Background()))

	assert.Equal(t, 1, logs.FilterMessage("audit persist failed").Len())
}

type blockingSink struct {
	started chan struct{}
	release chan struct{}
	memorySink
}

func (s *blockingSink) Write(ctx context.Context, e *Event) error {
	s.started <- struct{}{}
	<-s.release
	return s.memorySink.Write(ctx, e)
}

func TestRecord_QueueIsBounded(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	sink := &blockingSink{started: make(chan struct{}, 16), release: make(chan struct{})}
	l := newLogger(zap.New(core), sink, 2, 1)

	l.Record(&Event{Kind: KindForbidden})
	select {
	case <-sink.started:
	case <-time.After(time.Second):
		t.Fatal("writer did not pick up the first event")
	}

	for i := 0; i < 5; i++ {
		l.Record(&Event{Kind: KindRateLimited})
	}
	assert.Equal(t, uint64(3), l.Dropped())
	assert.Equal(t, 6, logs.FilterMessage("security event").Len())
	assert.Equal(t, 1, logs.FilterMessage("audit queue full, event not persisted").Len())

	close(sink.release)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, l.Close(ctx))

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Len(t, sink.events, 3)
}

func TestRecord_AfterCloseIsDropped(t *testing.T) {
	sink := &memorySink{}
	l := NewLogger(zap.NewNop(), sink)
	require.NoError(t, l.Close(context.Background()))

	assert.NotPanics(t, func() { l.Record(&Event{Kind: KindForbidden}) })
	assert.Equal(t, uint64(1), l.Dropped())
	assert.Empty(t, sink.events)
	require.NoError(t, l.Close(context.Background()))
}

func TestSQLSink_Write(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	actor := uuid.New()
	ev := &Event{
		ID:        uuid.New(),
		Kind:      KindRateLimited,
		Outcome:   OutcomeDenied,
		ActorID:   &actor,
		IPAddress: "198.51.100.2",
		Method:    http.MethodPost,
		Route:     "/auth/login",
		CreatedAt: time.Now(),
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_events")).
		WithArgs(ev.ID, "rate_limited", sqlmock.AnyArg(), "", "", "denied", "", "", "198.51.100.2", http.MethodPost, "/auth/login", "", ev.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewSQLSink(db).Write(context.Background(), ev))
	assert.NoError(t, mock.ExpectationsWereMet())
}
