package engine

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sasha-s/go-deadlock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/roach88/tiplink/internal/metrics"
	"github.com/roach88/tiplink/internal/store"
)

// slowStore delays every Update by delay once armed.
type slowStore struct {
	store.Store
	delay time.Duration
	armed bool
}

func (s *slowStore) Update(ctx context.Context, fn func(tx store.Tx) error) error {
	if s.armed {
		time.Sleep(s.delay)
	}
	return s.Store.Update(ctx, fn)
}

// brokenStore fails every Update once armed.
type brokenStore struct {
	store.Store
	armed bool
}

func (s *brokenStore) Update(ctx context.Context, fn func(tx store.Tx) error) error {
	if s.armed {
		return errors.New("disk I/O error")
	}
	return s.Store.Update(ctx, fn)
}

func restoreDeadlockOpts(t *testing.T) {
	t.Helper()
	timeout := deadlock.Opts.DeadlockTimeout
	onDeadlock := deadlock.Opts.OnPotentialDeadlock
	logBuf := deadlock.Opts.LogBuf
	t.Cleanup(func() {
		deadlock.Opts.DeadlockTimeout = timeout
		deadlock.Opts.OnPotentialDeadlock = onDeadlock
		deadlock.Opts.LogBuf = logBuf
	})
}

func TestDetectStalls_ZeroTimeoutDisables(t *testing.T) {
	restoreDeadlockOpts(t)
	deadlock.Opts.DeadlockTimeout = 30 * time.Second

	DetectStalls(0, zap.NewNop())
	assert.Zero(t, deadlock.Opts.DeadlockTimeout)
	require.NotNil(t, deadlock.Opts.OnPotentialDeadlock)
}

// Operations queued behind a slow store are reported, not fatal.
func TestDetectStalls_SlowStoreKeepsRunning(t *testing.T) {
	restoreDeadlockOpts(t)
	deadlock.Opts.LogBuf = io.Discard
	core, logs := observer.New(zapcore.ErrorLevel)
	DetectStalls(20*time.Millisecond, zap.New(core))

	s := &slowStore{Store: store.NewMemory(), delay: 150 * time.Millisecond}
	e := newTestEngine(t, s)
	s.armed = true

	ctx := context.Background()
	var wg sync.WaitGroup
	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func() {
			defer wg.Done()
			_, err := e.SendTip(ctx, call(carol, 1), "tw/bob", "x")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Eventually(t, func() bool {
		return logs.FilterMessage("lock wait exceeded deadlock timeout").Len() > 0
	}, time.Second, 10*time.Millisecond)
	total, err := e.ItemTotal(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, "2", total.String())
}

// A store failure carries no contract code and must not count as success.
func TestStoreFailureObservedAsError(t *testing.T) {
	m := metrics.New()
	s := &brokenStore{Store: store.NewMemory()}
	e := newTestEngine(t, s, WithObserver(m))
	s.armed = true

	_, err := e.SendTip(context.Background(), call(carol, 1), "tw/bob", "x")
	require.Error(t, err)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, `tiplink_contract_operations_total{code="ERROR",operation="send_tip"} 1`)
	assert.NotContains(t, body, `code="OK",operation="send_tip"`)
	_, committed := e.Steps()
	assert.Equal(t, uint64(1), committed, "only initialize committed")
}
