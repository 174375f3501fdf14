package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tiplink/internal/ir"
)

func TestObserveOperation(t *testing.T) {
	m := New()
	m.ObserveOperation("submit", nil, time.Millisecond)
	m.ObserveOperation("submit", ir.ErrInsufficientStake, time.Millisecond)
	m.ObserveOperation("submit", ir.ErrInsufficientStake, time.Millisecond)
	m.ObserveOperation("submit", errors.New("disk I/O error"), time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("submit", "OK")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.operations.WithLabelValues("submit", "INSUFFICIENT_STAKE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("submit", "ERROR")))
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"success", nil, OutcomeOK},
		{"contract error", ir.ErrNothingToClaim, "NOTHING_TO_CLAIM"},
		{"wrapped contract error", fmt.Errorf("claim: %w", ir.ErrNothingToClaim), "NOTHING_TO_CLAIM"},
		{"store failure", errors.New("database is locked"), OutcomeError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Outcome(tt.err))
		})
	}
}

func TestObserveTransferAndEscrow(t *testing.T) {
	m := New()
	m.ObserveTransfer(ir.TransferClaim, ir.DeliveryFailed)
	m.ObserveEscrow(ir.AmountFrom64(100))
	m.ObserveEscrow(ir.AmountFrom64(50))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.transfers.WithLabelValues("claim", "failed")))
	assert.Equal(t, 150.0, testutil.ToFloat64(m.escrowed))
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveOperation("claim", nil, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `tiplink_contract_operations_total{code="OK",operation="claim"} 1`))
}

func TestNew_IndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.ObserveEscrow(ir.AmountFrom64(1))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.escrowed))
}
