package transfer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/roach88/tiplink/internal/ir"
)

var sample = ir.Transfer{
	ID:        "transfer-0001",
	Seq:       0,
	Kind:      ir.TransferClaim,
	Recipient: "bob.near",
	Amount:    ir.MustParseAmount("340282366920938463463374607431768211455"),
	Origin:    "bob.near",
}

func testWebhook(url string) *WebhookTransferer {
	w := NewWebhookTransferer(url)
	w.MaxRetries = 3
	w.NewBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return w
}

func TestWebhook_PostsTransfer(t *testing.T) {
	var got ir.Transfer
	var digest string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		digest = r.Header.Get(DigestHeader)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	require.NoError(t, testWebhook(srv.URL).Transfer(context.Background(), sample))
	assert.Equal(t, sample, got)

	want, err := ir.TransferDigest(sample)
	require.NoError(t, err)
	assert.Equal(t, want, digest)
}

func TestWebhook_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.NoError(t, testWebhook(srv.URL).Transfer(context.Background(), sample))
	assert.Equal(t, int32(3), calls.Load())
}

func TestWebhook_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := testWebhook(srv.URL).Transfer(context.Background(), sample)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Equal(t, int32(4), calls.Load(), "one attempt plus three retries")
}

func TestWebhook_ClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	err := testWebhook(srv.URL).Transfer(context.Background(), sample)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejected")
	assert.Equal(t, int32(1), calls.Load())
}

func TestLogTransferer(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	require.NoError(t, LogTransferer{Logger: zap.New(core)}.Transfer(context.Background(), sample))

	entries := logs.FilterMessage("transfer").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "bob.near", entries[0].ContextMap()["recipient"])
	assert.Equal(t, sample.Amount.String(), entries[0].ContextMap()["amount"])

	// A zero-value transferer falls back to a no-op logger.
	assert.NoError(t, LogTransferer{}.Transfer(context.Background(), sample))
}
