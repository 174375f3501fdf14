package transfer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/roach88/tiplink/internal/ir"
)

// Transferer performs one outbound value movement.
type Transferer interface {
	Transfer(ctx context.Context, t ir.Transfer) error
}

// LogTransferer only logs transfers. Used when no payout endpoint is
// configured.
type LogTransferer struct {
	Logger *zap.Logger
}

// Transfer logs t and reports success.
func (l LogTransferer) Transfer(_ context.Context, t ir.Transfer) error {
	logger := l.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("transfer",
		zap.String("id", t.ID),
		zap.Uint64("seq", t.Seq),
		zap.String("kind", string(t.Kind)),
		zap.String("recipient", string(t.Recipient)),
		zap.String("amount", t.Amount.String()),
	)
	return nil
}

// DigestHeader carries ir.TransferDigest. The dispatcher hands each outbox
// entry to the transferer once, but a retried POST whose first response was
// lost reaches the receiver twice; receivers drop repeats of a digest.
const DigestHeader = "X-Tiplink-Transfer-Digest"

// WebhookTransferer posts each transfer as JSON to a payout endpoint.
// 5xx responses and network errors are retried with exponential backoff;
// 4xx responses fail immediately.
type WebhookTransferer struct {
	URL        string
	Client     *http.Client
	MaxRetries uint64
	// NewBackOff overrides the retry policy. Tests use a zero backoff.
	NewBackOff func() backoff.BackOff
}

// NewWebhookTransferer returns a transferer with a 10s request timeout and
// five retries.
func NewWebhookTransferer(url string) *WebhookTransferer {
	return &WebhookTransferer{
		URL:        url,
		Client:     &http.Client{Timeout: 10 * time.Second},
		MaxRetries: 5,
	}
}

// Transfer posts t until it is accepted, rejected, or retries run out.
func (w *WebhookTransferer) Transfer(ctx context.Context, t ir.Transfer) error {
	body, err := json.Marshal(t)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("marshal transfer: %w", err))
	}
	digest, err := ir.TransferDigest(t)
	if err != nil {
		return err
	}

	policy := backoff.BackOff(backoff.NewExponentialBackOff())
	if w.NewBackOff != nil {
		policy = w.NewBackOff()
	}
	policy = backoff.WithContext(backoff.WithMaxRetries(policy, w.MaxRetries), ctx)

	return backoff.Retry(func() error {
		return w.post(ctx, body, digest)
	}, policy)
}

func (w *WebhookTransferer) post(ctx context.Context, body []byte, digest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(DigestHeader, digest)

	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post transfer: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return backoff.Permanent(fmt.Errorf("payout endpoint rejected transfer: %s", resp.Status))
	default:
		return fmt.Errorf("payout endpoint returned %s", resp.Status)
	}
}
