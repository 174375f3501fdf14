package harness

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/roach88/tiplink/internal/ir"
)

// linkedHarness returns a harness where alice.near is linked to tw/alice,
// request 1 is pending and tw/bob holds an escrow of 40.
func linkedHarness(t *testing.T) *Harness {
	t.Helper()
	ctx := context.Background()
	scenario := baseScenario(Step{Op: "claim", Caller: "x"})
	h := newHarness(scenario, runConfig{logger: zap.NewNop()})
	t.Cleanup(func() { h.store.Close() })

	params, err := genesisParams(scenario.Genesis)
	require.NoError(t, err)
	require.NoError(t, h.engine.Initialize(ctx, params))

	call := func(who, deposit string) ir.Call {
		return ir.Call{Caller: ir.InternalAccount(who), Signer: ir.InternalAccount(who), Deposit: ir.MustParseAmount(deposit)}
	}
	_, err = h.engine.Submit(ctx, call("alice.near", "10"), "tw/alice", false, "")
	require.NoError(t, err)
	_, err = h.engine.Approve(ctx, "oracle.near", 0)
	require.NoError(t, err)
	_, err = h.engine.Submit(ctx, call("dave.near", "10"), "tw/dave", false, "")
	require.NoError(t, err)
	_, err = h.engine.SendTip(ctx, call("carol.near", "40"), "tw/bob", "post-1")
	require.NoError(t, err)
	return h
}

func TestEvaluate_Pass(t *testing.T) {
	h := linkedHarness(t)
	ctx := context.Background()

	checks := []Check{
		{Type: CheckStatus, Request: u64(0), Status: "Approved"},
		{Type: CheckStatus, Request: u64(1), Status: "Pending"},
		{Type: CheckStatus, Request: u64(9), Status: "NotFound"},
		{Type: CheckLink, Internal: "alice.near", External: "tw/alice"},
		{Type: CheckUnlinked, Internal: "dave.near"},
		{Type: CheckUnlinked, External: "tw/bob"},
		{Type: CheckBalance, External: "tw/bob", Total: "40", Available: "40"},
		{Type: CheckBalance, External: "tw/alice", Total: "0"},
		{Type: CheckItemTotal, Item: "post-1", Total: "40"},
		{Type: CheckPending, IDs: []uint64{1}},
		{Type: CheckTransfers, Count: count(2)},
		{Type: CheckTransfers, Count: count(2), State: "queued"},
	}
	for _, c := range checks {
		assert.NoError(t, h.evaluate(ctx, c), c.Type)
	}
}

func TestEvaluate_Fail(t *testing.T) {
	h := linkedHarness(t)
	ctx := context.Background()

	tests := []struct {
		check    Check
		expected string
		actual   string
	}{
		{Check{Type: CheckStatus, Request: u64(1), Status: "Approved"}, "request 1 Approved", "Pending"},
		{Check{Type: CheckLink, Internal: "dave.near", External: "tw/dave"}, "dave.near -> tw/dave", "no link"},
		{Check{Type: CheckLink, Internal: "alice.near", External: "tw/bob"}, "alice.near -> tw/bob", "tw/alice"},
		{Check{Type: CheckUnlinked, Internal: "alice.near"}, "alice.near unlinked", "linked to tw/alice"},
		{Check{Type: CheckUnlinked, External: "tw/alice"}, "tw/alice unlinked", "linked to alice.near"},
		{Check{Type: CheckBalance, External: "tw/bob", Available: "1"}, "available of tw/bob = 1", "40"},
		{Check{Type: CheckItemTotal, Item: "post-2", Total: "40"}, "total of post-2 = 40", "0"},
		{Check{Type: CheckPending, IDs: []uint64{}}, "[]", "[1]"},
		{Check{Type: CheckTransfers, Count: count(1), State: "delivered"}, "1 delivered transfers", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.check.Type, func(t *testing.T) {
			err := h.evaluate(ctx, tt.check)
			var ae *AssertionError
			require.True(t, errors.As(err, &ae), "got %v", err)
			assert.Equal(t, tt.check.Type, ae.Type)
			assert.Equal(t, tt.expected, ae.Expected)
			assert.Equal(t, tt.actual, ae.Actual)
		})
	}
}

func TestEvaluate_UnknownType(t *testing.T) {
	h := linkedHarness(t)
	err := h.evaluate(context.Background(), Check{Type: "vibes"})
	require.Error(t, err)
	var ae *AssertionError
	assert.False(t, errors.As(err, &ae))
}

func TestMatchFields(t *testing.T) {
	actual := map[string]any{"id": float64(3), "escrowed": true, "amount": "7", "extra": "x"}

	assert.True(t, matchFields(actual, map[string]any{"id": 3, "escrowed": true}))
	assert.True(t, matchFields(actual, map[string]any{}))
	assert.False(t, matchFields(actual, map[string]any{"id": 4}))
	assert.False(t, matchFields(actual, map[string]any{"missing": "x"}))
}

func TestAssertionError_Message(t *testing.T) {
	err := &AssertionError{Type: CheckBalance, Expected: "total of tw/bob = 5", Actual: "4"}
	assert.Equal(t, "balance: expected total of tw/bob = 5, got 4", err.Error())
}
