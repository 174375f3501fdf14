package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tiplink/internal/ir"
)

func u64(n uint64) *uint64 { return &n }
func count(n int) *int     { return &n }

func baseScenario(steps ...Step) *Scenario {
	return &Scenario{
		Name:    "test",
		Genesis: Genesis{Owner: "owner.near", Oracle: "oracle.near", MinimumStake: "10"},
		Steps:   steps,
	}
}

func TestRun_SubmitAndApprove(t *testing.T) {
	scenario := baseScenario(
		Step{Op: "submit", Caller: "alice.near", Deposit: "10", External: "tw/alice",
			Expect: &Expect{Result: map[string]any{"id": 0}}},
		Step{Op: "approve", Caller: "oracle.near", Request: u64(0)},
	)
	scenario.Assertions = []Check{
		{Type: CheckLink, Internal: "alice.near", External: "tw/alice"},
		{Type: CheckStatus, Request: u64(0), Status: "Approved"},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
	assert.Empty(t, result.Errors)

	require.Len(t, result.Trace, 2)
	assert.Equal(t, TraceEvent{Seq: 1, Op: "submit", Caller: "alice.near", Outcome: OutcomeOK}, result.Trace[0])
	assert.Equal(t, TraceEvent{Seq: 2, Op: "approve", Caller: "oracle.near", Outcome: OutcomeOK}, result.Trace[1])

	require.Len(t, result.Transfers, 1)
	rec := result.Transfers[0]
	assert.Equal(t, "transfer-0001", rec.ID)
	assert.Equal(t, ir.TransferStake, rec.Kind)
	assert.Equal(t, ir.InternalAccount("oracle.near"), rec.Recipient)
	assert.Equal(t, ir.DeliveryDelivered, rec.State)
}

func TestRun_ExpectedErrorPasses(t *testing.T) {
	scenario := baseScenario(
		Step{Op: "claim", Caller: "bob.near", Expect: &Expect{Error: "NO_LINKED_ACCOUNT"}},
	)

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
	assert.Equal(t, "NO_LINKED_ACCOUNT", result.Trace[0].Outcome)
}

func TestRun_UnexpectedError(t *testing.T) {
	scenario := baseScenario(
		Step{Op: "submit", Caller: "alice.near", Deposit: "1", External: "tw/alice"},
	)

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expected ok, got INSUFFICIENT_STAKE")
}

func TestRun_ExpectedErrorNotRaised(t *testing.T) {
	scenario := baseScenario(
		Step{Op: "submit", Caller: "alice.near", Deposit: "10", External: "tw/alice",
			Expect: &Expect{Error: "INSUFFICIENT_STAKE"}},
	)

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "expected INSUFFICIENT_STAKE, got ok")
}

func TestRun_ResultMismatch(t *testing.T) {
	scenario := baseScenario(
		Step{Op: "send_tip", Caller: "carol.near", Deposit: "5", External: "tw/bob", Item: "x",
			Expect: &Expect{Result: map[string]any{"escrowed": false}}},
	)

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "does not match")
}

func TestRun_FailingChecks(t *testing.T) {
	scenario := baseScenario(
		Step{Op: "send_tip", Caller: "carol.near", Deposit: "5", External: "tw/bob", Item: "x"},
		Step{Check: &Check{Type: CheckBalance, External: "tw/bob", Available: "6"}},
	)
	scenario.Assertions = []Check{
		{Type: CheckItemTotal, Item: "x", Total: "5"},
		{Type: CheckTransfers, Count: count(1)},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "steps[1]")
	assert.Contains(t, result.Errors[1], "assertions[1]")
	assert.Len(t, result.Trace, 1)
}

func TestRun_AdminOps(t *testing.T) {
	scenario := baseScenario(
		Step{Op: "set_minimum_stake", Caller: "owner.near", Amount: "3"},
		Step{Op: "set_oracle", Caller: "owner.near", Account: "oracle2.near"},
		Step{Op: "submit", Caller: "alice.near", Deposit: "3", External: "tw/alice"},
		Step{Op: "approve", Caller: "oracle.near", Request: u64(0), Expect: &Expect{Error: "UNAUTHORIZED"}},
		Step{Op: "approve", Caller: "oracle2.near", Request: u64(0)},
		Step{Op: "set_owner", Caller: "owner.near", Account: "owner2.near"},
		Step{Op: "unlink_all", Caller: "owner.near", Expect: &Expect{Error: "UNAUTHORIZED"}},
		Step{Op: "unlink_all", Caller: "owner2.near"},
	)
	scenario.Assertions = []Check{
		{Type: CheckUnlinked, Internal: "alice.near", External: "tw/alice"},
		{Type: CheckPending, IDs: []uint64{}},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
	require.Len(t, result.Transfers, 1)
	assert.Equal(t, ir.InternalAccount("oracle2.near"), result.Transfers[0].Recipient)
}

func TestRun_FailedDelivery(t *testing.T) {
	scenario := baseScenario(
		Step{Op: "submit", Caller: "alice.near", Deposit: "10", External: "tw/alice"},
	)
	scenario.FailTransfersTo = []string{"oracle.near"}
	scenario.Assertions = []Check{{Type: CheckTransfers, Count: count(1), State: "failed"}}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
	require.Len(t, result.Transfers, 1)
	assert.Equal(t, "transfer to oracle.near refused", result.Transfers[0].Detail)
}

func TestRun_Isolation(t *testing.T) {
	scenario := baseScenario(
		Step{Op: "submit", Caller: "alice.near", Deposit: "10", External: "tw/alice",
			Expect: &Expect{Result: map[string]any{"id": 0}}},
	)

	for range 2 {
		result, err := Run(context.Background(), scenario)
		require.NoError(t, err)
		assert.True(t, result.Pass, result.Errors)
		assert.Equal(t, "transfer-0001", result.Transfers[0].ID)
	}
}

func TestRun_BadGenesis(t *testing.T) {
	scenario := baseScenario(Step{Op: "claim", Caller: "a.near"})
	scenario.Genesis.MinimumStake = "lots"

	_, err := Run(context.Background(), scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "minimum_stake")
}
