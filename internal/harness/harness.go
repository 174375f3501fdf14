package harness

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/roach88/tiplink/internal/access"
	"github.com/roach88/tiplink/internal/engine"
	"github.com/roach88/tiplink/internal/ir"
	"github.com/roach88/tiplink/internal/store"
	"github.com/roach88/tiplink/internal/testutil"
	"github.com/roach88/tiplink/internal/transfer"
)

// Harness is the scenario execution environment.
// Each Run builds a fresh one so scenarios never share state.
type Harness struct {
	store      *store.Memory
	engine     *engine.Engine
	dispatcher *transfer.Dispatcher
}

// Option configures Run.
type Option func(*runConfig)

type runConfig struct {
	logger *zap.Logger
}

// WithLogger routes engine and dispatcher logs to l. Logs are discarded
// by default.
func WithLogger(l *zap.Logger) Option {
	return func(c *runConfig) { c.logger = l }
}

func newHarness(s *Scenario, cfg runConfig) *Harness {
	st := store.NewMemory()
	recorder := testutil.NewRecordingTransferer()
	for _, r := range s.FailTransfersTo {
		recorder.Fail[ir.InternalAccount(r)] = fmt.Errorf("transfer to %s refused", r)
	}
	d := transfer.NewDispatcher(st, recorder, transfer.WithLogger(cfg.logger.Named("dispatch")))
	e := engine.New(st,
		engine.WithIDGenerator(testutil.NewSequenceIDs("")),
		engine.WithLogger(cfg.logger.Named("engine")),
	)
	return &Harness{store: st, engine: e, dispatcher: d}
}

// Run executes a scenario and returns the result.
//
// Execution flow:
// 1. Create a fresh in-memory store and engine
// 2. Initialize roles from the genesis block
// 3. Execute steps, draining the outbox after each committed operation
// 4. Evaluate final assertions
// 5. Return result with pass/fail, trace, final outbox and errors
//
// A non-nil error means the scenario could not be executed at all; failed
// expectations and checks are reported through Result.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := runConfig{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	h := newHarness(scenario, cfg)
	defer h.store.Close()

	params, err := genesisParams(scenario.Genesis)
	if err != nil {
		return nil, err
	}
	if err := h.engine.Initialize(ctx, params); err != nil {
		return nil, fmt.Errorf("failed to initialize: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if step.Check != nil {
			if err := h.evaluate(ctx, *step.Check); err != nil {
				result.AddError(fmt.Sprintf("steps[%d]: %v", i, err))
			}
			continue
		}
		if err := h.execute(ctx, i, step, result); err != nil {
			return nil, err
		}
	}

	for i, c := range scenario.Assertions {
		if err := h.evaluate(ctx, c); err != nil {
			result.AddError(fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}

	recs, err := h.engine.ListTransfers(ctx, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to read outbox: %w", err)
	}
	if recs != nil {
		result.Transfers = recs
	}
	return result, nil
}

func genesisParams(g Genesis) (access.Params, error) {
	stake := ir.ZeroAmount
	if g.MinimumStake != "" {
		var err error
		if stake, err = ir.ParseAmount(g.MinimumStake); err != nil {
			return access.Params{}, fmt.Errorf("genesis minimum_stake: %w", err)
		}
	}
	return access.Params{
		Owner:        ir.InternalAccount(g.Owner),
		Oracle:       ir.InternalAccount(g.Oracle),
		MinimumStake: stake,
	}, nil
}

// execute runs one operation, records it and checks its expectation.
// Contract rejections are outcomes, not errors.
func (h *Harness) execute(ctx context.Context, index int, step Step, result *Result) error {
	out, err := h.apply(ctx, step)
	code := ir.CodeOf(err)
	if err != nil && code == "" {
		return fmt.Errorf("steps[%d] %s: %w", index, step.Op, err)
	}

	outcome := OutcomeOK
	if code != "" {
		outcome = string(code)
	}
	result.AddTrace(step.Op, step.Caller, outcome)

	if err == nil {
		if _, derr := h.dispatcher.Drain(ctx); derr != nil {
			return fmt.Errorf("steps[%d] %s: drain outbox: %w", index, step.Op, derr)
		}
	}

	want := ""
	if step.Expect != nil {
		want = step.Expect.Error
	}
	if outcome != OutcomeOK || want != "" {
		if want == "" {
			want = OutcomeOK
		}
		if outcome != want {
			result.AddError(fmt.Sprintf("steps[%d] %s: expected %s, got %s", index, step.Op, want, outcome))
			return nil
		}
	}

	if step.Expect != nil && len(step.Expect.Result) > 0 && err == nil {
		if msg := matchResult(out, step.Expect.Result); msg != "" {
			result.AddError(fmt.Sprintf("steps[%d] %s: %s", index, step.Op, msg))
		}
	}
	return nil
}

func (h *Harness) apply(ctx context.Context, step Step) (any, error) {
	call, err := stepCall(step)
	if err != nil {
		return nil, err
	}
	e := h.engine

	switch step.Op {
	case engine.OpSubmit:
		return e.Submit(ctx, call, ir.ExternalAccount(step.External), step.Unlink, step.Proof)
	case engine.OpApprove:
		return e.Approve(ctx, call.Caller, ir.RequestID(*step.Request))
	case engine.OpReject:
		return e.Reject(ctx, call.Caller, ir.RequestID(*step.Request))
	case engine.OpSendTip:
		return e.SendTip(ctx, call, ir.ExternalAccount(step.External), step.Item)
	case engine.OpClaim:
		return e.Claim(ctx, call.Caller)
	case engine.OpSetOwner:
		return nil, e.SetOwner(ctx, call.Caller, ir.InternalAccount(step.Account))
	case engine.OpSetOracle:
		return nil, e.SetOracle(ctx, call.Caller, ir.InternalAccount(step.Account))
	case engine.OpSetMinimumStake:
		stake, err := ir.ParseAmount(step.Amount)
		if err != nil {
			return nil, err
		}
		return nil, e.SetMinimumStake(ctx, call.Caller, stake)
	case engine.OpUnlinkAll:
		return nil, e.UnlinkAll(ctx, call.Caller)
	default:
		return nil, fmt.Errorf("unknown op %q", step.Op)
	}
}

func stepCall(step Step) (ir.Call, error) {
	deposit := ir.ZeroAmount
	if step.Deposit != "" {
		var err error
		if deposit, err = ir.ParseAmount(step.Deposit); err != nil {
			return ir.Call{}, err
		}
	}
	signer := step.Signer
	if signer == "" {
		signer = step.Caller
	}
	return ir.Call{
		Caller:  ir.InternalAccount(step.Caller),
		Signer:  ir.InternalAccount(signer),
		Deposit: deposit,
	}, nil
}

// matchResult compares expected fields against the JSON form of out.
// Returns an empty string on match.
func matchResult(out any, expected map[string]any) string {
	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Sprintf("cannot encode result: %v", err)
	}
	var actual map[string]any
	if err := json.Unmarshal(data, &actual); err != nil {
		return fmt.Sprintf("result is not an object: %s", data)
	}
	if !matchFields(actual, expected) {
		return fmt.Sprintf("result %s does not match %v", data, expected)
	}
	return ""
}
