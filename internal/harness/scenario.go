package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/tiplink/internal/engine"
	"github.com/roach88/tiplink/internal/ir"
)

// Scenario defines a deterministic run of contract operations.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Genesis bootstraps roles before the first step.
	Genesis Genesis `yaml:"genesis"`

	// FailTransfersTo lists recipients whose deliveries are refused.
	FailTransfersTo []string `yaml:"fail_transfers_to,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions are checked after the last step.
	Assertions []Check `yaml:"assertions,omitempty"`
}

// Genesis mirrors the genesis file fields.
type Genesis struct {
	Owner        string `yaml:"owner"`
	Oracle       string `yaml:"oracle"`
	MinimumStake string `yaml:"minimum_stake"`
}

// Step is either an operation (Op set) or a mid-run check (Check set).
type Step struct {
	Op      string `yaml:"op,omitempty"`
	Caller  string `yaml:"caller,omitempty"`
	Signer  string `yaml:"signer,omitempty"`  // defaults to Caller
	Deposit string `yaml:"deposit,omitempty"` // defaults to "0"

	// Operation arguments. Which ones apply depends on Op.
	External string  `yaml:"external,omitempty"` // submit, send_tip
	Unlink   bool    `yaml:"unlink,omitempty"`   // submit
	Proof    string  `yaml:"proof,omitempty"`    // submit
	Request  *uint64 `yaml:"request,omitempty"`  // approve, reject
	Item     string  `yaml:"item,omitempty"`     // send_tip
	Account  string  `yaml:"account,omitempty"`  // set_owner, set_oracle
	Amount   string  `yaml:"amount,omitempty"`   // set_minimum_stake

	// Expect describes the expected outcome. Nil means the operation
	// must succeed.
	Expect *Expect `yaml:"expect,omitempty"`

	Check *Check `yaml:"check,omitempty"`
}

// Expect specifies the expected outcome of an operation.
type Expect struct {
	// Error is the expected contract error code. Empty means success.
	Error string `yaml:"error,omitempty"`

	// Result holds expected fields of the JSON-encoded result.
	// This is a subset match; values compare by their printed form.
	Result map[string]any `yaml:"result,omitempty"`
}

// Check asserts on current state.
type Check struct {
	// Type selects the check:
	// - "status": request has status
	// - "link": internal and external are linked to each other
	// - "unlinked": internal or external has no link
	// - "balance": total and/or available of external
	// - "item_total": total of item
	// - "pending": pending ids equal ids
	// - "transfers": outbox holds count entries, optionally in state
	Type string `yaml:"type"`

	Request   *uint64  `yaml:"request,omitempty"`
	Status    string   `yaml:"status,omitempty"`
	Internal  string   `yaml:"internal,omitempty"`
	External  string   `yaml:"external,omitempty"`
	Item      string   `yaml:"item,omitempty"`
	Total     string   `yaml:"total,omitempty"`
	Available string   `yaml:"available,omitempty"`
	IDs       []uint64 `yaml:"ids,omitempty"`
	Count     *int     `yaml:"count,omitempty"`
	State     string   `yaml:"state,omitempty"`
}

// Check type constants.
const (
	CheckStatus    = "status"
	CheckLink      = "link"
	CheckUnlinked  = "unlinked"
	CheckBalance   = "balance"
	CheckItemTotal = "item_total"
	CheckPending   = "pending"
	CheckTransfers = "transfers"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML with strict field validation.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Genesis.Owner == "" || s.Genesis.Oracle == "" {
		return fmt.Errorf("genesis owner and oracle are required")
	}
	if s.Genesis.MinimumStake != "" {
		if _, err := ir.ParseAmount(s.Genesis.MinimumStake); err != nil {
			return fmt.Errorf("genesis minimum_stake: %w", err)
		}
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("at least one step is required")
	}
	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}
	for i, c := range s.Assertions {
		if err := validateCheck(fmt.Sprintf("assertions[%d]", i), c); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, step Step) error {
	where := fmt.Sprintf("steps[%d]", index)
	switch {
	case step.Op == "" && step.Check == nil:
		return fmt.Errorf("%s: op or check is required", where)
	case step.Op != "" && step.Check != nil:
		return fmt.Errorf("%s: op and check are mutually exclusive", where)
	case step.Check != nil:
		return validateCheck(where+".check", *step.Check)
	}

	if step.Caller == "" {
		return fmt.Errorf("%s: caller is required", where)
	}
	if step.Deposit != "" {
		if _, err := ir.ParseAmount(step.Deposit); err != nil {
			return fmt.Errorf("%s: deposit: %w", where, err)
		}
	}

	switch step.Op {
	case engine.OpSubmit, engine.OpSendTip:
		if step.External == "" {
			return fmt.Errorf("%s: external is required for %s", where, step.Op)
		}
	case engine.OpApprove, engine.OpReject:
		if step.Request == nil {
			return fmt.Errorf("%s: request is required for %s", where, step.Op)
		}
	case engine.OpSetOwner, engine.OpSetOracle:
		if step.Account == "" {
			return fmt.Errorf("%s: account is required for %s", where, step.Op)
		}
	case engine.OpSetMinimumStake:
		if _, err := ir.ParseAmount(step.Amount); err != nil {
			return fmt.Errorf("%s: amount: %w", where, err)
		}
	case engine.OpClaim, engine.OpUnlinkAll:
	default:
		return fmt.Errorf("%s: unknown op %q", where, step.Op)
	}
	return nil
}

func validateCheck(where string, c Check) error {
	switch c.Type {
	case CheckStatus:
		if c.Request == nil || c.Status == "" {
			return fmt.Errorf("%s: request and status are required for status", where)
		}
		var st ir.RequestStatus
		if err := st.UnmarshalText([]byte(c.Status)); err != nil {
			return fmt.Errorf("%s: %w", where, err)
		}
	case CheckLink:
		if c.Internal == "" || c.External == "" {
			return fmt.Errorf("%s: internal and external are required for link", where)
		}
	case CheckUnlinked:
		if c.Internal == "" && c.External == "" {
			return fmt.Errorf("%s: internal or external is required for unlinked", where)
		}
	case CheckBalance:
		if c.External == "" || (c.Total == "" && c.Available == "") {
			return fmt.Errorf("%s: external and total or available are required for balance", where)
		}
	case CheckItemTotal:
		if c.Item == "" || c.Total == "" {
			return fmt.Errorf("%s: item and total are required for item_total", where)
		}
	case CheckPending:
	case CheckTransfers:
		if c.Count == nil || *c.Count < 0 {
			return fmt.Errorf("%s: non-negative count is required for transfers", where)
		}
	default:
		return fmt.Errorf("%s: unknown check type %q", where, c.Type)
	}
	return nil
}
