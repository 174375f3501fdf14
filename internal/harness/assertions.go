package harness

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/tiplink/internal/ir"
)

// AssertionError is returned when a check fails.
type AssertionError struct {
	Type     string // Check type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", e.Type, e.Expected, e.Actual)
}

func mismatch(typ, expected, actual string) error {
	return &AssertionError{Type: typ, Expected: expected, Actual: actual}
}

// evaluate checks c against current engine state.
func (h *Harness) evaluate(ctx context.Context, c Check) error {
	e := h.engine

	switch c.Type {
	case CheckStatus:
		st, err := e.GetStatus(ctx, ir.RequestID(*c.Request))
		if err != nil {
			return err
		}
		if st.String() != c.Status {
			return mismatch(c.Type, fmt.Sprintf("request %d %s", *c.Request, c.Status), st.String())
		}

	case CheckLink:
		ext, ok, err := e.ExternalAccount(ctx, ir.InternalAccount(c.Internal))
		if err != nil {
			return err
		}
		if !ok || string(ext) != c.External {
			return mismatch(c.Type, c.Internal+" -> "+c.External, describeLink(string(ext), ok))
		}
		in, ok, err := e.InternalAccount(ctx, ir.ExternalAccount(c.External))
		if err != nil {
			return err
		}
		if !ok || string(in) != c.Internal {
			return mismatch(c.Type, c.External+" -> "+c.Internal, describeLink(string(in), ok))
		}

	case CheckUnlinked:
		if c.Internal != "" {
			ext, ok, err := e.ExternalAccount(ctx, ir.InternalAccount(c.Internal))
			if err != nil {
				return err
			}
			if ok {
				return mismatch(c.Type, c.Internal+" unlinked", "linked to "+string(ext))
			}
		}
		if c.External != "" {
			in, ok, err := e.InternalAccount(ctx, ir.ExternalAccount(c.External))
			if err != nil {
				return err
			}
			if ok {
				return mismatch(c.Type, c.External+" unlinked", "linked to "+string(in))
			}
		}

	case CheckBalance:
		ext := ir.ExternalAccount(c.External)
		if c.Total != "" {
			total, err := e.AccountTotal(ctx, ext)
			if err != nil {
				return err
			}
			if total.String() != c.Total {
				return mismatch(c.Type, "total of "+c.External+" = "+c.Total, total.String())
			}
		}
		if c.Available != "" {
			available, err := e.Available(ctx, ext)
			if err != nil {
				return err
			}
			if available.String() != c.Available {
				return mismatch(c.Type, "available of "+c.External+" = "+c.Available, available.String())
			}
		}

	case CheckItemTotal:
		total, err := e.ItemTotal(ctx, c.Item)
		if err != nil {
			return err
		}
		if total.String() != c.Total {
			return mismatch(c.Type, "total of "+c.Item+" = "+c.Total, total.String())
		}

	case CheckPending:
		ids, err := e.ListPending(ctx)
		if err != nil {
			return err
		}
		got := make([]uint64, len(ids))
		for i, id := range ids {
			got[i] = uint64(id)
		}
		if !slices.Equal(got, c.IDs) && (len(got) > 0 || len(c.IDs) > 0) {
			return mismatch(c.Type, fmt.Sprint(c.IDs), fmt.Sprint(got))
		}

	case CheckTransfers:
		recs, err := e.ListTransfers(ctx, 0, 0)
		if err != nil {
			return err
		}
		n := 0
		for _, r := range recs {
			if c.State == "" || string(r.State) == c.State {
				n++
			}
		}
		if n != *c.Count {
			what := "transfers"
			if c.State != "" {
				what = c.State + " transfers"
			}
			return mismatch(c.Type, fmt.Sprintf("%d %s", *c.Count, what), fmt.Sprint(n))
		}

	default:
		return fmt.Errorf("unknown check type %q", c.Type)
	}
	return nil
}

func describeLink(counterpart string, ok bool) string {
	if !ok {
		return "no link"
	}
	return counterpart
}

// matchFields reports whether every expected key is present in actual with
// the same printed value. Extra keys in actual are OK (subset match).
func matchFields(actual, expected map[string]any) bool {
	for key, want := range expected {
		got, ok := actual[key]
		if !ok {
			return false
		}
		if fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}
