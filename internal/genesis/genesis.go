// Package genesis loads the bootstrap roles from a CUE file checked
// against an embedded schema.
package genesis

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/tiplink/internal/access"
	"github.com/roach88/tiplink/internal/ir"
)

//go:embed schema.cue
var schemaCUE string

// Error reports an invalid genesis document with its source position.
type Error struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type document struct {
	Owner        string `json:"owner"`
	Oracle       string `json:"oracle"`
	MinimumStake string `json:"minimum_stake"`
}

// Load reads and validates the genesis file at path.
func Load(path string) (access.Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return access.Params{}, fmt.Errorf("read genesis: %w", err)
	}
	return Parse(data, path)
}

// Parse validates CUE source against the schema and converts it to
// bootstrap parameters. filename is used in error positions only.
func Parse(data []byte, filename string) (access.Params, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return access.Params{}, fmt.Errorf("compile genesis schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Genesis"))

	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return access.Params{}, positioned(err)
	}

	unified := def.Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return access.Params{}, positioned(err)
	}

	var doc document
	if err := unified.Decode(&doc); err != nil {
		return access.Params{}, positioned(err)
	}

	stake, err := ir.ParseAmount(doc.MinimumStake)
	if err != nil {
		return access.Params{}, &Error{
			Field:   "minimum_stake",
			Message: err.Error(),
			Pos:     unified.LookupPath(cue.ParsePath("minimum_stake")).Pos(),
		}
	}

	return access.Params{
		Owner:        ir.InternalAccount(doc.Owner),
		Oracle:       ir.InternalAccount(doc.Oracle),
		MinimumStake: stake,
	}, nil
}

// positioned keeps the first CUE error and its position.
func positioned(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	field := "genesis"
	if path := first.Path(); len(path) > 0 {
		field = path[len(path)-1]
	}
	var pos token.Pos
	if positions := errors.Positions(first); len(positions) > 0 {
		pos = positions[0]
	}
	return &Error{Field: field, Message: first.Error(), Pos: pos}
}
