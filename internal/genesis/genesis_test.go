package genesis

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tiplink/internal/ir"
)

func TestParse_Valid(t *testing.T) {
	params, err := Parse([]byte(`
owner:         "owner.test"
oracle:        "oracle.test"
minimum_stake: "1000"
`), "genesis.cue")
	require.NoError(t, err)

	assert.Equal(t, ir.InternalAccount("owner.test"), params.Owner)
	assert.Equal(t, ir.InternalAccount("oracle.test"), params.Oracle)
	assert.Equal(t, ir.AmountFrom64(1000), params.MinimumStake)
}

func TestParse_DefaultStake(t *testing.T) {
	params, err := Parse([]byte(`
owner:  "owner.test"
oracle: "oracle.test"
`), "genesis.cue")
	require.NoError(t, err)
	assert.True(t, params.MinimumStake.IsZero())
}

func TestParse_LargeStake(t *testing.T) {
	params, err := Parse([]byte(`
owner:         "owner.test"
oracle:        "oracle.test"
minimum_stake: "340282366920938463463374607431768211455"
`), "genesis.cue")
	require.NoError(t, err)
	assert.Equal(t, "340282366920938463463374607431768211455", params.MinimumStake.String())
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"missing oracle", `owner: "owner.test"`},
		{"empty owner", `owner: "", oracle: "oracle.test"`},
		{"negative stake", `owner: "o", oracle: "r", minimum_stake: "-5"`},
		{"numeric stake", `owner: "o", oracle: "r", minimum_stake: 5`},
		{"unknown field", `owner: "o", oracle: "r", admins: ["x"]`},
		{"overflow", `owner: "o", oracle: "r", minimum_stake: "340282366920938463463374607431768211456"`},
		{"syntax", `owner: "o`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src), "genesis.cue")
			require.Error(t, err)
			var gerr *Error
			assert.True(t, errors.As(err, &gerr), "want *genesis.Error, got %T: %v", err, err)
		})
	}
}

func TestParse_OverflowReportsField(t *testing.T) {
	_, err := Parse([]byte(`
owner:         "owner.test"
oracle:        "oracle.test"
minimum_stake: "340282366920938463463374607431768211456"
`), "genesis.cue")
	var gerr *Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, "minimum_stake", gerr.Field)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genesis.cue")
	require.NoError(t, os.WriteFile(path, []byte(`owner: "a", oracle: "b", minimum_stake: "7"`), 0o644))

	params, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ir.InternalAccount("a"), params.Owner)
	assert.Equal(t, ir.AmountFrom64(7), params.MinimumStake)

	_, err = Load(filepath.Join(t.TempDir(), "missing.cue"))
	assert.Error(t, err)
}
