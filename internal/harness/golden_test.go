package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tiplink/internal/ir"
)

func TestScenarios_Golden(t *testing.T) {
	files, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), ".yaml")
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(file)
			require.NoError(t, err)
			require.Equal(t, name, scenario.Name, "scenario name must match file name")

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, result.Errors)
		})
	}
}

func TestSnapshot_Marshal(t *testing.T) {
	snapshot := Snapshot{
		ScenarioName: "s",
		Trace:        []TraceEvent{{Seq: 1, Op: "claim", Caller: "bob.near", Outcome: "NOTHING_TO_CLAIM"}},
		Transfers: []ir.TransferRecord{{
			Transfer: ir.Transfer{
				ID:        "transfer-0001",
				Kind:      ir.TransferTip,
				Recipient: "bob.near",
				Amount:    ir.MustParseAmount("7"),
				Origin:    "carol.near",
			},
			State:  ir.DeliveryFailed,
			Detail: "down",
		}},
	}

	data, err := snapshot.Marshal()
	require.NoError(t, err)
	assert.Equal(t,
		`{"scenario_name":"s",`+
			`"trace":[{"caller":"bob.near","op":"claim","outcome":"NOTHING_TO_CLAIM","seq":1}],`+
			`"transfers":[{"amount":"7","detail":"down","id":"transfer-0001","kind":"tip",`+
			`"origin":"carol.near","recipient":"bob.near","seq":0,"state":"failed"}]}`,
		string(data))
}

func TestSnapshot_Deterministic(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/escrow_claim.yaml")
	require.NoError(t, err)

	first, err := Run(t.Context(), scenario)
	require.NoError(t, err)
	second, err := Run(t.Context(), scenario)
	require.NoError(t, err)

	a, err := (&Snapshot{ScenarioName: scenario.Name, Trace: first.Trace, Transfers: first.Transfers}).Marshal()
	require.NoError(t, err)
	b, err := (&Snapshot{ScenarioName: scenario.Name, Trace: second.Trace, Transfers: second.Transfers}).Marshal()
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
