package projections

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graintree/graintree/internal/parts"
)

func TestStageExecutesEveryProjection(t *testing.T) {
	projs := []Projection{{Name: "p1"}, {Name: "p2", Aggregating: true}}
	var ran []string
	runner := func(p Projection) (*parts.NewPart, error) {
		ran = append(ran, p.Name)
		return &parts.NewPart{Name: p.Name + "_merged"}, nil
	}
	stage := NewStage(projs, runner)

	more, err := stage.Execute()
	require.NoError(t, err)
	assert.True(t, more)

	more, err = stage.Execute()
	require.NoError(t, err)
	assert.False(t, more)

	assert.Equal(t, []string{"p1", "p2"}, ran)
	results := stage.Results()
	require.Len(t, results, 2)
	assert.Equal(t, "p1_merged", results["p1"].Name)
	assert.Equal(t, "p2_merged", results["p2"].Name)
}

func TestStageStopsOnRunnerError(t *testing.T) {
	projs := []Projection{{Name: "broken"}}
	runner := func(p Projection) (*parts.NewPart, error) {
		return nil, fmt.Errorf("boom")
	}
	stage := NewStage(projs, runner)
	_, err := stage.Execute()
	assert.Error(t, err)
}

func TestEligibleProjectionsRequiresAllSources(t *testing.T) {
	sources := []parts.SourcePart{{Name: "a"}, {Name: "b"}}
	has := map[string]map[string]bool{
		"a": {"p1": true, "p2": true},
		"b": {"p1": true},
	}
	hasProjection := func(sp parts.SourcePart, name string) bool {
		return has[sp.Name][name]
	}
	out := EligibleProjections([]string{"p1", "p2"}, sources, hasProjection)
	assert.Equal(t, []string{"p1"}, out)
}
