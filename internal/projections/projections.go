// Package projections implements the Projections Stage (spec.md component
// 9): for every table projection present in every source part, recursively
// runs a child merge task over the projection's sub-parts and attaches the
// sealed result to the new part.
package projections

import (
	"fmt"

	"github.com/graintree/graintree/internal/mergemode"
	"github.com/graintree/graintree/internal/parts"
)

// Projection is one table projection present (with a sub-part) in every
// source of the enclosing merge.
type Projection struct {
	Name        string
	Aggregating bool
	Sources     []parts.SourcePart
}

// Mode returns the merge mode a projection's child task runs under:
// Aggregating if the projection itself aggregates, Ordinary otherwise.
func (p Projection) Mode() mergemode.Mode {
	if p.Aggregating {
		return mergemode.Aggregating
	}
	return mergemode.Ordinary
}

// ChildRunner runs one projection's child merge task to completion and
// returns its sealed new part. Supplied by the caller that builds the Stage
// (through mergetask.Config.BuildProjections); projections has no
// dependency on mergetask to avoid an import cycle.
type ChildRunner func(proj Projection) (*parts.NewPart, error)

// Stage iterates projections one at a time via ChildRunner.
type Stage struct {
	projections []Projection
	runner      ChildRunner

	idx     int
	results map[string]*parts.NewPart
}

// NewStage returns a Stage over projections.
func NewStage(projections []Projection, runner ChildRunner) *Stage {
	return &Stage{projections: projections, runner: runner, results: make(map[string]*parts.NewPart)}
}

// Execute runs the next projection's child task. Returns more=true while
// projections remain.
func (s *Stage) Execute() (more bool, err error) {
	if s.idx >= len(s.projections) {
		return false, nil
	}
	proj := s.projections[s.idx]
	newPart, err := s.runner(proj)
	if err != nil {
		return false, fmt.Errorf("projection %q: %w", proj.Name, err)
	}
	s.results[proj.Name] = newPart
	s.idx++
	return s.idx < len(s.projections), nil
}

// Results returns every completed projection's sealed sub-part, keyed by
// projection name. Valid only after Execute has returned more=false.
func (s *Stage) Results() map[string]*parts.NewPart {
	return s.results
}

// EligibleProjections filters candidate projection names down to those
// present as a sub-part in every one of sources.
func EligibleProjections(candidateNames []string, sources []parts.SourcePart, hasProjection func(sp parts.SourcePart, name string) bool) []string {
	var out []string
	for _, name := range candidateNames {
		all := true
		for _, sp := range sources {
			if !hasProjection(sp, name) {
				all = false
				break
			}
		}
		if all {
			out = append(out, name)
		}
	}
	return out
}
