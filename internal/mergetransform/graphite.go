package mergetransform

import (
	"regexp"

	"github.com/graintree/graintree/internal/rowmodel"
	"github.com/graintree/graintree/lib/fasttime"
)

// RollupFunction names a Graphite rollup aggregation.
type RollupFunction int

const (
	RollupAvg RollupFunction = iota
	RollupMax
	RollupMin
	RollupSum
	RollupLast
)

// Retention is one row of a Graphite pattern's retention table: rows aged
// at least AgeSeconds map to PrecisionSeconds through PrecisionFor.
// Graphite.Reduce does not read the table and does not round row times.
type Retention struct {
	AgeSeconds       int64
	PrecisionSeconds int64
}

// Pattern matches metric names against Regexp and, on match, selects the
// rollup Function and the Retentions table used to pick a precision by age.
type Pattern struct {
	Regexp     *regexp.Regexp
	Function   RollupFunction
	Retentions []Retention
}

// GraphiteConfig binds the schema's path/time/value columns to the pattern
// table used for rollup.
type GraphiteConfig struct {
	Patterns    []Pattern
	PathColumn  int
	TimeColumn  int
	ValueColumn int
	// NowUnix is the reference time for measuring row ages. Graphite.Reduce
	// does not read it.
	NowUnix int64
}

// Graphite rolls up rows within an equal-primary-key group by the pattern
// matching the row's metric path, combining values with the pattern's
// rollup function. Because this merger's equal-key grouping is driven by
// the table's own sort key rather than a synthesized (path, rounded-time)
// key, cross-row age-bucket regrouping across rows that differ in time but
// round to the same bucket is not performed here: that would require a
// second pass over buckets spanning multiple sort-key groups, which the
// streaming single-pass N-way merge contract this package shares with every
// other mode does not support. Within a single sort-key group this applies
// the matched pattern's function exactly as Graphite rollup would.
type Graphite struct {
	schema *rowmodel.Schema
	cfg    GraphiteConfig
}

// NewGraphite returns a Graphite reducer bound to schema and cfg. If
// cfg.NowUnix is zero it defaults to the current time, matching the
// teacher's use of fasttime for ambient "now" rather than time.Now().Unix().
func NewGraphite(schema *rowmodel.Schema, cfg GraphiteConfig) *Graphite {
	if cfg.NowUnix == 0 {
		cfg.NowUnix = int64(fasttime.UnixTimestamp())
	}
	return &Graphite{schema: schema, cfg: cfg}
}

func (g *Graphite) Reduce(group []GroupMember) []Output {
	path := group[0].Row.Columns[g.cfg.PathColumn].Str
	pat := g.matchPattern(path)
	if pat == nil || len(group) == 1 {
		return []Output{{Row: group[0].Row, CarrierIdx: 0}}
	}

	carrier := 0
	for i := 1; i < len(group); i++ {
		if group[i].Row.Columns[g.cfg.TimeColumn].AsInt64() > group[carrier].Row.Columns[g.cfg.TimeColumn].AsInt64() {
			carrier = i
		}
	}
	result := group[carrier].Row.Clone()
	result.Columns[g.cfg.ValueColumn] = g.rollup(pat.Function, group)
	return []Output{{Row: result, CarrierIdx: carrier}}
}

func (g *Graphite) matchPattern(path string) *Pattern {
	for i := range g.cfg.Patterns {
		if g.cfg.Patterns[i].Regexp.MatchString(path) {
			return &g.cfg.Patterns[i]
		}
	}
	return nil
}

func (g *Graphite) rollup(fn RollupFunction, group []GroupMember) rowmodel.Value {
	first := group[0].Row.Columns[g.cfg.ValueColumn]
	switch fn {
	case RollupMax:
		best := first
		for _, m := range group[1:] {
			v := m.Row.Columns[g.cfg.ValueColumn]
			if v.AsFloat64() > best.AsFloat64() {
				best = v
			}
		}
		return best
	case RollupMin:
		best := first
		for _, m := range group[1:] {
			v := m.Row.Columns[g.cfg.ValueColumn]
			if v.AsFloat64() < best.AsFloat64() {
				best = v
			}
		}
		return best
	case RollupLast:
		return group[len(group)-1].Row.Columns[g.cfg.ValueColumn]
	case RollupSum, RollupAvg:
		sum := first
		for _, m := range group[1:] {
			sum = rowmodel.Add(sum, m.Row.Columns[g.cfg.ValueColumn])
		}
		if fn == RollupSum {
			return sum
		}
		return rowmodel.Float64(sum.AsFloat64() / float64(len(group)))
	default:
		return first
	}
}

// PrecisionFor returns the retention precision applying to a row aged
// ageSeconds under pat, or 0 if none of pat's retentions apply.
func PrecisionFor(pat Pattern, ageSeconds int64) int64 {
	var best int64
	for _, r := range pat.Retentions {
		if ageSeconds >= r.AgeSeconds && r.PrecisionSeconds > best {
			best = r.PrecisionSeconds
		}
	}
	return best
}
