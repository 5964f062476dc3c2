package mergetransform

import "github.com/graintree/graintree/internal/rowmodel"

// Ordinary concatenates equal-key groups unchanged: every member is its own
// carrier and is emitted as-is.
type Ordinary struct{}

func NewOrdinary() *Ordinary { return &Ordinary{} }

func (Ordinary) Reduce(group []GroupMember) []Output {
	outputs := make([]Output, len(group))
	for i, m := range group {
		outputs[i] = Output{Row: m.Row, CarrierIdx: i}
	}
	return outputs
}

// Collapsing cancels +1/-1 pairs within an equal-key group, emitting
// survivors in their original (ascending source) order.
type Collapsing struct {
	schema *rowmodel.Schema
}

func NewCollapsing(schema *rowmodel.Schema) *Collapsing {
	return &Collapsing{schema: schema}
}

func (c *Collapsing) Reduce(group []GroupMember) []Output {
	return collapsingReduce(c.schema, group)
}

// collapsingReduce pairs each +1 with a later -1 within group, in the order
// group is given, using a stack of pending +1 indexes; surplus rows (an
// unmatched -1, or +1s left on the stack at the end) survive, emitted in
// their original order.
func collapsingReduce(schema *rowmodel.Schema, group []GroupMember) []Output {
	cancelled := make([]bool, len(group))
	var pendingPlus []int
	for i, m := range group {
		sign := m.Row.Columns[schema.SignColumn].AsInt64()
		switch {
		case sign > 0:
			pendingPlus = append(pendingPlus, i)
		case sign < 0:
			if n := len(pendingPlus); n > 0 {
				j := pendingPlus[n-1]
				pendingPlus = pendingPlus[:n-1]
				cancelled[i] = true
				cancelled[j] = true
			}
		}
	}
	var outputs []Output
	for i, m := range group {
		if !cancelled[i] {
			outputs = append(outputs, Output{Row: m.Row, CarrierIdx: i})
		}
	}
	return outputs
}

// Replacing keeps the member with the maximum version (ties broken by later
// source order), dropping it entirely when is_deleted is set and clean-up is
// enabled.
type Replacing struct {
	schema  *rowmodel.Schema
	cleanup bool
}

func NewReplacing(schema *rowmodel.Schema, cleanup bool) *Replacing {
	return &Replacing{schema: schema, cleanup: cleanup}
}

func (r *Replacing) Reduce(group []GroupMember) []Output {
	survivor := 0
	for i := 1; i < len(group); i++ {
		if rowmodel.Compare(group[i].Row.Columns[r.schema.VersionColumn], group[survivor].Row.Columns[r.schema.VersionColumn]) >= 0 {
			survivor = i
		}
	}
	if r.cleanup && r.schema.IsDeletedColumn >= 0 {
		if !group[survivor].Row.Columns[r.schema.IsDeletedColumn].IsZero() {
			return nil
		}
	}
	return []Output{{Row: group[survivor].Row, CarrierIdx: survivor}}
}

// Summing emits one row per group whose non-key numeric columns are the sum
// across group members; an all-zero summed row is elided. Nested-table
// columns merged by their own key are out of scope for this implementation
// (spec.md's generic row model has no nested-table type); every non-key
// column here is treated as a flat summable column.
type Summing struct {
	schema *rowmodel.Schema
}

func NewSumming(schema *rowmodel.Schema) *Summing {
	return &Summing{schema: schema}
}

func (s *Summing) Reduce(group []GroupMember) []Output {
	isKey := make(map[int]bool, len(s.schema.KeyColumns))
	for _, idx := range s.schema.KeyColumns {
		isKey[idx] = true
	}
	sum := group[0].Row.Clone()
	allZero := true
	for i := 1; i < len(group); i++ {
		for col := range sum.Columns {
			if isKey[col] {
				continue
			}
			sum.Columns[col] = rowmodel.Add(sum.Columns[col], group[i].Row.Columns[col])
		}
	}
	for col, v := range sum.Columns {
		if isKey[col] {
			continue
		}
		if !v.IsZero() {
			allZero = false
			break
		}
	}
	if allZero {
		return nil
	}
	return []Output{{Row: sum, CarrierIdx: 0}}
}

// AggregateColumnMerger combines two aggregate-function state values held in
// the same column across two rows of an equal-key group.
type AggregateColumnMerger func(a, b rowmodel.Value) rowmodel.Value

// Aggregating merges aggregate-function state columns within an equal-key
// group using caller-supplied per-column combinators. Columns with no
// registered combinator default to Add, matching AggregatingMergeTree's
// simplest sum-state columns; this engine has no aggregate-function plugin
// registry, so more elaborate states (quantile sketches, uniq counters) must
// supply their own combinator.
type Aggregating struct {
	schema   *rowmodel.Schema
	combiner map[int]AggregateColumnMerger
}

func NewAggregating(schema *rowmodel.Schema, combiner map[int]AggregateColumnMerger) *Aggregating {
	return &Aggregating{schema: schema, combiner: combiner}
}

func (a *Aggregating) Reduce(group []GroupMember) []Output {
	isKey := make(map[int]bool, len(a.schema.KeyColumns))
	for _, idx := range a.schema.KeyColumns {
		isKey[idx] = true
	}
	merged := group[0].Row.Clone()
	for i := 1; i < len(group); i++ {
		for col := range merged.Columns {
			if isKey[col] {
				continue
			}
			if fn, ok := a.combiner[col]; ok {
				merged.Columns[col] = fn(merged.Columns[col], group[i].Row.Columns[col])
			} else {
				merged.Columns[col] = rowmodel.Add(merged.Columns[col], group[i].Row.Columns[col])
			}
		}
	}
	return []Output{{Row: merged, CarrierIdx: 0}}
}

// VersionedCollapsing is Collapsing restricted to pairing +1/-1 within the
// same version value: the equal-key group is split into version-ordered
// sub-groups (in original order) and each is collapsed independently.
type VersionedCollapsing struct {
	schema *rowmodel.Schema
}

func NewVersionedCollapsing(schema *rowmodel.Schema) *VersionedCollapsing {
	return &VersionedCollapsing{schema: schema}
}

func (v *VersionedCollapsing) Reduce(group []GroupMember) []Output {
	byVersion := make(map[int64][]int)
	var order []int64
	for i, m := range group {
		ver := m.Row.Columns[v.schema.VersionColumn].AsInt64()
		if _, seen := byVersion[ver]; !seen {
			order = append(order, ver)
		}
		byVersion[ver] = append(byVersion[ver], i)
	}
	var outputs []Output
	for _, ver := range order {
		idxs := byVersion[ver]
		sub := make([]GroupMember, len(idxs))
		for j, idx := range idxs {
			sub[j] = group[idx]
		}
		for _, out := range collapsingReduce(v.schema, sub) {
			outputs = append(outputs, Output{Row: out.Row, CarrierIdx: idxs[out.CarrierIdx]})
		}
	}
	return outputs
}
