package horizontal

import "github.com/graintree/graintree/internal/parts"

// DecoupleDecision is the outcome of spec.md §4.3 step 7 for one configured
// vector index: whether the merge can reuse existing index segments via a
// row-id-map decouple, or whether exactly one source carries the index and
// it can simply be moved forward untouched.
type DecoupleDecision struct {
	IndexName          string
	CanDecouple        bool
	OnlyOneVPartMerged bool
	SingleSourceIdx    int
}

// DecideDecouple evaluates one index's decouple eligibility across sources,
// per SPEC_FULL.md §5 decision 2: each configured index is evaluated
// independently, so OnlyOneVPartMerged is a per-index decision, never a
// merge-wide one.
func DecideDecouple(indexName string, sources []parts.SourcePart) DecoupleDecision {
	// not_empty_part_size is computed but not used in the decision below,
	// kept for parity with the original (SPEC_FULL.md §5 decision 1).
	var notEmptyPartSize uint64
	for _, sp := range sources {
		if sp.Rows > 0 {
			for _, c := range sp.Columns {
				notEmptyPartSize += c.Bytes
			}
		}
	}
	_ = notEmptyPartSize

	var withIndex []int
	canDecouple := true
	for i, sp := range sources {
		if sp.Rows == 0 {
			continue
		}
		switch sp.VectorIndexState(indexName) {
		case parts.VectorIndexBuilt:
			withIndex = append(withIndex, i)
		default:
			canDecouple = false
		}
	}
	if len(withIndex) == 0 {
		canDecouple = false
	}

	if len(withIndex) == 1 && !sources[withIndex[0]].LightweightDeleteBitmap {
		return DecoupleDecision{
			IndexName:          indexName,
			CanDecouple:        false,
			OnlyOneVPartMerged: true,
			SingleSourceIdx:    withIndex[0],
		}
	}

	return DecoupleDecision{IndexName: indexName, CanDecouple: canDecouple}
}
