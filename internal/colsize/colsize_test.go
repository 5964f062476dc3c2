package colsize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimatorWeights(t *testing.T) {
	perSource := [][]ColumnBytes{
		{{Name: "k", Bytes: 100}, {Name: "v", Bytes: 50}},
		{{Name: "k", Bytes: 80}, {Name: "v", Bytes: 20}, {Name: "extra", Bytes: 5}},
	}
	e := NewEstimator(perSource, []string{"k"})

	assert.EqualValues(t, 180, e.ColumnWeight("k"))
	assert.EqualValues(t, 70, e.ColumnWeight("v"))
	assert.EqualValues(t, 180, e.KeyColumnsWeight())
	assert.EqualValues(t, 255, e.TotalWeight())
	assert.EqualValues(t, 0, e.ColumnWeight("missing"))
}
