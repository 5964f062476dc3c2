package rowmodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloneCopiesColumnsIndependently(t *testing.T) {
	r := Row{Columns: []Value{Int64(1), String("a")}, SourceIdx: 2, SourceOffset: 7}
	c := r.Clone()
	c.Columns[0] = Int64(99)

	assert.EqualValues(t, 1, r.Columns[0].I64)
	assert.EqualValues(t, 99, c.Columns[0].I64)
	assert.Equal(t, r.SourceIdx, c.SourceIdx)
	assert.Equal(t, r.SourceOffset, c.SourceOffset)
}

func TestNewSchemaDefaultsModeColumnsToAbsent(t *testing.T) {
	s := NewSchema([]string{"k", "v"}, []int{0})
	assert.Equal(t, -1, s.SignColumn)
	assert.Equal(t, -1, s.VersionColumn)
	assert.Equal(t, -1, s.IsDeletedColumn)
}

func TestCompareKeyUsesOnlyKeyColumns(t *testing.T) {
	s := NewSchema([]string{"k", "v"}, []int{0})
	a := Row{Columns: []Value{Int64(1), String("x")}}
	b := Row{Columns: []Value{Int64(1), String("y")}}
	assert.Equal(t, 0, s.CompareKey(a, b))
	assert.True(t, s.SameKey(a, b))

	c := Row{Columns: []Value{Int64(2), String("x")}}
	assert.Equal(t, -1, s.CompareKey(a, c))
	assert.False(t, s.SameKey(a, c))
}

func TestCompareKeyMultiColumnTieBreak(t *testing.T) {
	s := NewSchema([]string{"k1", "k2"}, []int{0, 1})
	a := Row{Columns: []Value{Int64(1), Int64(5)}}
	b := Row{Columns: []Value{Int64(1), Int64(6)}}
	assert.Equal(t, -1, s.CompareKey(a, b))
}

func TestColumnIndex(t *testing.T) {
	s := NewSchema([]string{"k", "v", "sign"}, []int{0})
	assert.Equal(t, 2, s.ColumnIndex("sign"))
	assert.Equal(t, -1, s.ColumnIndex("missing"))
}
