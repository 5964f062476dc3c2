package mergeconf

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultMatchesTeacherThresholds(t *testing.T) {
	s := Default()
	assert.True(t, s.EnableVerticalMerge)
	assert.EqualValues(t, 16*1024, s.VerticalMergeAlgorithmMinRowsToActivate)
	assert.Equal(t, 11, s.VerticalMergeAlgorithmMinColumnsToActivate)
	assert.True(t, s.AllowMixedStorageInHorizontalMerge)
	assert.EqualValues(t, 10*1024*1024*1024, s.MinBytesToUseDirectIO)
	assert.Equal(t, 20, s.MaxDelayedStreams)
	assert.False(t, s.FsyncAfterMerge)
	assert.Equal(t, 8192, s.RowsPerGranule)
}

func TestSettingsAreIndependentCopies(t *testing.T) {
	a := Default()
	b := Default()
	a.RowsPerGranule = 1
	assert.Equal(t, 8192, b.RowsPerGranule)
}
