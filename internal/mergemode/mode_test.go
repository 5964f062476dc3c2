package mergemode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringNamesEveryMode(t *testing.T) {
	cases := map[Mode]string{
		Ordinary:            "Ordinary",
		Collapsing:          "Collapsing",
		Replacing:           "Replacing",
		Summing:             "Summing",
		Aggregating:         "Aggregating",
		VersionedCollapsing: "VersionedCollapsing",
		Graphite:            "Graphite",
	}
	for mode, want := range cases {
		assert.Equal(t, want, mode.String())
	}
	assert.Equal(t, "Unknown", Mode(99).String())
}

func TestSupportsVertical(t *testing.T) {
	vertical := []Mode{Ordinary, Collapsing, Replacing, VersionedCollapsing}
	horizontalOnly := []Mode{Summing, Aggregating, Graphite}

	for _, m := range vertical {
		assert.True(t, m.SupportsVertical(), "%s should support vertical", m)
	}
	for _, m := range horizontalOnly {
		assert.False(t, m.SupportsVertical(), "%s should not support vertical", m)
	}
}
