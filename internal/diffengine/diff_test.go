package diffengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffBasic(t *testing.T) {
	runs := Diff("very", "also very")
	joined := Apply(runs)
	require.Equal(t, "also very", joined)
}

func TestThreeWayMergeIndependentEdits(t *testing.T) {
	base := "I am the very model of a modern Major-General"
	left := "I am the also very model of a modern Major-General"
	right := "I am the very model of a modern Admiral"

	runs := ThreeWayMerge(base, left, right)
	merged := Apply(runs)

	assert.Contains(t, merged, "also very", "expected left-side insertion to survive")
	assert.Contains(t, merged, "Admiral", "expected right-side replacement to survive")
	assert.NotContains(t, merged, "Major-General", "expected right-side deletion of Major-General")
}

func TestThreeWayMergeNoChanges(t *testing.T) {
	base := "unchanged text"
	runs := ThreeWayMerge(base, base, base)
	require.Equal(t, base, Apply(runs))
}

func TestThreeWayMergeTrailingInsertion(t *testing.T) {
	base := "hello"
	left := "hello world"
	right := "hello"

	runs := ThreeWayMerge(base, left, right)
	merged := Apply(runs)
	require.Equal(t, "hello world", merged)
	for _, r := range runs {
		assert.NotEmpty(t, r.Text, "unexpected empty run in result: %+v", runs)
	}
}

func TestThreeWayMergeConflictingDeletionWins(t *testing.T) {
	base := "keep this word"
	left := "keep this word please"
	right := "keep word"

	runs := ThreeWayMerge(base, left, right)
	merged := Apply(runs)
	assert.NotContains(t, merged, "this", "expected right-side deletion of 'this' to win")
	assert.Contains(t, merged, "please", "expected left-side trailing insertion to survive")
}
