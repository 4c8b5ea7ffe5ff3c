package spec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandInverseDoublesPositives(t *testing.T) {
	specs := []TaskSpec{
		{QueryID: "a", Orientation: OrientationPositive, Notes: "keep this"},
		{QueryID: "b", Orientation: OrientationInverse},
	}

	expanded, err := ExpandInverse(specs)
	require.NoError(t, err)
	require.Len(t, expanded, 3)

	assert.Equal(t, "a", expanded[0].QueryID)
	assert.Equal(t, "a-inverse", expanded[1].QueryID)
	assert.Equal(t, OrientationInverse, expanded[1].Orientation)
	assert.Contains(t, expanded[1].Notes, "keep this")
	assert.Contains(t, expanded[1].Notes, InverseNotesHint)
	assert.Equal(t, "b", expanded[2].QueryID)
}

func TestExpandInverseCollision(t *testing.T) {
	specs := []TaskSpec{
		{QueryID: "a", Orientation: OrientationPositive},
		{QueryID: "a-inverse", Orientation: OrientationInverse},
	}

	expanded, err := ExpandInverse(specs)
	require.NoError(t, err)
	require.Len(t, expanded, 3)
	assert.Equal(t, "a-inverse-2", expanded[1].QueryID)
}

func TestExpandInverseHintNotDuplicated(t *testing.T) {
	s := TaskSpec{QueryID: "a", Notes: InverseNotesHint}
	inverse, err := BuildInverse(s, nil)
	require.NoError(t, err)
	assert.Equal(t, InverseNotesHint, inverse.Notes)
}

func TestBuildInverseRejectsInverseInput(t *testing.T) {
	_, err := BuildInverse(TaskSpec{QueryID: "a", Orientation: OrientationInverse}, nil)
	require.Error(t, err)
}

func TestBuildInverseCopiesSlices(t *testing.T) {
	s := TaskSpec{QueryID: "a", SearchQueries: []string{"q1"}, TaskFocus: []string{"f1"}}
	inverse, err := BuildInverse(s, nil)
	require.NoError(t, err)

	inverse.SearchQueries[0] = "changed"
	inverse.TaskFocus[0] = "changed"
	assert.Equal(t, "q1", s.SearchQueries[0])
	assert.Equal(t, "f1", s.TaskFocus[0])
}
