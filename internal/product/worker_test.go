package product

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPopPage_RemovesOnlyFirstMatchingOccurrence(t *testing.T) {
	assert.Equal(t, []int{1, 3, 5, 3}, popPage([]int{1, 3, 5, 3}, 7))
	assert.Equal(t, []int{3, 5, 3}, popPage([]int{1, 3, 5, 3}, 1))
	assert.Equal(t, []int{1, 5, 3}, popPage([]int{1, 3, 5, 3}, 3), "only the first matching occurrence is removed")
}

func TestPopPage_EmptyInputStaysEmpty(t *testing.T) {
	assert.Equal(t, []int{}, popPage([]int{}, 1))
}

func TestSameIDSet(t *testing.T) {
	a := map[string]struct{}{"a1": {}, "b2": {}}
	b := map[string]struct{}{"b2": {}, "a1": {}}
	assert.True(t, sameIDSet(a, b))

	c := map[string]struct{}{"a1": {}}
	assert.False(t, sameIDSet(a, c))

	d := map[string]struct{}{"a1": {}, "c3": {}}
	assert.False(t, sameIDSet(a, d))
}
