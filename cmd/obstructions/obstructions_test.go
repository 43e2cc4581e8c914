package main

import (
	"testing"

	"github.com/cyclopcam/teachable/pkg/obstruction"
	"github.com/stretchr/testify/require"
)

func TestDominantLabel(t *testing.T) {
	labels := []string{"Moving", "Bus Stop", "Intersection", "Obstruction"}
	label := func(classes ...int) string {
		return dominantLabel(&obstruction.Period{Classes: classes}, labels)
	}
	require.Equal(t, "Obstruction (2/3)", label(3, 1, 3))
	require.Equal(t, "Bus Stop (1/2)", label(2, 1))
	require.Equal(t, "class 9 (1/1)", label(9))
	require.Equal(t, "", label())
}

func TestRenderPeriods(t *testing.T) {
	out := renderPeriods([]obstruction.Period{{Severity: 2, Start: 1, End: 1.5, Classes: []int{3, 3}}}, []string{"a", "b", "c", "d"})
	require.Contains(t, out, "1.50")
	require.Contains(t, out, "d (2/2)")
}
