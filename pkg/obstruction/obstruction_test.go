package obstruction

import (
	"strings"
	"testing"

	"github.com/cyclopcam/teachable/pkg/predlog"
	"github.com/stretchr/testify/require"
)

func makeSamples(speeds []float64, classes []int) []Sample {
	s := []Sample{}
	for i, v := range speeds {
		s = append(s, Sample{Time: predlog.FrameTime(float64(i)), ClassIndex: classes[i], Speed: v})
	}
	return s
}

func TestTransitions(t *testing.T) {
	require.Equal(t, Accelerating, Stopped.Next(1, 1))
	require.Equal(t, Stopped, Stopped.Next(-1, 0))
	require.Equal(t, Cruising, Accelerating.Next(0, 5))
	require.Equal(t, Decelerating, Cruising.Next(-1, 4))
	require.Equal(t, Cruising, Decelerating.Next(0, 4))
	require.Equal(t, Stopped, Decelerating.Next(0, 0))
	require.Equal(t, Decelerating, Decelerating.Next(-1, 0))
	require.Equal(t, "Cruising", Cruising.String())
}

func TestFindPeriods(t *testing.T) {
	speeds := []float64{5, 5, 3, 0, 0, 2, 4, 4}
	classes := []int{0, 0, 0, 1, 1, 0, 0, 0}
	periods := FindPeriods(makeSamples(speeds, classes))
	// Decelerating at t=2 and t=3, Stopped at t=4, Accelerating at t=5
	require.Equal(t, []Period{{Severity: 3, Start: 2, End: 5, Classes: []int{0, 1, 1}}}, periods)
}

func TestFindPeriodsOpenAtEdges(t *testing.T) {
	// Starts stopped, moves, then stops again until the end of data
	speeds := []float64{0, 0, 3, 3, 1, 0}
	classes := []int{2, 2, 0, 0, 3, 3}
	periods := FindPeriods(makeSamples(speeds, classes))
	require.Equal(t, []Period{
		{Severity: 2, Start: 0, End: 2, Classes: []int{2, 2}},
		{Severity: 2, Start: 4, End: 5, Classes: []int{3, 3}},
	}, periods)
	require.Empty(t, FindPeriods(nil))
}

func TestReadAndJoin(t *testing.T) {
	track, err := predlog.ReadTrack(strings.NewReader("Frame Time,Class Index\n0.0,0\n0.5,0\n1.0,3\n1.5,3"))
	require.NoError(t, err)
	speeds, err := ReadSpeeds(strings.NewReader("Time,Speed\n1.0,0\n0.0,6"))
	require.NoError(t, err)
	samples, err := JoinSpeeds(track, speeds)
	require.NoError(t, err)
	require.Equal(t, []float64{6, 6, 0, 0}, []float64{samples[0].Speed, samples[1].Speed, samples[2].Speed, samples[3].Speed})

	combined, err := ReadSamples(strings.NewReader("Frame Time,Class Index,Speed\n0.0,0,6\n0.5,3,0"))
	require.NoError(t, err)
	require.Equal(t, []Sample{{Time: 0, ClassIndex: 0, Speed: 6}, {Time: 0.5, ClassIndex: 3, Speed: 0}}, combined)

	_, err = JoinSpeeds(track, nil)
	require.Error(t, err)
}

func TestDominantClass(t *testing.T) {
	p := Period{Classes: []int{3, 2, 3, 2, 1}}
	class, count := p.DominantClass()
	require.Equal(t, 2, class)
	require.Equal(t, 2, count)

	class, count = (&Period{}).DominantClass()
	require.Equal(t, -1, class)
	require.Equal(t, 0, count)
}
