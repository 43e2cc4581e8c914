package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/teachable/pkg/dataset"
	"github.com/cyclopcam/teachable/pkg/extract"
	"github.com/cyclopcam/teachable/pkg/knn"
	"github.com/cyclopcam/teachable/pkg/player"
	"github.com/cyclopcam/teachable/pkg/scheduler"
	"github.com/stretchr/testify/require"
)

type blankSource struct {
	duration float64
}

func (b *blankSource) FrameAt(t float64) (*cimg.Image, error) { return nil, nil }
func (b *blankSource) Duration() float64                      { return b.duration }

// The embedding of a frame is just its timestamp
func timeExtractor() *extract.FuncExtractor {
	return extract.NewFuncExtractor(1, func(frame player.Frame) (knn.Embedding, error) {
		return knn.Embedding{float32(frame.Time)}, nil
	})
}

func newTestSession(t *testing.T, extractor extract.Extractor) (*Session, *scheduler.ManualScheduler) {
	sched := scheduler.NewManualScheduler(100 * time.Millisecond)
	s, err := New(logs.NewTestingLog(t), DefaultConfig(), extractor, sched)
	require.NoError(t, err)
	s.SetVideo("bus", &blankSource{duration: 1})
	return s, sched
}

func TestTrainingController(t *testing.T) {
	c := NewTrainingController(4)
	_, ok := c.Active()
	require.False(t, ok)

	require.NoError(t, c.Press(1))
	require.NoError(t, c.Press(2))
	active, ok := c.Active()
	require.True(t, ok)
	require.Equal(t, 2, active, "last press wins")

	// Releasing the button that lost does nothing
	require.NoError(t, c.Release(1))
	active, _ = c.Active()
	require.Equal(t, 2, active)

	require.NoError(t, c.Release(2))
	_, ok = c.Active()
	require.False(t, ok)

	require.ErrorIs(t, c.Press(4), knn.ErrInvalidClass)
	require.ErrorIs(t, c.Release(-1), knn.ErrInvalidClass)
}

func TestTickOrder(t *testing.T) {
	s, sched := newTestSession(t, timeExtractor())
	require.NoError(t, s.Start())
	require.True(t, s.Status().Running)

	// No examples yet, so nothing is classified
	require.True(t, sched.Step())
	require.Equal(t, 0, s.Status().NumPredictions)
	require.InDelta(t, 0.1, s.Status().CurrentTime, 1e-9)

	// The frame that is trained is classified in the same tick
	require.NoError(t, s.PressLabel(1))
	require.True(t, sched.Step())
	st := s.Status()
	require.Equal(t, []int{0, 1, 0, 0}, st.ExampleCounts)
	require.Equal(t, 1, st.NumPredictions)
	require.Equal(t, 1, st.LastPrediction.ClassIndex)
	require.Equal(t, []float32{0, 1, 0, 0}, st.LastPrediction.Confidences)

	require.NoError(t, s.ReleaseLabel(1))
	require.True(t, sched.Step())
	st = s.Status()
	require.Equal(t, []int{0, 1, 0, 0}, st.ExampleCounts)
	require.Equal(t, 2, st.NumPredictions)

	records := s.recorder.Records()
	require.InDelta(t, 0.1, float64(records[0].FrameTime), 1e-9)
	require.InDelta(t, 0.2, float64(records[1].FrameTime), 1e-9)
}

func TestStopCancelsTicks(t *testing.T) {
	s, sched := newTestSession(t, timeExtractor())
	require.NoError(t, s.Start())
	s.Stop()
	require.False(t, sched.Step())
	st := s.Status()
	require.False(t, st.Running)
	require.False(t, st.Playing)

	// Start while running restarts, leaving exactly one pending tick
	require.NoError(t, s.Start())
	require.NoError(t, s.Start())
	require.True(t, sched.Step())
	require.True(t, sched.Step())
	require.InDelta(t, 0.2, s.Status().CurrentTime, 1e-9)
}

func TestStopWaitsForTickInFlight(t *testing.T) {
	entered := make(chan bool, 1)
	release := make(chan bool)
	first := true
	ex := extract.NewFuncExtractor(1, func(frame player.Frame) (knn.Embedding, error) {
		if first {
			first = false
			entered <- true
			<-release
		}
		return knn.Embedding{float32(frame.Time)}, nil
	})
	s, sched := newTestSession(t, ex)
	require.NoError(t, s.PressLabel(0))
	require.NoError(t, s.Start())

	tickDone := make(chan bool)
	go func() {
		sched.Step()
		close(tickDone)
	}()
	<-entered

	restarted := make(chan error, 1)
	go func() {
		s.Stop()
		restarted <- s.Start()
	}()
	time.Sleep(20 * time.Millisecond)
	select {
	case <-restarted:
		t.Fatal("Stop returned while a tick was still extracting")
	default:
	}

	close(release)
	<-tickDone
	require.NoError(t, <-restarted)
	for i := 0; i < 3; i++ {
		require.True(t, sched.Step())
	}

	// Every frame was trained and recorded exactly once, in order
	records := s.recorder.Records()
	require.Len(t, records, 4)
	for i, r := range records {
		require.InDelta(t, float64(i)*0.1, float64(r.FrameTime), 1e-9)
	}
	require.Equal(t, []int{4, 0, 0, 0}, s.Status().ExampleCounts)
}

func TestExtractionFailureSkipsFrame(t *testing.T) {
	ex := extract.NewFuncExtractor(1, func(frame player.Frame) (knn.Embedding, error) {
		if frame.Time > 0.15 && frame.Time < 0.35 {
			return nil, errors.New("corrupt frame")
		}
		return knn.Embedding{float32(frame.Time)}, nil
	})
	s, sched := newTestSession(t, ex)
	require.NoError(t, s.PressLabel(0))
	require.NoError(t, s.Start())
	for i := 0; i < 5; i++ {
		require.True(t, sched.Step())
	}
	// Frames 0.2 and 0.3 failed
	st := s.Status()
	require.Equal(t, []int{3, 0, 0, 0}, st.ExampleCounts)
	require.Equal(t, 3, st.NumPredictions)
	require.EqualValues(t, 2, st.Ticks.Failures)
	require.EqualValues(t, 5, st.Ticks.Ticks)
	require.True(t, st.Running)
}

func TestEndOfVideo(t *testing.T) {
	s, sched := newTestSession(t, timeExtractor())
	require.NoError(t, s.PressLabel(3))
	require.NoError(t, s.Start())
	done := s.Done()
	for i := 0; i < 10; i++ {
		require.True(t, sched.Step())
	}
	<-done
	st := s.Status()
	require.True(t, st.Ended)
	require.False(t, st.Playing)
	require.Equal(t, 10, st.NumPredictions)

	// The loop keeps ticking while paused, but does nothing
	require.True(t, sched.Step())
	require.True(t, sched.Step())
	require.Equal(t, 10, s.Status().NumPredictions)
}

func TestStartAfterEndIsNewSession(t *testing.T) {
	s, sched := newTestSession(t, timeExtractor())
	require.NoError(t, s.PressLabel(3))
	require.NoError(t, s.Start())
	done := s.Done()
	for i := 0; i < 10; i++ {
		require.True(t, sched.Step())
	}
	<-done
	out, err := s.ExportPredictions()
	require.NoError(t, err)
	require.Contains(t, out, "\n0.9,3")
	firstID := s.Status().SessionID

	require.NoError(t, s.Start())
	st := s.Status()
	require.NotEqual(t, firstID, st.SessionID)
	require.Equal(t, 0, st.NumPredictions)
	require.False(t, st.Ended)
	require.Equal(t, []int{0, 0, 0, 10}, st.ExampleCounts)

	// The new pass has its own end signal
	done = s.Done()
	select {
	case <-done:
		t.Fatal("Done is already closed after a restart")
	default:
	}

	require.True(t, sched.Step())
	out, err = s.ExportPredictions()
	require.NoError(t, err)
	require.Equal(t, "Frame Time,Class Index\n0.0,3", out)
}

func TestDatasetRoundTrip(t *testing.T) {
	s, sched := newTestSession(t, timeExtractor())
	require.NoError(t, s.PressLabel(2))
	require.NoError(t, s.Start())
	require.True(t, sched.Step())
	require.True(t, sched.Step())
	s.Stop()
	blob := s.SaveDataset()
	require.Equal(t, []float32{0, 0.1}, blob["2"])

	// A bad blob leaves the existing examples alone
	err := s.LoadDataset(dataset.Blob{"2": {1, 2, 3}, "7": {1}})
	require.ErrorIs(t, err, dataset.ErrMalformedDataset)
	require.Equal(t, []int{0, 0, 2, 0}, s.Status().ExampleCounts)

	require.NoError(t, s.LoadDataset(dataset.Blob{"0": {5, 6, 7}}))
	require.Equal(t, []int{3, 0, 0, 0}, s.Status().ExampleCounts)
}

func TestSetVideoResetsLog(t *testing.T) {
	s, sched := newTestSession(t, timeExtractor())
	require.NoError(t, s.PressLabel(0))
	require.NoError(t, s.Start())
	require.True(t, sched.Step())
	firstID := s.Status().SessionID
	out, err := s.ExportPredictions()
	require.NoError(t, err)
	require.Equal(t, "Frame Time,Class Index\n0.0,0", out)

	s.SetVideo("second", &blankSource{duration: 2})
	st := s.Status()
	require.NotEqual(t, firstID, st.SessionID)
	require.Equal(t, 0, st.NumPredictions)
	require.Equal(t, []int{1, 0, 0, 0}, st.ExampleCounts, "examples survive a new video")
	require.Equal(t, -1, st.ActiveLabel)
	require.False(t, st.Running)
	require.False(t, sched.Step())
}

func TestToggleSpeed(t *testing.T) {
	sched := scheduler.NewManualScheduler(100 * time.Millisecond)
	s, err := New(logs.NewTestingLog(t), DefaultConfig(), timeExtractor(), sched)
	require.NoError(t, err)
	_, err = s.ToggleSpeed()
	require.ErrorIs(t, err, ErrNoVideo)
	require.ErrorIs(t, s.Start(), ErrNoVideo)

	s.SetVideo("bus", &blankSource{duration: 100})
	rate, err := s.ToggleSpeed()
	require.NoError(t, err)
	require.Equal(t, 10.0, rate)
	require.NoError(t, s.Start())
	require.True(t, sched.Step())
	require.InDelta(t, 1.0, s.Status().CurrentTime, 1e-9)
}

func TestWidthMismatch(t *testing.T) {
	config := DefaultConfig()
	config.EmbeddingWidth = 5
	_, err := New(logs.NewTestingLog(t), config, timeExtractor(), scheduler.NewManualScheduler(time.Second))
	require.Error(t, err)
}

func TestClassifyVideo(t *testing.T) {
	store := knn.NewExampleStore(4, 1)
	require.NoError(t, store.AddExample(0, knn.Embedding{0}))
	require.NoError(t, store.AddExample(1, knn.Embedding{1}))
	ex := extract.NewFuncExtractor(1, func(frame player.Frame) (knn.Embedding, error) {
		if frame.Time < 0.45 {
			return knn.Embedding{0.1}, nil
		}
		return knn.Embedding{0.9}, nil
	})
	config := DefaultConfig()
	config.K = 1
	records, err := ClassifyVideo(context.Background(), logs.NewTestingLog(t), config, ex, store, "bus", &blankSource{duration: 1}, 100*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, records, 10)
	for i, r := range records {
		require.InDelta(t, float64(i)*0.1, float64(r.FrameTime), 1e-6)
		if i < 5 {
			require.Equal(t, 0, r.ClassIndex)
		} else {
			require.Equal(t, 1, r.ClassIndex)
		}
	}

	_, err = ClassifyVideo(context.Background(), logs.NewTestingLog(t), config, ex, knn.NewExampleStore(4, 1), "bus", &blankSource{duration: 1}, 100*time.Millisecond)
	require.ErrorIs(t, err, knn.ErrEmptyStore)
}
