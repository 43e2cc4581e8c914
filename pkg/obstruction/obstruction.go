package obstruction

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/cyclopcam/teachable/pkg/predlog"
	"github.com/jszwec/csvutil"
)

// MotionState is the bus's state of motion, inferred from consecutive speed samples
type MotionState int

const (
	Stopped MotionState = iota
	Accelerating
	Cruising
	Decelerating
)

func (m MotionState) String() string {
	switch m {
	case Stopped:
		return "Stopped"
	case Accelerating:
		return "Accelerating"
	case Cruising:
		return "Cruising"
	case Decelerating:
		return "Decelerating"
	}
	return fmt.Sprintf("MotionState(%d)", int(m))
}

// Obstructed states are those where the bus is stopped, or on its way to stopping
func (m MotionState) Obstructed() bool {
	return m == Stopped || m == Decelerating
}

// Next returns the state after a sample with the given acceleration and speed.
// If no transition applies, the state is unchanged.
func (m MotionState) Next(acceleration, speed float64) MotionState {
	switch m {
	case Stopped:
		if acceleration > 0 {
			return Accelerating
		}
	case Accelerating:
		if acceleration < 0 {
			return Decelerating
		} else if acceleration == 0 {
			return Cruising
		}
	case Decelerating:
		if acceleration > 0 {
			return Accelerating
		} else if acceleration == 0 && speed > 0 {
			return Cruising
		} else if acceleration == 0 && speed == 0 {
			return Stopped
		}
	case Cruising:
		if acceleration < 0 {
			return Decelerating
		} else if acceleration > 0 {
			return Accelerating
		}
	}
	return m
}

// Sample is one row of a labeled track that has been joined with the bus's speed
type Sample struct {
	Time       predlog.FrameTime `csv:"Frame Time"`
	ClassIndex int               `csv:"Class Index"`
	Speed      float64           `csv:"Speed"`
}

// SpeedSample is one row of a speed log
type SpeedSample struct {
	Time  float64 `csv:"Time"`
	Speed float64 `csv:"Speed"`
}

// Period is a run of consecutive obstructed samples
type Period struct {
	Severity int     `json:"severity"` // Number of obstructed samples
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	Classes  []int   `json:"classes"` // Predicted class of each obstructed sample
}

// DominantClass returns the class predicted most often during the period, and its count.
// Ties go to the lowest class index. An empty period returns -1.
func (p *Period) DominantClass() (class, count int) {
	class = -1
	counts := map[int]int{}
	for _, c := range p.Classes {
		counts[c]++
	}
	for c, n := range counts {
		if n > count || (n == count && c < class) {
			class = c
			count = n
		}
	}
	return
}

// FindPeriods runs the motion state machine over the samples, and returns the obstruction periods.
// The initial state is Cruising if the first sample is moving, otherwise Stopped,
// in which case the first sample opens a period.
// A period ends at the time of the first unobstructed sample. A period that is
// still open after the last sample ends at the last sample.
func FindPeriods(samples []Sample) []Period {
	if len(samples) == 0 {
		return nil
	}
	state := Cruising
	if samples[0].Speed <= 0 {
		state = Stopped
	}
	periods := []Period{}
	var current *Period
	if state.Obstructed() {
		current = &Period{Start: float64(samples[0].Time), Severity: 1, Classes: []int{samples[0].ClassIndex}}
	}
	for i := 1; i < len(samples); i++ {
		acceleration := samples[i].Speed - samples[i-1].Speed
		state = state.Next(acceleration, samples[i].Speed)
		t := float64(samples[i].Time)
		if state.Obstructed() {
			if current == nil {
				current = &Period{Start: t}
			}
			current.Severity++
			current.Classes = append(current.Classes, samples[i].ClassIndex)
		} else if current != nil {
			current.End = t
			periods = append(periods, *current)
			current = nil
		}
	}
	if current != nil {
		current.End = float64(samples[len(samples)-1].Time)
		periods = append(periods, *current)
	}
	return periods
}

// ReadSamples parses a CSV with the columns "Frame Time,Class Index,Speed"
func ReadSamples(r io.Reader) ([]Sample, error) {
	return readAll[Sample](r)
}

// ReadSpeeds parses a CSV with the columns "Time,Speed"
func ReadSpeeds(r io.Reader) ([]SpeedSample, error) {
	return readAll[SpeedSample](r)
}

func readAll[T any](r io.Reader) ([]T, error) {
	dec, err := csvutil.NewDecoder(csv.NewReader(r))
	if err != nil {
		return nil, fmt.Errorf("Failed to read CSV header: %w", err)
	}
	all := []T{}
	for {
		var v T
		if err := dec.Decode(&v); errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return nil, err
		}
		all = append(all, v)
	}
	return all, nil
}

// JoinSpeeds attaches a speed to every record of a prediction track.
// Each record gets the most recent speed at or before its frame time.
// Records before the first speed sample get the first speed.
func JoinSpeeds(records []predlog.Record, speeds []SpeedSample) ([]Sample, error) {
	if len(speeds) == 0 {
		return nil, fmt.Errorf("Speed log is empty")
	}
	sorted := append([]SpeedSample{}, speeds...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time < sorted[j].Time })
	samples := make([]Sample, 0, len(records))
	for _, rec := range records {
		t := float64(rec.FrameTime)
		i := sort.Search(len(sorted), func(i int) bool { return sorted[i].Time > t }) - 1
		i = max(i, 0)
		samples = append(samples, Sample{
			Time:       rec.FrameTime,
			ClassIndex: rec.ClassIndex,
			Speed:      sorted[i].Speed,
		})
	}
	return samples, nil
}
