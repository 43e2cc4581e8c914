package predlog

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/jszwec/csvutil"
)

// Package predlog records the predicted class of every classified frame, and
// exports the result as a CSV label track:
//
//	Frame Time,Class Index
//	0.0,0
//	0.033,0

// FrameTime is a playback time in seconds.
// In CSV it is written in shortest round-trip form, but always with a decimal point.
type FrameTime float64

func (f FrameTime) MarshalCSV() ([]byte, error) {
	s := strconv.FormatFloat(float64(f), 'f', -1, 64)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return []byte(s), nil
}

func (f *FrameTime) UnmarshalCSV(b []byte) error {
	v, err := strconv.ParseFloat(strings.TrimSpace(string(b)), 64)
	if err != nil {
		return err
	}
	*f = FrameTime(v)
	return nil
}

// Record is one row of the exported track
type Record struct {
	FrameTime  FrameTime `csv:"Frame Time"`
	ClassIndex int       `csv:"Class Index"`
}

// Recorder accumulates prediction records in the order that they were made.
// It is safe to call Export while the frame loop is still recording.
type Recorder struct {
	lock    sync.Mutex
	records []Record
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Record(frameTime float64, classIndex int) {
	r.lock.Lock()
	r.records = append(r.records, Record{FrameTime: FrameTime(frameTime), ClassIndex: classIndex})
	r.lock.Unlock()
}

func (r *Recorder) Len() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.records)
}

// Records returns a copy of all records
func (r *Recorder) Records() []Record {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]Record(nil), r.records...)
}

// Reset clears the log. This is only done when a new session starts.
func (r *Recorder) Reset() {
	r.lock.Lock()
	r.records = nil
	r.lock.Unlock()
}

// Export renders the header and every record, joined by newlines, without a trailing newline.
// Export does not clear the log.
func (r *Recorder) Export() (string, error) {
	return EncodeTrack(r.Records())
}

// EncodeTrack renders records in the export format
func EncodeTrack(records []Record) (string, error) {
	buf := bytes.Buffer{}
	w := csv.NewWriter(&buf)
	enc := csvutil.NewEncoder(w)
	if err := enc.EncodeHeader(Record{}); err != nil {
		return "", err
	}
	for i := range records {
		if err := enc.Encode(records[i]); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// ReadTrack parses an exported track
func ReadTrack(src io.Reader) ([]Record, error) {
	dec, err := csvutil.NewDecoder(csv.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("Failed to read track header: %w", err)
	}
	records := []Record{}
	for {
		rec := Record{}
		if err := dec.Decode(&rec); errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// TrackFilename returns the conventional filename of an exported track
func TrackFilename(sessionName string) string {
	return sessionName + "_predictions.csv"
}
