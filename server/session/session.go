package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/teachable/pkg/dataset"
	"github.com/cyclopcam/teachable/pkg/extract"
	"github.com/cyclopcam/teachable/pkg/knn"
	"github.com/cyclopcam/teachable/pkg/logx"
	"github.com/cyclopcam/teachable/pkg/perfstats"
	"github.com/cyclopcam/teachable/pkg/player"
	"github.com/cyclopcam/teachable/pkg/predlog"
	"github.com/cyclopcam/teachable/pkg/scheduler"
	"github.com/google/uuid"
)

var ErrNoVideo = errors.New("No video selected")

// DefaultLabels are the classes of the bus route labeling task
var DefaultLabels = []string{
	"Moving",
	"Stopped @ Bus Stop",
	"Stopped @ Intersection",
	"Stopped @ Obstruction",
}

type Config struct {
	Labels         []string `json:"labels"`         // One button per label. The number of labels is the number of classes.
	K              int      `json:"k"`              // Number of neighbors that vote on each prediction
	EmbeddingWidth int      `json:"embeddingWidth"` // Zero to use the extractor's width
	FastRate       float64  `json:"fastRate"`       // Playback rate when fast-forwarding
}

func DefaultConfig() Config {
	return Config{
		Labels:   append([]string{}, DefaultLabels...),
		K:        knn.DefaultK,
		FastRate: player.DefaultFastRate,
	}
}

// Status is a snapshot of the session, for display
type Status struct {
	SessionID      string            `json:"sessionID"`
	Video          string            `json:"video"`
	Labels         []string          `json:"labels"`
	ExampleCounts  []int             `json:"exampleCounts"`
	ActiveLabel    int               `json:"activeLabel"` // -1 if no button is held
	LastPrediction *knn.Prediction   `json:"lastPrediction"`
	NumPredictions int               `json:"numPredictions"`
	Running        bool              `json:"running"`
	Playing        bool              `json:"playing"`
	Ended          bool              `json:"ended"`
	Rate           float64           `json:"rate"`
	CurrentTime    float64           `json:"currentTime"`
	Duration       float64           `json:"duration"`
	Ticks          perfstats.Summary `json:"ticks"`
}

// Session is one operator's labeling session.
// It owns the example store (through the classifier), the training controller,
// the prediction log, and the frame loop over the selected video.
// All access to the store and the training controller goes through 'lock'.
// Embedding extraction runs outside of the lock, because it is slow.
type Session struct {
	Log logs.Log

	config    Config
	extractor extract.Extractor
	scheduler scheduler.Scheduler
	stats     *perfstats.TickStats
	recorder  *predlog.Recorder

	lock           sync.Mutex
	classifier     *knn.Classifier
	trainer        *TrainingController
	lastPrediction *knn.Prediction
	id             string
	videoName      string
	player         *player.Player
	loop           *Loop
	done           chan struct{}
	doneClosed     bool
}

func New(log logs.Log, config Config, extractor extract.Extractor, sched scheduler.Scheduler) (*Session, error) {
	if len(config.Labels) == 0 {
		return nil, fmt.Errorf("At least one label is required")
	}
	if config.EmbeddingWidth == 0 {
		config.EmbeddingWidth = extractor.Width()
	} else if config.EmbeddingWidth != extractor.Width() {
		return nil, fmt.Errorf("Embedding width %v does not match the extractor's width %v", config.EmbeddingWidth, extractor.Width())
	}
	if config.K <= 0 {
		config.K = knn.DefaultK
	}
	store := knn.NewExampleStore(len(config.Labels), config.EmbeddingWidth)
	return &Session{
		Log:        logx.NewPrefixLogger(log, "Session:"),
		config:     config,
		extractor:  extractor,
		scheduler:  sched,
		stats:      perfstats.NewTickStats(120),
		recorder:   predlog.NewRecorder(),
		classifier: knn.NewClassifier(store, config.K),
		trainer:    NewTrainingController(len(config.Labels)),
		done:       make(chan struct{}),
	}, nil
}

func (s *Session) Config() Config {
	return s.config
}

// SetVideo selects a new video, and starts a new session over it.
// The frame loop is stopped, and the prediction log is cleared. Training examples are kept.
func (s *Session) SetVideo(name string, source player.FrameSource) {
	s.lock.Lock()
	oldLoop := s.loop
	s.lock.Unlock()
	if oldLoop != nil {
		oldLoop.Stop()
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	s.videoName = name
	s.player = player.NewPlayer(source, s.config.FastRate)
	s.loop = newLoop(s.Log, s.player, s.extractor, s.scheduler, s, s.stats)
	s.trainer.Reset()
	s.newSessionLocked()
}

// Clear the prediction log, and everything else that belongs to one pass over the video
func (s *Session) newSessionLocked() {
	s.id = uuid.NewString()
	s.lastPrediction = nil
	s.recorder.Reset()
	s.stats.Reset()
	s.done = make(chan struct{})
	s.doneClosed = false
	s.Log.Infof("New session %v for video '%v' (%.1f seconds)", s.id, s.videoName, s.player.Source().Duration())
}

func (s *Session) currentLoop() (*Loop, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.loop == nil {
		return nil, ErrNoVideo
	}
	return s.loop, nil
}

// Start playback and the frame loop.
// Starting after the video has ended plays it again from the beginning, as a new session.
func (s *Session) Start() error {
	loop, err := s.currentLoop()
	if err != nil {
		return err
	}
	if loop.player.Ended() {
		s.lock.Lock()
		if loop == s.loop {
			s.newSessionLocked()
		}
		s.lock.Unlock()
	}
	loop.Start()
	return nil
}

// Stop playback and the frame loop
func (s *Session) Stop() {
	if loop, err := s.currentLoop(); err == nil {
		loop.Stop()
	}
}

func (s *Session) PressLabel(class int) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.trainer.Press(class)
}

func (s *Session) ReleaseLabel(class int) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.trainer.Release(class)
}

// ToggleSpeed switches between normal playback and fast-forward, and returns the new rate
func (s *Session) ToggleSpeed() (float64, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.player == nil {
		return 0, ErrNoVideo
	}
	return s.player.ToggleSpeed(), nil
}

// SaveDataset flattens the current training examples
func (s *Session) SaveDataset() dataset.Blob {
	s.lock.Lock()
	defer s.lock.Unlock()
	return dataset.Save(s.classifier.Store())
}

// LoadDataset replaces all training examples with those in blob.
// If the blob is invalid, the existing examples are kept.
func (s *Session) LoadDataset(blob dataset.Blob) error {
	store, err := dataset.Load(blob, len(s.config.Labels), s.config.EmbeddingWidth)
	if err != nil {
		return err
	}
	s.lock.Lock()
	s.classifier.SetStore(store)
	s.lock.Unlock()
	s.Log.Infof("Loaded dataset with %v examples %v", store.TotalExampleCount(), store.ClassExampleCount())
	return nil
}

// CloneStore returns a copy of the training examples, which can be used without holding up the session
func (s *Session) CloneStore() *knn.ExampleStore {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.classifier.Store().Clone()
}

// ExportPredictions renders the prediction log as CSV
func (s *Session) ExportPredictions() (string, error) {
	return s.recorder.Export()
}

// VideoName returns the name of the selected video, or an empty string
func (s *Session) VideoName() string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.videoName
}

// Done is closed when playback reaches the end of the video.
// Selecting a new video creates a new channel.
func (s *Session) Done() <-chan struct{} {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.done
}

func (s *Session) Status() Status {
	s.lock.Lock()
	defer s.lock.Unlock()
	active, ok := s.trainer.Active()
	if !ok {
		active = -1
	}
	st := Status{
		SessionID:      s.id,
		Video:          s.videoName,
		Labels:         s.config.Labels,
		ExampleCounts:  s.classifier.Store().ClassExampleCount(),
		ActiveLabel:    active,
		LastPrediction: s.lastPrediction,
		NumPredictions: s.recorder.Len(),
		Ticks:          s.stats.Summary(),
	}
	if s.player != nil {
		st.Running = s.loop.Running()
		st.Playing = s.player.Playing()
		st.Ended = s.player.Ended()
		st.Rate = s.player.Rate()
		st.CurrentTime = s.player.CurrentTime()
		st.Duration = s.player.Source().Duration()
	}
	return st
}

// Close stops the frame loop
func (s *Session) Close() {
	s.Stop()
}

// Train with the held label (if any), then classify and record (if there are any examples)
func (s *Session) handleEmbedding(loop *Loop, frameTime float64, emb knn.Embedding) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if loop != s.loop {
		// A tick from a previous video that was still in flight
		return
	}
	if class, ok := s.trainer.Active(); ok {
		if err := s.classifier.Store().AddExample(class, emb); err != nil {
			s.Log.Errorf("Failed to add example: %v", err)
		} else {
			examplesAddedTotal.WithLabelValues(classLabel(class)).Inc()
		}
	}
	if s.classifier.Store().TotalExampleCount() == 0 {
		return
	}
	pred, err := s.classifier.Predict(emb)
	if err != nil {
		s.Log.Errorf("Prediction failed at %.3f: %v", frameTime, err)
		return
	}
	s.lastPrediction = pred
	s.recorder.Record(frameTime, pred.ClassIndex)
	predictionsTotal.WithLabelValues(classLabel(pred.ClassIndex)).Inc()
}

func (s *Session) handleEnded(loop *Loop) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if loop != s.loop || s.doneClosed {
		return
	}
	s.doneClosed = true
	close(s.done)
	s.Log.Infof("Reached the end of '%v', with %v predictions", s.videoName, s.recorder.Len())
}
