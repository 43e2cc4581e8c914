package annotate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/teachable/pkg/extract"
	"github.com/cyclopcam/teachable/pkg/knn"
	"github.com/cyclopcam/teachable/pkg/logx"
	"github.com/cyclopcam/teachable/pkg/player"
	"github.com/cyclopcam/teachable/pkg/predlog"
	"github.com/cyclopcam/teachable/pkg/videox"
	"github.com/cyclopcam/teachable/server/session"
	"github.com/cyclopcam/teachable/server/storage"
	"gorm.io/gorm"
)

var ErrJobNotFound = errors.New("Annotation job not found")

// ExampleSource provides the classifier that annotation jobs run with.
// The live session satisfies this.
type ExampleSource interface {
	Config() session.Config
	CloneStore() *knn.ExampleStore
}

// FrameExtractorFunc decodes a video file into numbered JPEG frames, and returns the number of frames
type FrameExtractorFunc func(videoFile string, fps float64, dstDir string, outputWidth int) (int, error)

type Config struct {
	FPS        float64 `json:"fps"`        // Rate at which frames are sampled from the video
	FrameWidth int     `json:"frameWidth"` // Width of the extracted frames. Zero to keep the video's width.
	WorkDir    string  `json:"workDir"`    // Scratch space for downloaded videos and frames
}

// Annotator runs annotation jobs in the background, one at a time.
// Jobs are recorded in the DB, so that queued jobs survive a restart.
type Annotator struct {
	Log           logs.Log
	ExtractFrames FrameExtractorFunc

	config    Config
	db        *gorm.DB
	store     storage.Storage
	examples  ExampleSource
	extractor extract.Extractor
	publisher Publisher // nil if there is no process queue

	wake     chan bool
	ctx      context.Context
	cancel   context.CancelFunc
	threadWG sync.WaitGroup
}

// Open the job DB, and return an Annotator. Call Start to begin processing jobs.
func NewAnnotator(log logs.Log, dbConfig dbh.DBConfig, config Config, store storage.Storage, examples ExampleSource, extractor extract.Extractor, publisher Publisher) (*Annotator, error) {
	if config.FPS <= 0 {
		config.FPS = 10
	}
	if config.WorkDir == "" {
		config.WorkDir = os.TempDir()
	}
	if err := os.MkdirAll(config.WorkDir, 0770); err != nil {
		return nil, err
	}
	if dbConfig.Driver != dbh.DriverSqlite && dbConfig.Driver != dbh.DriverPostgres {
		return nil, fmt.Errorf("Unsupported annotation DB driver '%v'", dbConfig.Driver)
	}
	db, err := dbh.OpenDB(log, dbConfig, Migrations(log, dbConfig.Driver), 0)
	if err != nil {
		return nil, fmt.Errorf("Failed to open annotation DB %v: %w", dbConfig.LogSafeDescription(), err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Annotator{
		Log:           logx.NewPrefixLogger(log, "Annotate:"),
		ExtractFrames: videox.ExtractFrames,
		config:        config,
		db:            db,
		store:         store,
		examples:      examples,
		extractor:     extractor,
		publisher:     publisher,
		wake:          make(chan bool, 1),
		ctx:           ctx,
		cancel:        cancel,
	}, nil
}

// Start the background thread. Jobs that were interrupted by a previous shutdown are run again.
func (a *Annotator) Start() error {
	if err := a.db.Model(&Job{}).Where("status = ?", JobStatusRunning).Update("status", JobStatusQueued).Error; err != nil {
		return err
	}
	a.threadWG.Add(1)
	go a.thread()
	a.signal()
	return nil
}

// Close stops the background thread, after the current job is abandoned
func (a *Annotator) Close() {
	a.cancel()
	a.threadWG.Wait()
	if sqlDB, err := a.db.DB(); err == nil {
		sqlDB.Close()
	}
}

// Submit queues a job to annotate 'video', which must exist in storage under storage.VideoPrefix
func (a *Annotator) Submit(video string) (*Job, error) {
	if _, err := storage.CleanName(video); err != nil {
		return nil, err
	}
	job := &Job{
		Video:     video,
		Status:    JobStatusQueued,
		CreatedAt: dbh.MakeIntTime(time.Now()),
	}
	if err := a.db.Create(job).Error; err != nil {
		return nil, err
	}
	a.Log.Infof("Queued job %v for video %v", job.ID, video)
	a.signal()
	return job, nil
}

func (a *Annotator) Get(id int64) (*Job, error) {
	job := Job{}
	if err := a.db.First(&job, id).Error; errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrJobNotFound
	} else if err != nil {
		return nil, err
	}
	return &job, nil
}

// List returns the most recent jobs, newest first
func (a *Annotator) List(limit int) ([]Job, error) {
	jobs := []Job{}
	err := a.db.Order("id DESC").Limit(limit).Find(&jobs).Error
	return jobs, err
}

func (a *Annotator) signal() {
	select {
	case a.wake <- true:
	default:
	}
}

func (a *Annotator) thread() {
	defer a.threadWG.Done()
	for {
		select {
		case <-a.ctx.Done():
			return
		case <-a.wake:
		}
		// Drain the queue
		for a.ctx.Err() == nil {
			job := Job{}
			err := a.db.Where("status = ?", JobStatusQueued).Order("id").Limit(1).Find(&job).Error
			if err != nil {
				a.Log.Errorf("Failed to read job queue: %v", err)
				break
			}
			if job.ID == 0 {
				break
			}
			a.runJob(&job)
		}
	}
}

func (a *Annotator) runJob(job *Job) {
	a.Log.Infof("Starting job %v (%v)", job.ID, job.Video)
	if err := a.db.Model(job).Update("status", JobStatusRunning).Error; err != nil {
		a.Log.Errorf("Failed to mark job %v as running: %v", job.ID, err)
	}

	numFrames, records, annotationsPath, err := a.process(job.Video)
	updates := map[string]any{
		"finished_at": dbh.MakeIntTime(time.Now()),
		"num_frames":  numFrames,
	}
	if err != nil {
		if a.ctx.Err() != nil {
			// Shutting down. Leave the job for the next run.
			if err := a.db.Model(job).Update("status", JobStatusQueued).Error; err != nil {
				a.Log.Errorf("Failed to requeue job %v: %v", job.ID, err)
			}
			return
		}
		a.Log.Errorf("Job %v failed: %v", job.ID, err)
		updates["status"] = JobStatusFailed
		updates["error"] = err.Error()
	} else {
		a.Log.Infof("Job %v done: %v predictions written to %v", job.ID, len(records), annotationsPath)
		updates["status"] = JobStatusDone
		updates["annotations_path"] = annotationsPath
		updates["num_predictions"] = len(records)
	}
	if err := a.db.Model(job).Updates(updates).Error; err != nil {
		a.Log.Errorf("Failed to update job %v: %v", job.ID, err)
	}
}

// Download the video, split it into frames, classify every frame, and upload the prediction track
func (a *Annotator) process(video string) (numFrames int, records []predlog.Record, annotationsPath string, err error) {
	tmpDir, err := os.MkdirTemp(a.config.WorkDir, "annotate-")
	if err != nil {
		return 0, nil, "", err
	}
	defer os.RemoveAll(tmpDir)

	videoPath := storage.VideoPrefix + video
	localVideo := filepath.Join(tmpDir, "video"+path.Ext(video))
	if err := storage.DownloadFile(a.ctx, a.store, videoPath, localVideo); err != nil {
		return 0, nil, "", fmt.Errorf("Failed to fetch %v: %w", videoPath, err)
	}

	framesDir := filepath.Join(tmpDir, "frames")
	numFrames, err = a.ExtractFrames(localVideo, a.config.FPS, framesDir, a.config.FrameWidth)
	if err != nil {
		return 0, nil, "", err
	}
	src, err := player.OpenDirSource(framesDir, a.config.FPS)
	if err != nil {
		return numFrames, nil, "", err
	}

	base := VideoBaseName(video)
	frameInterval := time.Duration(float64(time.Second) / a.config.FPS)
	records, err = session.ClassifyVideo(a.ctx, a.Log, a.examples.Config(), a.extractor, a.examples.CloneStore(), base, src, frameInterval)
	if err != nil {
		return numFrames, nil, "", err
	}

	track, err := predlog.EncodeTrack(records)
	if err != nil {
		return numFrames, nil, "", err
	}
	annotationsPath = storage.AnnotationPrefix + predlog.TrackFilename(base)
	if err := storage.WriteFile(a.ctx, a.store, annotationsPath, strings.NewReader(track)); err != nil {
		return numFrames, nil, "", err
	}

	if a.publisher != nil {
		item := ProcessItem{
			AnnotationsPath: annotationsPath,
			VideoPath:       videoPath,
		}
		if err := a.publisher.Publish(a.ctx, item); err != nil {
			// The track is safely stored, so this does not fail the job
			a.Log.Warnf("Failed to publish %v: %v", annotationsPath, err)
		}
	}
	return numFrames, records, annotationsPath, nil
}

// VideoBaseName strips the directory and extension from a video name, so "buses/route7.mp4" becomes "route7"
func VideoBaseName(video string) string {
	base := path.Base(video)
	if i := strings.Index(base, "."); i > 0 {
		base = base[:i]
	}
	return base
}
