package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/teachable/pkg/extract"
	"github.com/cyclopcam/teachable/pkg/kibi"
	"github.com/cyclopcam/teachable/pkg/player"
	"github.com/cyclopcam/teachable/pkg/scheduler"
	"github.com/cyclopcam/teachable/pkg/videox"
	"github.com/cyclopcam/teachable/server/annotate"
	"github.com/cyclopcam/teachable/server/session"
	"github.com/cyclopcam/teachable/server/storage"
	"github.com/julienschmidt/httprouter"
)

// Server exposes a labeling session to an operator over HTTP
type Server struct {
	Log logs.Log

	config     Config
	extractor  extract.Extractor
	session    *session.Session
	storage    storage.Storage
	annotator  *annotate.Annotator   // nil if annotation jobs are disabled
	queue      *annotate.RedisQueue  // nil if redis is not configured
	signalIn   chan os.Signal
	httpServer *http.Server
	httpRouter *httprouter.Router

	ShutdownComplete chan error // Receives a value once Shutdown has released all resources
	shutdownOnce     sync.Once

	videoLock sync.Mutex
	frames    *player.DirSource // Decoded frames of the selected video
}

func NewServer(logger logs.Log, cfg Config) (*Server, error) {
	extractor, err := NewExtractor(logger, cfg.Extractor)
	if err != nil {
		return nil, err
	}
	s, err := newServer(logger, cfg, extractor, scheduler.NewRefreshScheduler(cfg.RefreshHz))
	if err != nil {
		extractor.Close()
		return nil, err
	}
	return s, nil
}

// NewExtractor creates the embedding extractor described by cfg
func NewExtractor(logger logs.Log, cfg ExtractorConfig) (extract.Extractor, error) {
	if cfg.ONNX != nil {
		onnx, err := extract.NewONNXExtractor(logger, *cfg.ONNX)
		if err != nil {
			return nil, err
		}
		return onnx, nil
	}
	if cfg.Pixels != nil {
		return extract.NewPixelExtractor(cfg.Pixels.Width, cfg.Pixels.Height), nil
	}
	return nil, fmt.Errorf("No extractor configured")
}

func newServer(logger logs.Log, cfg Config, extractor extract.Extractor, sched scheduler.Scheduler) (*Server, error) {
	sess, err := session.New(logger, cfg.Session, extractor, sched)
	if err != nil {
		return nil, err
	}

	// Open blob store
	var store storage.Storage
	if cfg.Storage.GCS != nil {
		store, err = storage.NewStorageGCS(context.Background(), logger, cfg.Storage.GCS.Bucket, cfg.Storage.GCS.Public)
	} else if cfg.Storage.Filesystem != nil {
		store, err = storage.NewStorageFS(logger, cfg.Storage.Filesystem.Root)
	} else {
		err = fmt.Errorf("One of the storage options must be configured (i.e. either 'filesystem' or 'gcs')")
	}
	if err != nil {
		return nil, err
	}

	s := &Server{
		Log:              logger,
		config:           cfg,
		extractor:        extractor,
		session:          sess,
		storage:          store,
		ShutdownComplete: make(chan error, 1),
	}

	if cfg.AnnotationDB != nil {
		var publisher annotate.Publisher
		if cfg.Redis != nil {
			s.queue, err = annotate.ConnectRedisQueue(context.Background(), cfg.Redis.Addr, cfg.Redis.Queue)
			if err != nil {
				return nil, err
			}
			publisher = s.queue
		}
		s.annotator, err = annotate.NewAnnotator(logger, *cfg.AnnotationDB, cfg.Annotate, store, sess, extractor, publisher)
		if err != nil {
			return nil, err
		}
		if err := s.annotator.Start(); err != nil {
			return nil, err
		}
	}

	s.setupHttpRoutes()
	return s, nil
}

// SelectVideo decodes a stored video into frames, and starts a new session over it.
// The session is left stopped.
func (s *Server) SelectVideo(name string) error {
	s.videoLock.Lock()
	defer s.videoLock.Unlock()

	workDir, err := os.MkdirTemp(s.config.Video.WorkDir, "video-")
	if err != nil {
		return err
	}
	frames, err := s.decodeVideo(name, workDir)
	if err != nil {
		os.RemoveAll(workDir)
		return err
	}
	s.session.SetVideo(annotate.VideoBaseName(name), frames)
	if s.frames != nil {
		s.frames.Remove()
	}
	s.frames = frames
	return nil
}

func (s *Server) decodeVideo(name, workDir string) (*player.DirSource, error) {
	local := filepath.Join(workDir, "video"+filepath.Ext(name))
	if err := storage.DownloadFile(context.Background(), s.storage, storage.VideoPrefix+name, local); err != nil {
		return nil, fmt.Errorf("Failed to fetch video %v: %w", name, err)
	}
	if duration, err := videox.ExtractVideoDuration(local); err == nil {
		size := int64(0)
		if st, err := os.Stat(local); err == nil {
			size = st.Size()
		}
		s.Log.Infof("Decoding %v (%v, %.1f seconds) at %v FPS", name, kibi.ByteSize(size), duration.Seconds(), s.config.Video.FPS)
	}
	framesDir := filepath.Join(workDir, "frames")
	if _, err := videox.ExtractFrames(local, s.config.Video.FPS, framesDir, s.config.Video.FrameWidth); err != nil {
		return nil, err
	}
	os.Remove(local)
	return player.OpenDirSource(framesDir, s.config.Video.FPS)
}

// port example: ":8081"
func (s *Server) ListenHTTP(port string) error {
	s.Log.Infof("Listening on %v", port)
	s.httpServer = &http.Server{
		Addr:    port,
		Handler: s.httpRouter,
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) ListenForKillSignals() {
	s.signalIn = make(chan os.Signal, 1)
	signal.Notify(s.signalIn, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig, ok := <-s.signalIn
		if ok {
			s.Log.Infof("Received OS signal '%v'", sig.String())
			s.Shutdown()
		}
	}()
}

func (s *Server) Shutdown() {
	s.shutdownOnce.Do(s.shutdown)
}

func (s *Server) shutdown() {
	s.Log.Infof("Shutdown")
	if s.signalIn != nil {
		signal.Stop(s.signalIn)
	}
	s.session.Close()
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.Log.Warnf("HTTP server shutdown: %v", err)
		}
	}
	if s.annotator != nil {
		s.annotator.Close()
	}
	if s.queue != nil {
		s.queue.Close()
	}
	s.extractor.Close()
	s.videoLock.Lock()
	if s.frames != nil {
		s.frames.Remove()
		s.frames = nil
	}
	s.videoLock.Unlock()
	s.Log.Infof("Shutdown complete")
	s.ShutdownComplete <- nil
}
