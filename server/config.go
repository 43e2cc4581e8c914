package server

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/teachable/pkg/extract"
	"github.com/cyclopcam/teachable/pkg/kibi"
	"github.com/cyclopcam/teachable/server/annotate"
	"github.com/cyclopcam/teachable/server/session"
)

type Config struct {
	Listen       string          `json:"listen"` // eg ":8080"
	Session      session.Config  `json:"session"`
	RefreshHz    float64         `json:"refreshHz"` // Rate of the frame loop during interactive playback
	Extractor    ExtractorConfig `json:"extractor"`
	Video        VideoConfig     `json:"video"`
	Storage      StorageConfig   `json:"storage"`
	AnnotationDB *dbh.DBConfig   `json:"annotationDB"` // nil to disable annotation jobs
	Annotate     annotate.Config `json:"annotate"`
	Redis        *RedisConfig    `json:"redis"` // nil to skip publishing finished annotations
	Limits       LimitsConfig    `json:"limits"`
}

// Upload limits, eg "256 MB"
type LimitsConfig struct {
	MaxVideoSize   kibi.ByteSize `json:"maxVideoSize"`
	MaxDatasetSize kibi.ByteSize `json:"maxDatasetSize"`
}

// Exactly one extractor must be configured
type ExtractorConfig struct {
	Pixels *PixelsConfig       `json:"pixels"`
	ONNX   *extract.ONNXConfig `json:"onnx"`
}

type PixelsConfig struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// How selected videos are decoded into frames for playback
type VideoConfig struct {
	FPS        float64 `json:"fps"`
	FrameWidth int     `json:"frameWidth"` // Zero to keep the video's width
	WorkDir    string  `json:"workDir"`    // Decoded frames go here
}

// One of the storage options must be configured (i.e. either 'filesystem' or 'gcs')
type StorageConfig struct {
	Filesystem *StorageConfigFS  `json:"filesystem"`
	GCS        *StorageConfigGCS `json:"gcs"`
}

type StorageConfigFS struct {
	Root string `json:"root"` // Path to the root of the filesystem
}

type StorageConfigGCS struct {
	Bucket string `json:"bucket"` // Name of the GCS bucket
	Public bool   `json:"public"` // Whether the bucket is public
}

type RedisConfig struct {
	Addr  string `json:"addr"`  // eg "localhost:6379"
	Queue string `json:"queue"` // Name of the list that finished annotations are pushed onto
}

func DefaultConfig() Config {
	return Config{
		Listen:    ":8080",
		Session:   session.DefaultConfig(),
		RefreshHz: 60,
		Extractor: ExtractorConfig{
			Pixels: &PixelsConfig{Width: 16, Height: 16},
		},
		Video: VideoConfig{
			FPS:        30,
			FrameWidth: 640,
			WorkDir:    os.TempDir(),
		},
		Storage: StorageConfig{
			Filesystem: &StorageConfigFS{Root: "teachable-data"},
		},
		Annotate: annotate.Config{
			FPS:        10,
			FrameWidth: 640,
		},
		Limits: LimitsConfig{
			MaxVideoSize:   2 * kibi.GB,
			MaxDatasetSize: 256 * kibi.MB,
		},
	}
}

// LoadConfig reads a JSON config file. Fields that are missing from the file keep their default values.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()
	if filename != "" {
		raw, err := os.ReadFile(filename)
		if err != nil {
			return nil, err
		}
		// Replace the default extractor and storage if the file specifies its own
		probe := struct {
			Extractor *json.RawMessage `json:"extractor"`
			Storage   *json.RawMessage `json:"storage"`
		}{}
		if err := json.Unmarshal(raw, &probe); err != nil {
			return nil, fmt.Errorf("Error parsing config file %v: %w", filename, err)
		}
		if probe.Extractor != nil {
			cfg.Extractor = ExtractorConfig{}
		}
		if probe.Storage != nil {
			cfg.Storage = StorageConfig{}
		}
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("Error parsing config file %v: %w", filename, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if len(c.Session.Labels) == 0 {
		return fmt.Errorf("session.labels must not be empty")
	}
	if c.RefreshHz <= 0 {
		return fmt.Errorf("refreshHz must be positive")
	}
	if c.Video.FPS <= 0 {
		return fmt.Errorf("video.fps must be positive")
	}
	if (c.Extractor.Pixels == nil) == (c.Extractor.ONNX == nil) {
		return fmt.Errorf("Exactly one of extractor.pixels or extractor.onnx must be configured")
	}
	if c.Extractor.Pixels != nil && (c.Extractor.Pixels.Width <= 0 || c.Extractor.Pixels.Height <= 0) {
		return fmt.Errorf("extractor.pixels needs a positive width and height")
	}
	if (c.Storage.Filesystem == nil) == (c.Storage.GCS == nil) {
		return fmt.Errorf("Exactly one of storage.filesystem or storage.gcs must be configured")
	}
	if c.Limits.MaxVideoSize <= 0 || c.Limits.MaxDatasetSize <= 0 {
		return fmt.Errorf("limits must be positive")
	}
	if c.Redis != nil && (c.Redis.Addr == "" || c.Redis.Queue == "") {
		return fmt.Errorf("redis needs an addr and a queue")
	}
	return nil
}
