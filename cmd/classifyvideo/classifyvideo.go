package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/teachable/pkg/dataset"
	"github.com/cyclopcam/teachable/pkg/player"
	"github.com/cyclopcam/teachable/pkg/predlog"
	"github.com/cyclopcam/teachable/pkg/videox"
	"github.com/cyclopcam/teachable/server"
	"github.com/cyclopcam/teachable/server/annotate"
	"github.com/cyclopcam/teachable/server/session"
)

func check(err error) {
	if err != nil {
		panic(err)
	}
}

func main() {
	parser := argparse.NewParser("classifyvideo", "Classify every frame of a video against a saved dataset, and write the prediction track")
	input := parser.String("i", "input", &argparse.Options{Help: "Input video file", Required: true})
	datasetFile := parser.String("d", "dataset", &argparse.Options{Help: "Dataset file, as downloaded from the labeling session", Required: true})
	output := parser.String("o", "output", &argparse.Options{Help: "Output CSV file (default is <video>_predictions.csv)", Default: ""})
	configFile := parser.String("c", "config", &argparse.Options{Help: "JSON config file (labels, extractor)", Default: ""})
	fps := parser.Float("f", "fps", &argparse.Options{Help: "Frames per second to sample from the video", Default: 10.0})
	width := parser.Int("w", "width", &argparse.Options{Help: "Scale frames to this width before extraction (0 = original size)", Default: 640})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, _ := logs.NewLog()

	cfg, err := server.LoadConfig(*configFile)
	check(err)
	extractor, err := server.NewExtractor(logger, cfg.Extractor)
	check(err)
	defer extractor.Close()

	f, err := os.Open(*datasetFile)
	check(err)
	blob, err := dataset.Decode(f)
	f.Close()
	check(err)
	if cfg.Session.EmbeddingWidth == 0 {
		cfg.Session.EmbeddingWidth = extractor.Width()
	}
	store, err := dataset.Load(blob, len(cfg.Session.Labels), cfg.Session.EmbeddingWidth)
	check(err)

	framesDir, err := os.MkdirTemp("", "classifyvideo-")
	check(err)
	defer os.RemoveAll(framesDir)

	start := time.Now()
	nFrames, err := videox.ExtractFrames(*input, *fps, framesDir, *width)
	check(err)
	logger.Infof("Decoded %v frames in %.1f seconds", nFrames, time.Since(start).Seconds())

	source, err := player.OpenDirSource(framesDir, *fps)
	check(err)

	name := annotate.VideoBaseName(filepath.Base(*input))
	interval := time.Duration(float64(time.Second) / *fps)
	records, err := session.ClassifyVideo(context.Background(), logger, cfg.Session, extractor, store, name, source, interval)
	check(err)

	if *output == "" {
		*output = predlog.TrackFilename(name)
	}
	check(writeTrack(*output, records))
	logger.Infof("Wrote %v predictions to %v", len(records), *output)
}

// The file is byte-identical to a track exported from a labeling session
func writeTrack(filename string, records []predlog.Record) error {
	track, err := predlog.EncodeTrack(records)
	if err != nil {
		return err
	}
	return os.WriteFile(filename, []byte(track), 0644)
}
