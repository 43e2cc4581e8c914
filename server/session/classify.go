package session

import (
	"context"
	"fmt"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/teachable/pkg/extract"
	"github.com/cyclopcam/teachable/pkg/knn"
	"github.com/cyclopcam/teachable/pkg/player"
	"github.com/cyclopcam/teachable/pkg/predlog"
	"github.com/cyclopcam/teachable/pkg/scheduler"
)

// ClassifyVideo runs a headless session over the whole of 'source', with the given examples,
// and returns the prediction log. 'frameInterval' is the playback time covered by each tick,
// which is normally 1/fps of the source.
func ClassifyVideo(ctx context.Context, log logs.Log, config Config, extractor extract.Extractor, store *knn.ExampleStore, name string, source player.FrameSource, frameInterval time.Duration) ([]predlog.Record, error) {
	if store.TotalExampleCount() == 0 {
		return nil, knn.ErrEmptyStore
	}
	if store.Width() != extractor.Width() || store.NumClasses() != len(config.Labels) {
		return nil, fmt.Errorf("Examples have %v classes of width %v, but the session needs %v classes of width %v", store.NumClasses(), store.Width(), len(config.Labels), extractor.Width())
	}
	s, err := New(log, config, extractor, scheduler.NewImmediateScheduler(frameInterval))
	if err != nil {
		return nil, err
	}
	s.lock.Lock()
	s.classifier.SetStore(store.Clone())
	s.lock.Unlock()

	s.SetVideo(name, source)
	done := s.Done()
	if err := s.Start(); err != nil {
		return nil, err
	}
	defer s.Stop()

	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	s.Stop()
	return s.recorder.Records(), nil
}
