package extract

import (
	"errors"
	"fmt"

	"github.com/cyclopcam/teachable/pkg/knn"
	"github.com/cyclopcam/teachable/pkg/player"
)

// ErrExtraction is returned when a single frame could not be turned into an embedding.
// It is recoverable: the frame loop skips the frame and carries on.
var ErrExtraction = errors.New("Embedding extraction failed")

// Extractor turns a video frame into a fixed-width embedding
type Extractor interface {
	Extract(frame player.Frame) (knn.Embedding, error)
	Width() int
	Close()
}

// FuncExtractor adapts a function to the Extractor interface
type FuncExtractor struct {
	EmbeddingWidth int
	Func           func(frame player.Frame) (knn.Embedding, error)
}

func NewFuncExtractor(width int, f func(frame player.Frame) (knn.Embedding, error)) *FuncExtractor {
	return &FuncExtractor{
		EmbeddingWidth: width,
		Func:           f,
	}
}

func (f *FuncExtractor) Extract(frame player.Frame) (knn.Embedding, error) {
	emb, err := f.Func(frame)
	if err != nil {
		if errors.Is(err, ErrExtraction) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	return checkWidth(emb, f.EmbeddingWidth)
}

func (f *FuncExtractor) Width() int {
	return f.EmbeddingWidth
}

func (f *FuncExtractor) Close() {
}

func checkWidth(emb knn.Embedding, width int) (knn.Embedding, error) {
	if len(emb) != width {
		return nil, fmt.Errorf("%w: embedding has width %v, but %v is required", ErrExtraction, len(emb), width)
	}
	return emb, nil
}
