package extract

import (
	"errors"
	"testing"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/teachable/pkg/knn"
	"github.com/cyclopcam/teachable/pkg/player"
	"github.com/stretchr/testify/require"
)

func solidImage(width, height int, r, g, b uint8) *cimg.Image {
	img := cimg.NewImage(width, height, cimg.PixelFormatRGB)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			p := img.Pixels[y*img.Stride+x*3:]
			p[0], p[1], p[2] = r, g, b
		}
	}
	return img
}

func TestPixelExtractor(t *testing.T) {
	p := NewPixelExtractor(4, 3)
	require.Equal(t, 36, p.Width())

	emb, err := p.Extract(player.Frame{Image: solidImage(4, 3, 255, 0, 51)})
	require.NoError(t, err)
	require.Len(t, emb, 36)
	require.InDelta(t, 1.0, emb[0], 1e-6)
	require.InDelta(t, 0.0, emb[1], 1e-6)
	require.InDelta(t, 0.2, emb[2], 1e-6)

	// A larger frame is resized down to the thumbnail
	emb, err = p.Extract(player.Frame{Image: solidImage(40, 30, 0, 255, 0)})
	require.NoError(t, err)
	require.Len(t, emb, 36)
	require.InDelta(t, 1.0, emb[1], 0.02)

	_, err = p.Extract(player.Frame{})
	require.ErrorIs(t, err, ErrExtraction)
}

func TestPlanarLayout(t *testing.T) {
	emb := PixelsToEmbedding(solidImage(2, 1, 255, 0, 0), true)
	require.Equal(t, knn.Embedding{1, 1, 0, 0, 0, 0}, emb)
	emb = PixelsToEmbedding(solidImage(2, 1, 255, 0, 0), false)
	require.Equal(t, knn.Embedding{1, 0, 0, 1, 0, 0}, emb)
}

func TestFuncExtractor(t *testing.T) {
	f := NewFuncExtractor(2, func(frame player.Frame) (knn.Embedding, error) {
		if frame.Time < 0 {
			return nil, errors.New("corrupt")
		}
		if frame.Time > 10 {
			return knn.Embedding{1, 2, 3}, nil
		}
		return knn.Embedding{float32(frame.Time), 0}, nil
	})
	emb, err := f.Extract(player.Frame{Time: 1})
	require.NoError(t, err)
	require.Equal(t, knn.Embedding{1, 0}, emb)

	_, err = f.Extract(player.Frame{Time: -1})
	require.ErrorIs(t, err, ErrExtraction)

	_, err = f.Extract(player.Frame{Time: 11})
	require.ErrorIs(t, err, ErrExtraction, "Wrong width must be an extraction failure")
}
