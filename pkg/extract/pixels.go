package extract

import (
	"fmt"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/teachable/pkg/knn"
	"github.com/cyclopcam/teachable/pkg/player"
)

// PixelExtractor uses a tiny thumbnail of the frame as the embedding.
// It needs no model, and works surprisingly well for a fixed camera
// where the classes differ by large visible regions.
type PixelExtractor struct {
	ThumbWidth  int
	ThumbHeight int
}

func NewPixelExtractor(thumbWidth, thumbHeight int) *PixelExtractor {
	return &PixelExtractor{
		ThumbWidth:  thumbWidth,
		ThumbHeight: thumbHeight,
	}
}

// PixelEmbeddingWidth returns the width of the embedding produced by a thumbnail of the given size
func PixelEmbeddingWidth(thumbWidth, thumbHeight int) int {
	return thumbWidth * thumbHeight * 3
}

func (p *PixelExtractor) Width() int {
	return PixelEmbeddingWidth(p.ThumbWidth, p.ThumbHeight)
}

func (p *PixelExtractor) Extract(frame player.Frame) (knn.Embedding, error) {
	img := frame.Image
	if img == nil || img.Width <= 0 || img.Height <= 0 {
		return nil, fmt.Errorf("%w: frame at %.3f has no image", ErrExtraction, frame.Time)
	}
	if img.Width != p.ThumbWidth || img.Height != p.ThumbHeight {
		img = cimg.ResizeNew(img, p.ThumbWidth, p.ThumbHeight, nil)
	}
	return PixelsToEmbedding(img, false), nil
}

func (p *PixelExtractor) Close() {
}

// PixelsToEmbedding converts an image to a flat RGB float array.
// If planar is true, the output is laid out as NCHW (all reds, then all greens, then all blues),
// otherwise it is interleaved. Values are scaled to [0,1].
// Grayscale images have their single channel replicated.
func PixelsToEmbedding(img *cimg.Image, planar bool) knn.Embedding {
	nchan := img.NChan()
	plane := img.Width * img.Height
	out := make(knn.Embedding, plane*3)
	for y := 0; y < img.Height; y++ {
		src := img.Pixels[y*img.Stride:]
		for x := 0; x < img.Width; x++ {
			px := src[x*nchan:]
			i := y*img.Width + x
			for c := 0; c < 3; c++ {
				v := float32(px[min(c, nchan-1)]) / 255
				if planar {
					out[c*plane+i] = v
				} else {
					out[i*3+c] = v
				}
			}
		}
	}
	return out
}
