package player

import (
	"fmt"
	"path/filepath"

	"github.com/bmharper/cimg/v2"
)

func writeFrame(dir string, number int, img *cimg.Image) error {
	return img.WriteJPEG(filepath.Join(dir, fmt.Sprintf(FramePattern, number)), cimg.MakeCompressParams(cimg.Sampling444, 95, 0), 0644)
}
