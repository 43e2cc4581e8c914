package player

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/bmharper/cimg/v2"
)

// FramePattern is the filename pattern of frames produced by videox.ExtractFrames.
// Numbering starts at 1, which is ffmpeg's convention.
const FramePattern = "frame_%06d.jpg"

// DirSource serves JPEG frames from a directory, which were extracted from a video at a fixed frame rate.
type DirSource struct {
	Dir string
	FPS float64

	numFrames int
	lock      sync.Mutex
	lastIndex int
	lastImage *cimg.Image
}

// OpenDirSource counts the frames in dir
func OpenDirSource(dir string, fps float64) (*DirSource, error) {
	if fps <= 0 {
		return nil, fmt.Errorf("Invalid frame rate %v", fps)
	}
	matches, err := filepath.Glob(filepath.Join(dir, "frame_*.jpg"))
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("No frames found in %v", dir)
	}
	sort.Strings(matches)
	// Frames must be contiguous from 1, otherwise FrameAt would find holes
	for i, m := range matches {
		if filepath.Base(m) != fmt.Sprintf(FramePattern, i+1) {
			return nil, fmt.Errorf("Frame sequence in %v is not contiguous at %v", dir, filepath.Base(m))
		}
	}
	return &DirSource{
		Dir:       dir,
		FPS:       fps,
		numFrames: len(matches),
		lastIndex: -1,
	}, nil
}

func (d *DirSource) NumFrames() int {
	return d.numFrames
}

func (d *DirSource) Duration() float64 {
	return float64(d.numFrames) / d.FPS
}

// FrameIndex returns the zero-based index of the frame visible at time t
func (d *DirSource) FrameIndex(t float64) int {
	idx := int(math.Floor(t*d.FPS + 1e-9))
	return max(0, min(idx, d.numFrames-1))
}

func (d *DirSource) FrameAt(t float64) (*cimg.Image, error) {
	idx := d.FrameIndex(t)
	d.lock.Lock()
	defer d.lock.Unlock()
	if idx == d.lastIndex {
		return d.lastImage, nil
	}
	path := filepath.Join(d.Dir, fmt.Sprintf(FramePattern, idx+1))
	img, err := cimg.ReadFile(path)
	if err != nil {
		return nil, err
	}
	d.lastIndex = idx
	d.lastImage = img
	return img, nil
}

// Remove deletes the frame directory
func (d *DirSource) Remove() error {
	return os.RemoveAll(d.Dir)
}
