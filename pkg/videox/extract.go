package videox

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Extract the duration of a video file
func ExtractVideoDuration(srcFilename string) (time.Duration, error) {
	args := []string{
		"-v",
		"error",
		"-show_entries",
		"format=duration",
		"-of",
		"default=noprint_wrappers=1:nokey=1",
		srcFilename,
	}
	out, err := RunAppCombinedOutput("ffprobe", args)
	if err != nil {
		return 0, err
	}
	return parseProbeSeconds(string(out))
}

// ffprobe sometimes emits warnings before the value, eg
//
//	Warning: using insecure memory!
//	6.399000
func parseProbeSeconds(outStr string) (time.Duration, error) {
	for _, line := range strings.Split(outStr, "\n") {
		if seconds, err := strconv.ParseFloat(strings.TrimSpace(line), 64); err == nil {
			return time.Duration(seconds * float64(time.Second)), nil
		}
	}
	return 0, fmt.Errorf("Unable to parse ffprobe output: %v", outStr)
}

// ExtractFrames decodes a video file into a sequence of JPEG files in dstDir,
// sampled at a constant fps. The files are named frame_000001.jpg, frame_000002.jpg, etc.
// If outputWidth is zero, then we use the same width as the input video.
// Returns the number of frames written.
func ExtractFrames(srcFilename string, fps float64, dstDir string, outputWidth int) (int, error) {
	if fps <= 0 {
		return 0, fmt.Errorf("Invalid frame rate %v", fps)
	}
	if err := os.MkdirAll(dstDir, 0770); err != nil {
		return 0, err
	}
	filter := fmt.Sprintf("fps=%v", fps)
	if outputWidth > 0 {
		filter += fmt.Sprintf(",scale=%v:-2", outputWidth)
	}
	args := []string{
		"-v",
		"error",
		"-i",
		srcFilename,
		"-vf",
		filter,
		"-q:v",
		"3",
		filepath.Join(dstDir, "frame_%06d.jpg"),
	}
	if _, err := RunAppCombinedOutput("ffmpeg", args); err != nil {
		return 0, err
	}
	matches, err := filepath.Glob(filepath.Join(dstDir, "frame_*.jpg"))
	if err != nil {
		return 0, err
	}
	if len(matches) == 0 {
		return 0, fmt.Errorf("ffmpeg produced no frames from %v", srcFilename)
	}
	return len(matches), nil
}

// app_name is an executable, such as "ffmpeg" or "ffprobe"
// args must not include the executable name as the first parameter
// Returns the string output from exec.Cmd's "CombinedOutput" method.
func RunAppCombinedOutput(app_name string, args []string) ([]byte, error) {
	app_path, err := exec.LookPath(app_name)
	if err != nil {
		return nil, fmt.Errorf("Unable to find '%v' in your path (%w)", app_name, err)
	}
	args_with_app := append([]string{app_name}, args...)
	cmd := &exec.Cmd{
		Path: app_path,
		Args: args_with_app,
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		outStr := ""
		if out != nil {
			outStr = string(out)
		}
		return nil, fmt.Errorf("%v execution failed: %w (%v)", app_name, err, outStr)
	}
	return out, nil
}
