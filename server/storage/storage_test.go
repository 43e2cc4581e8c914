package storage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

func TestStorageFS(t *testing.T) {
	ctx := context.Background()
	fs, err := NewStorageFS(logs.NewTestingLog(t), t.TempDir())
	require.NoError(t, err)

	require.NoError(t, WriteFile(ctx, fs, "annotations/bus_predictions.csv", bytes.NewReader([]byte("Frame Time,Class Index"))))
	b, err := ReadFile(ctx, fs, "annotations/bus_predictions.csv")
	require.NoError(t, err)
	require.Equal(t, "Frame Time,Class Index", string(b))

	local := filepath.Join(t.TempDir(), "copy.csv")
	require.NoError(t, DownloadFile(ctx, fs, "annotations/bus_predictions.csv", local))
	b, err = os.ReadFile(local)
	require.NoError(t, err)
	require.Equal(t, "Frame Time,Class Index", string(b))

	_, err = fs.URL("annotations/bus_predictions.csv")
	require.ErrorIs(t, err, ErrNoPublicURL)

	require.NoError(t, fs.DeleteFile(ctx, "annotations/bus_predictions.csv"))
	_, err = ReadFile(ctx, fs, "annotations/bus_predictions.csv")
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestCleanName(t *testing.T) {
	for _, bad := range []string{"", "../x", "/etc/passwd", "a/../../b", `a\b`} {
		_, err := CleanName(bad)
		require.Error(t, err, bad)
	}
	n, err := CleanName("videos//a.mp4")
	require.NoError(t, err)
	require.Equal(t, "videos/a.mp4", n)
}
