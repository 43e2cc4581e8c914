package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cyclopcam/teachable/pkg/predlog"
	"github.com/stretchr/testify/require"
)

func TestWriteTrack(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "bus_predictions.csv")
	require.NoError(t, writeTrack(fn, []predlog.Record{{FrameTime: 0, ClassIndex: 1}, {FrameTime: 0.1, ClassIndex: 2}}))
	b, err := os.ReadFile(fn)
	require.NoError(t, err)
	require.Equal(t, "Frame Time,Class Index\n0.0,1\n0.1,2", string(b))

	rec := predlog.NewRecorder()
	rec.Record(0, 1)
	rec.Record(0.1, 2)
	exported, err := rec.Export()
	require.NoError(t, err)
	require.Equal(t, exported, string(b))
}
