package dataset

import (
	"bytes"
	"math/rand"
	"strings"
	"testing"

	"github.com/cyclopcam/teachable/pkg/knn"
	"github.com/stretchr/testify/require"
)

func TestLoadReshapes(t *testing.T) {
	blob := Blob{"2": {1, 2, 3, 4, 5, 6}}
	store, err := Load(blob, 4, 2)
	require.NoError(t, err)
	require.Equal(t, []int{0, 0, 3, 0}, store.ClassExampleCount())
	require.Equal(t, knn.Embedding{3, 4}, store.Examples(2)[1])
}

func TestLoadRejectsBadLength(t *testing.T) {
	blob := Blob{"2": {1, 2, 3, 4, 5}}
	_, err := Load(blob, 4, 2)
	require.ErrorIs(t, err, ErrMalformedDataset)
}

func TestLoadRejectsBadKeys(t *testing.T) {
	for _, key := range []string{"4", "-1", "x", "01", " 1", ""} {
		_, err := Load(Blob{key: {1, 2}}, 4, 2)
		require.ErrorIs(t, err, ErrMalformedDataset, "key '%v'", key)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode(strings.NewReader(`{"0": "abc"}`))
	require.ErrorIs(t, err, ErrMalformedDataset)
	_, err = Decode(strings.NewReader(`[1,2,3]`))
	require.ErrorIs(t, err, ErrMalformedDataset)
}

func TestSaveEmitsEveryClass(t *testing.T) {
	store := knn.NewExampleStore(4, 2)
	require.NoError(t, store.AddExample(1, knn.Embedding{1, 2}))
	require.NoError(t, store.AddExample(1, knn.Embedding{3, 4}))
	blob := Save(store)
	require.Len(t, blob, 4)
	require.Equal(t, []float32{1, 2, 3, 4}, blob["1"])
	require.Empty(t, blob["0"])
}

func TestRoundTripPredictions(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	width := 16
	randomEmbedding := func() knn.Embedding {
		e := make(knn.Embedding, width)
		for i := range e {
			e[i] = rng.Float32()*2 - 1
		}
		return e
	}
	store := knn.NewExampleStore(4, width)
	for i := 0; i < 120; i++ {
		require.NoError(t, store.AddExample(rng.Intn(4), randomEmbedding()))
	}

	buf := bytes.Buffer{}
	require.NoError(t, Encode(&buf, Save(store)))
	blob, err := Decode(&buf)
	require.NoError(t, err)
	loaded, err := Load(blob, 4, width)
	require.NoError(t, err)
	require.Equal(t, store.ClassExampleCount(), loaded.ClassExampleCount())

	a := knn.NewClassifier(store, 10)
	b := knn.NewClassifier(loaded, 10)
	for i := 0; i < 100; i++ {
		q := randomEmbedding()
		pa, err := a.Predict(q)
		require.NoError(t, err)
		pb, err := b.Predict(q)
		require.NoError(t, err)
		require.Equal(t, pa.ClassIndex, pb.ClassIndex)
		require.InDeltaSlice(t, pa.Confidences, pb.Confidences, 1e-6)
	}
}
