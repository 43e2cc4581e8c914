package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/cyclopcam/teachable/pkg/knn"
)

// Package dataset serializes an example store into a portable blob, and back.
//
// The file is a JSON object. Keys are class indices ("0", "1", ...), and each
// value is a flat array holding that class's examples concatenated row by row.
// The embedding width is not stored in the file. It is configured once per
// session, and every imported array is checked against it.

// Conventional filename of a downloaded dataset
const DefaultFilename = "trainedClassifier.knn"

var ErrMalformedDataset = errors.New("Malformed dataset")

// Blob maps a class index (as a decimal string) to the flattened examples of that class
type Blob map[string][]float32

// Save flattens every class of the store. Classes without examples are emitted as empty arrays.
func Save(store *knn.ExampleStore) Blob {
	blob := Blob{}
	for class := 0; class < store.NumClasses(); class++ {
		examples := store.Examples(class)
		flat := make([]float32, 0, len(examples)*store.Width())
		for _, ex := range examples {
			flat = append(flat, ex...)
		}
		blob[strconv.Itoa(class)] = flat
	}
	return blob
}

// Load reconstructs an example store by reshaping each flat array into rows of 'width'.
// The whole blob is validated before anything is returned, so a malformed blob
// never yields a partial store.
func Load(blob Blob, numClasses, width int) (*knn.ExampleStore, error) {
	if width <= 0 {
		return nil, fmt.Errorf("Invalid embedding width %v", width)
	}
	store := knn.NewExampleStore(numClasses, width)
	for key, flat := range blob {
		class, err := parseClassKey(key, numClasses)
		if err != nil {
			return nil, err
		}
		if len(flat)%width != 0 {
			return nil, fmt.Errorf("%w: class %v has %v values, which is not a multiple of the embedding width %v", ErrMalformedDataset, key, len(flat), width)
		}
		for i := 0; i < len(flat); i += width {
			if err := store.AddExample(class, knn.Embedding(flat[i:i+width])); err != nil {
				return nil, err
			}
		}
	}
	return store, nil
}

// Keys must be canonical decimal integers in [0, numClasses), so that "1" and "01"
// can't both name the same class.
func parseClassKey(key string, numClasses int) (int, error) {
	class, err := strconv.Atoi(key)
	if err != nil || strconv.Itoa(class) != key {
		return 0, fmt.Errorf("%w: invalid class key '%v'", ErrMalformedDataset, key)
	}
	if class < 0 || class >= numClasses {
		return 0, fmt.Errorf("%w: class key %v is out of range [0, %v)", ErrMalformedDataset, key, numClasses)
	}
	return class, nil
}

// Encode writes the blob as JSON
func Encode(w io.Writer, blob Blob) error {
	return json.NewEncoder(w).Encode(blob)
}

// Decode parses a JSON dataset document.
// Only the document structure is checked here. Use Load to validate classes and widths.
func Decode(r io.Reader) (Blob, error) {
	blob := Blob{}
	if err := json.NewDecoder(r).Decode(&blob); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDataset, err)
	}
	return blob, nil
}
