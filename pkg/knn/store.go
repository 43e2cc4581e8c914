package knn

import (
	"errors"
	"fmt"
)

// Package knn is an online k-nearest-neighbor classifier over frame embeddings.
// Examples are added one at a time while video plays, and every query re-scans
// the live example set.

// Number of classes in the reference configuration
const DefaultNumClasses = 4

var ErrInvalidClass = errors.New("Invalid class index")
var ErrWidthMismatch = errors.New("Embedding width mismatch")

// Embedding is the feature vector of one frame.
type Embedding []float32

// ExampleStore holds the training examples of every class.
// Keys are exactly [0, NumClasses), and a class may have zero examples.
type ExampleStore struct {
	width   int
	byClass [][]Embedding
}

// Create an empty store for numClasses classes, with embeddings of the given width
func NewExampleStore(numClasses, width int) *ExampleStore {
	if numClasses <= 0 || width <= 0 {
		panic(fmt.Sprintf("Invalid ExampleStore dimensions: %v classes, width %v", numClasses, width))
	}
	return &ExampleStore{
		width:   width,
		byClass: make([][]Embedding, numClasses),
	}
}

func (s *ExampleStore) NumClasses() int {
	return len(s.byClass)
}

// Width is the embedding dimensionality D
func (s *ExampleStore) Width() int {
	return s.width
}

// AddExample appends a copy of emb to the examples of class
func (s *ExampleStore) AddExample(class int, emb Embedding) error {
	if class < 0 || class >= len(s.byClass) {
		return fmt.Errorf("%w %v (have %v classes)", ErrInvalidClass, class, len(s.byClass))
	}
	if len(emb) != s.width {
		return fmt.Errorf("%w: got %v, expected %v", ErrWidthMismatch, len(emb), s.width)
	}
	c := make(Embedding, len(emb))
	copy(c, emb)
	s.byClass[class] = append(s.byClass[class], c)
	return nil
}

// Examples returns the examples of a class, in insertion order.
// The caller must not modify the returned slice.
func (s *ExampleStore) Examples(class int) []Embedding {
	return s.byClass[class]
}

// ClassExampleCount returns the number of examples of each class
func (s *ExampleStore) ClassExampleCount() []int {
	counts := make([]int, len(s.byClass))
	for i, ex := range s.byClass {
		counts[i] = len(ex)
	}
	return counts
}

func (s *ExampleStore) TotalExampleCount() int {
	n := 0
	for _, ex := range s.byClass {
		n += len(ex)
	}
	return n
}

// Clone returns a store that shares no mutable state with s.
// Embeddings are immutable once inserted, so only the per-class slices are copied.
func (s *ExampleStore) Clone() *ExampleStore {
	c := &ExampleStore{
		width:   s.width,
		byClass: make([][]Embedding, len(s.byClass)),
	}
	for i, ex := range s.byClass {
		c.byClass[i] = append([]Embedding(nil), ex...)
	}
	return c
}
