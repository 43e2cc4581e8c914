package knn

import (
	"errors"
	"fmt"
	"sort"

	"github.com/chewxy/math32"
)

// Number of neighbors that vote on a prediction, unless configured otherwise
const DefaultK = 10

// ErrEmptyStore is returned by Predict when there are no examples at all.
// Callers are expected to check TotalExampleCount() first.
var ErrEmptyStore = errors.New("Cannot predict with an empty example store")

// Prediction is the result of classifying one embedding
type Prediction struct {
	ClassIndex  int       `json:"classIndex"`
	Confidences []float32 `json:"confidences"` // One entry per class. Sums to 1.
}

// Classifier predicts classes from the examples in an ExampleStore.
// There is no index structure. Every Predict scans the current store, so
// examples added since the previous call are always seen.
type Classifier struct {
	k     int
	store *ExampleStore
}

func NewClassifier(store *ExampleStore, k int) *Classifier {
	if k <= 0 {
		k = DefaultK
	}
	return &Classifier{
		k:     k,
		store: store,
	}
}

func (c *Classifier) K() int {
	return c.k
}

// Store returns the live example store
func (c *Classifier) Store() *ExampleStore {
	return c.store
}

// SetStore replaces the example store wholesale (eg after a dataset load)
func (c *Classifier) SetStore(store *ExampleStore) {
	c.store = store
}

type neighbor struct {
	distance float32
	class    int
	idx      int // insertion index within class
}

// Euclidean distance between two embeddings of the same width
func Distance(a, b Embedding) float32 {
	sum := float32(0)
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math32.Sqrt(sum)
}

// Predict classifies query by majority vote of its k nearest examples.
// If there are fewer than k examples, all of them vote.
// Confidence of a class is the fraction of voters that belong to it.
// Ties between classes go to the lowest class index.
func (c *Classifier) Predict(query Embedding) (*Prediction, error) {
	s := c.store
	total := s.TotalExampleCount()
	if total == 0 {
		return nil, ErrEmptyStore
	}
	if len(query) != s.width {
		return nil, fmt.Errorf("%w: query has %v, store has %v", ErrWidthMismatch, len(query), s.width)
	}

	all := make([]neighbor, 0, total)
	for class, examples := range s.byClass {
		for i, ex := range examples {
			all = append(all, neighbor{
				distance: Distance(query, ex),
				class:    class,
				idx:      i,
			})
		}
	}

	// Equal distances are ordered by class and then insertion order, so the
	// chosen neighbor set does not depend on sort stability.
	sort.Slice(all, func(i, j int) bool {
		a, b := &all[i], &all[j]
		if a.distance != b.distance {
			return a.distance < b.distance
		}
		if a.class != b.class {
			return a.class < b.class
		}
		return a.idx < b.idx
	})

	k := min(c.k, total)
	votes := make([]int, len(s.byClass))
	for _, n := range all[:k] {
		votes[n.class]++
	}

	pred := &Prediction{
		Confidences: make([]float32, len(votes)),
	}
	best := 0
	for i, v := range votes {
		pred.Confidences[i] = float32(v) / float32(k)
		if v > votes[best] {
			best = i
		}
	}
	pred.ClassIndex = best
	return pred, nil
}
