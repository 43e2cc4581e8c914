package session

import (
	"fmt"

	"github.com/cyclopcam/teachable/pkg/knn"
)

// TrainingController tracks which label button is held down.
// If a second button is pressed while one is held, the most recent press wins,
// and releasing a button that is not the active one has no effect.
// It is not safe for concurrent use. Session serializes access to it.
type TrainingController struct {
	numClasses int
	active     int // -1 when idle
}

func NewTrainingController(numClasses int) *TrainingController {
	return &TrainingController{
		numClasses: numClasses,
		active:     -1,
	}
}

func (t *TrainingController) checkClass(class int) error {
	if class < 0 || class >= t.numClasses {
		return fmt.Errorf("%w: label %v (must be in [0, %v))", knn.ErrInvalidClass, class, t.numClasses)
	}
	return nil
}

func (t *TrainingController) Press(class int) error {
	if err := t.checkClass(class); err != nil {
		return err
	}
	t.active = class
	return nil
}

func (t *TrainingController) Release(class int) error {
	if err := t.checkClass(class); err != nil {
		return err
	}
	if t.active == class {
		t.active = -1
	}
	return nil
}

// Active returns the class being trained, if any
func (t *TrainingController) Active() (int, bool) {
	return t.active, t.active != -1
}

func (t *TrainingController) Reset() {
	t.active = -1
}
