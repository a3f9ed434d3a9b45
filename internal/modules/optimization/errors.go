package optimization

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoObjective is returned by Optimize when no objective is registered.
	ErrNoObjective = errors.New("no objective registered")
	// ErrMultipleObjectives matches every *MultipleObjectivesError.
	ErrMultipleObjectives = errors.New("having multiple objectives is not allowed")
	// ErrMissingPrerequisite is returned when a combinator needs the weights
	// variable before SetWeights has run.
	ErrMissingPrerequisite = errors.New("missing prerequisite")
	// ErrInvalidParameter covers bad windows, thresholds and ticker lists.
	ErrInvalidParameter = errors.New("invalid parameter")
)

// MultipleObjectivesError reports the objectives that made a model ambiguous.
type MultipleObjectivesError struct {
	Names []string
}

func (e *MultipleObjectivesError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMultipleObjectives, strings.Join(e.Names, ", "))
}

// Is lets errors.Is match ErrMultipleObjectives.
func (e *MultipleObjectivesError) Is(target error) bool {
	return target == ErrMultipleObjectives
}
