package encounter

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Probabilities maps a label to the model's probability for it.
type Probabilities map[string]float64

var ErrEmptyProbabilities = errors.New("probabilities must contain at least one label")

// Validate checks that p is a usable distribution: non-empty, no blank
// labels, every value within [0, 1].
func (p Probabilities) Validate() error {
	if len(p) == 0 {
		return ErrEmptyProbabilities
	}
	for label, v := range p {
		if label == "" {
			return errors.New("probability labels must not be empty")
		}
		if !(v >= 0 && v <= 1) {
			return fmt.Errorf("probability for %q must be within [0, 1], got %v", label, v)
		}
	}
	return nil
}

// TopLabel returns the label with the highest probability. Ties go to the
// lexicographically smallest label.
func (p Probabilities) TopLabel() (string, bool) {
	if len(p) == 0 {
		return "", false
	}
	labels := make([]string, 0, len(p))
	for l := range p {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	best := labels[0]
	for _, l := range labels[1:] {
		if p[l] > p[best] {
			best = l
		}
	}
	return best, true
}

// Max returns the dominant probability, or false when p is empty.
func (p Probabilities) Max() (float64, bool) {
	if len(p) == 0 {
		return 0, false
	}
	max := math.Inf(-1)
	for _, v := range p {
		if v > max {
			max = v
		}
	}
	return max, true
}

// ConfidencePercent is Max as a percentage rounded to two decimals, or 0
// for an empty mapping.
func (p Probabilities) ConfidencePercent() float64 {
	max, ok := p.Max()
	if !ok {
		return 0
	}
	return math.Round(max*100*100) / 100
}
