// Package domain defines the core types and interfaces for the kiosk.
// All other packages depend on domain; domain depends on nothing.
package domain

import (
	"fmt"
	"math"
	"time"
)

// UnknownLabel is the pseudo-identity given to faces that match nobody.
const UnknownLabel = "Unknown"

// Encoding is a fixed-length face feature vector.
type Encoding []float32

// Distance returns the Euclidean distance between two encodings. Vectors
// of different length are infinitely far apart.
func (e Encoding) Distance(other Encoding) float64 {
	if len(e) != len(other) || len(e) == 0 {
		return math.Inf(1)
	}
	var sum float64
	for i := range e {
		d := float64(e[i]) - float64(other[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Clone returns a copy that shares no memory with e.
func (e Encoding) Clone() Encoding {
	if e == nil {
		return nil
	}
	out := make(Encoding, len(e))
	copy(out, e)
	return out
}

// FaceBox is a detected face in pixel coordinates of the frame it came from.
type FaceBox struct {
	X, Y, W, H int
	Score      float64
}

// Area returns the box area in pixels.
func (b FaceBox) Area() int { return b.W * b.H }

func (b FaceBox) String() string {
	return fmt.Sprintf("%dx%d@(%d,%d)", b.W, b.H, b.X, b.Y)
}

// VisibleSet is the ordered list of labels recognized in one cycle.
// It is never mutated after publication; a new cycle publishes a new one.
type VisibleSet []string

// Partition splits the set into known labels (in order, duplicates kept)
// and the number of Unknown entries.
func (v VisibleSet) Partition() (known []string, unknown int) {
	for _, label := range v {
		if label == UnknownLabel {
			unknown++
			continue
		}
		known = append(known, label)
	}
	return known, unknown
}

// RegistrationRequest is the handoff record passed from the presence
// loop to the voice loop when an unknown face should be named. It is
// always set and cleared as one unit.
type RegistrationRequest struct {
	ID        string
	Encoding  Encoding
	Face      Frame
	CreatedAt time.Time
}

// CompareEncodings measures enc against every known encoding. matches[i]
// is true when the distance to known[i] is within tolerance.
func CompareEncodings(known []Encoding, enc Encoding, tolerance float64) (matches []bool, distances []float64) {
	matches = make([]bool, len(known))
	distances = make([]float64, len(known))
	for i, k := range known {
		distances[i] = k.Distance(enc)
		matches[i] = distances[i] <= tolerance
	}
	return matches, distances
}

// BestMatch picks the known identity with the smallest distance, ties
// going to the lowest index. It returns -1 when there are no candidates
// or the closest one is not a match.
func BestMatch(matches []bool, distances []float64) int {
	best := -1
	for i, d := range distances {
		if best == -1 || d < distances[best] {
			best = i
		}
	}
	if best == -1 || best >= len(matches) || !matches[best] {
		return -1
	}
	return best
}
