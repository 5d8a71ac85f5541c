// Package vector provides an exact nearest-neighbour index over dense vectors.
package vector

import "fmt"

// Metric is the distance function an index is built with. Lower distance means more similar.
type Metric string

const (
	// MetricL2 is squared Euclidean distance.
	MetricL2 Metric = "l2"
	// MetricCosine is 1 - cosine similarity.
	MetricCosine Metric = "cosine"
)

// ParseMetric returns the Metric named by s ("" means l2).
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case MetricL2, "":
		return MetricL2, nil
	case MetricCosine:
		return MetricCosine, nil
	default:
		return "", fmt.Errorf("unknown metric: %s (supported: l2, cosine)", s)
	}
}

func (m Metric) code() uint32 {
	if m == MetricCosine {
		return 1
	}
	return 0
}

func metricFromCode(c uint32) (Metric, error) {
	switch c {
	case 0:
		return MetricL2, nil
	case 1:
		return MetricCosine, nil
	default:
		return "", fmt.Errorf("unknown metric code %d", c)
	}
}

// Distance returns the distance between a and b under m. Lengths must match.
func (m Metric) Distance(a, b []float32) float64 {
	if m == MetricCosine {
		return 1 - CosineSimilarity(a, b)
	}
	return SquaredL2(a, b)
}

// Result is a single search hit. Position is the vector's insertion position.
type Result struct {
	Position int
	Distance float64
}
