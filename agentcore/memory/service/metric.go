package service

import (
	"fmt"
	"math"
	"strings"
)

// Metric is the distance function of a collection.
type Metric string

const (
	MetricIP     Metric = "ip"
	MetricCosine Metric = "cosine"
	MetricL2     Metric = "l2"
)

// ParseMetric validates a metric name (case-insensitive).
func ParseMetric(s string) (Metric, error) {
	switch m := Metric(strings.ToLower(strings.TrimSpace(s))); m {
	case MetricIP, MetricCosine, MetricL2:
		return m, nil
	default:
		return "", fmt.Errorf("unknown metric %q (want ip, cosine or l2)", s)
	}
}

// Similarity maps a native distance into [0,1], higher is closer.
func (m Metric) Similarity(distance float64) float64 {
	switch m {
	case MetricCosine:
		return clamp01(1 - distance)
	case MetricL2:
		if distance < 0 {
			distance = 0
		}
		return 1 / (1 + distance)
	default:
		return clamp01(distance)
	}
}

// HigherIsCloser reports the sort direction of native distances.
func (m Metric) HigherIsCloser() bool {
	return m == MetricIP
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
