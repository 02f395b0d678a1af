package trajectory

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// SpeedSummary aggregates vehicle speeds (m/s) over every frame of a buffer.
type SpeedSummary struct {
	Samples int     `json:"samples"`
	Mean    float64 `json:"mean"`
	StdDev  float64 `json:"std_dev"`
	Max     float64 `json:"max"`
	P85     float64 `json:"p85"`
}

// Summarize computes speed statistics over all vehicle states in the buffer.
func Summarize(b FrameBuffer) SpeedSummary {
	var speeds []float64
	for _, f := range b {
		for _, v := range f.Vehicles {
			speeds = append(speeds, math.Hypot(v.VX, v.VY))
		}
	}
	if len(speeds) == 0 {
		return SpeedSummary{}
	}
	mean, std := stat.MeanStdDev(speeds, nil)
	if math.IsNaN(std) {
		std = 0
	}
	sorted := append([]float64(nil), speeds...)
	sort.Float64s(sorted)
	return SpeedSummary{
		Samples: len(speeds),
		Mean:    mean,
		StdDev:  std,
		Max:     sorted[len(sorted)-1],
		P85:     stat.Quantile(0.85, stat.Empirical, sorted, nil),
	}
}

// VerifyStaticAttributes checks that every vehicle id carries the same
// length, width and type in every frame where it appears.
func VerifyStaticAttributes(b FrameBuffer) error {
	type attrs struct {
		length, width *float64
		class         string
	}
	seen := make(map[int]attrs)
	for n, f := range b {
		for _, v := range f.Vehicles {
			cur := attrs{v.Length, v.Width, v.Type}
			prev, ok := seen[v.ID]
			if !ok {
				seen[v.ID] = cur
				continue
			}
			if !sameFloat(prev.length, cur.length) || !sameFloat(prev.width, cur.width) || prev.class != cur.class {
				return fmt.Errorf("vehicle %d changes static attributes at frame %d", v.ID, n)
			}
		}
	}
	return nil
}

func sameFloat(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
