// Package geo partitions lead locations into route-day clusters and provides
// the planar and great-circle distances used by planning.
package geo

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/rotisserie/eris"

	"github.com/sells-group/route-planner/internal/model"
)

// LimitRoutesPerDay is the number of leads one cluster (route-day) absorbs.
const LimitRoutesPerDay = 30

// InsufficientPointsError is returned when fewer distinct points than
// requested clusters are supplied. Callers clamp k before clustering.
type InsufficientPointsError struct {
	Points int
	K      int
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("geo: %d distinct points cannot seed %d clusters", e.Points, e.K)
}

// ClusterCount returns ceil(n / LimitRoutesPerDay), minimum 1.
func ClusterCount(n int) int {
	k := (n + LimitRoutesPerDay - 1) / LimitRoutesPerDay
	if k < 1 {
		return 1
	}
	return k
}

// DistinctCount returns the number of distinct coordinates in points.
func DistinctCount(points []model.Point) int {
	seen := make(map[model.Point]struct{}, len(points))
	for _, p := range points {
		seen[p] = struct{}{}
	}
	return len(seen)
}

// Cluster returns k seed centroids chosen by k-means++ initialization. No
// Lloyd iterations run; the seeds are used directly as route anchors. The
// result is deterministic for a fixed seed.
func Cluster(points []model.Point, k int, seed int64) ([]model.Point, error) {
	if k < 1 {
		return nil, eris.Errorf("geo: cluster count must be >= 1, got %d", k)
	}
	if n := DistinctCount(points); n < k {
		return nil, &InsufficientPointsError{Points: n, K: k}
	}

	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)))

	centers := make([]model.Point, 0, k)
	centers = append(centers, points[rng.IntN(len(points))])

	// d2[i] is the squared distance from points[i] to its nearest chosen center.
	d2 := make([]float64, len(points))
	for i, p := range points {
		d2[i] = squaredDistance(p, centers[0])
	}

	for len(centers) < k {
		var sum float64
		for _, d := range d2 {
			sum += d
		}

		next := sampleIndex(d2, rng.Float64()*sum)
		c := points[next]
		centers = append(centers, c)

		for i, p := range points {
			if d := squaredDistance(p, c); d < d2[i] {
				d2[i] = d
			}
		}
	}

	return centers, nil
}

// sampleIndex picks the index whose cumulative weight first exceeds target.
// Zero-weight entries (already-chosen locations) are never returned.
func sampleIndex(weights []float64, target float64) int {
	last := -1
	var acc float64
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		acc += w
		last = i
		if acc > target {
			return i
		}
	}
	// Floating-point shortfall: fall back to the last positive weight.
	return last
}

// Distance is the planar distance sqrt((x1-x2)^2+(y1-y2)^2) on raw lon/lat.
// It is not geodesic; centroid snapping depends on exactly this ordering.
func Distance(a, b model.Point) float64 {
	return math.Sqrt(squaredDistance(a, b))
}

func squaredDistance(a, b model.Point) float64 {
	dx := a.Lon - b.Lon
	dy := a.Lat - b.Lat
	return dx*dx + dy*dy
}

// Nearest returns the candidate closest to p by Distance and its index.
// Ties go to the lowest index. Returns -1 for an empty candidate list.
func Nearest(p model.Point, candidates []model.Point) (model.Point, int) {
	best := -1
	bestDist := math.Inf(1)
	for i, c := range candidates {
		if d := squaredDistance(p, c); d < bestDist {
			best = i
			bestDist = d
		}
	}
	if best < 0 {
		return model.Point{}, -1
	}
	return candidates[best], best
}
