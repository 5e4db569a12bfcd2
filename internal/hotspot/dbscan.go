package hotspot

import (
	"context"
	"math"
	"slices"
)

const (
	noise      = -1
	unassigned = -2

	// ctx is polled once per this many points.
	checkEvery = 256
)

type cellKey struct {
	x, y int64
}

// grid buckets points into square cells of side eps so a neighbourhood query
// only visits the 3x3 block of cells around a point.
type grid struct {
	eps   float64
	cells map[cellKey][]int
}

func newGrid(points [][2]float64, eps float64) *grid {
	g := &grid{eps: eps, cells: make(map[cellKey][]int, len(points))}
	for i, p := range points {
		k := g.key(p)
		g.cells[k] = append(g.cells[k], i)
	}
	return g
}

func (g *grid) key(p [2]float64) cellKey {
	return cellKey{
		x: int64(math.Floor(p[0] / g.eps)),
		y: int64(math.Floor(p[1] / g.eps)),
	}
}

// neighbours returns the indices within eps of points[i], i included, in
// ascending index order.
func (g *grid) neighbours(points [][2]float64, i int) []int {
	p := points[i]
	k := g.key(p)
	eps2 := g.eps * g.eps
	var out []int
	for dx := int64(-1); dx <= 1; dx++ {
		for dy := int64(-1); dy <= 1; dy++ {
			for _, j := range g.cells[cellKey{k.x + dx, k.y + dy}] {
				a := points[j][0] - p[0]
				b := points[j][1] - p[1]
				if a*a+b*b <= eps2 {
					out = append(out, j)
				}
			}
		}
	}
	slices.Sort(out)
	return out
}

// dbscan labels each point with a cluster id starting at 0, or -1 for noise.
// Cluster ids follow the input position of the first core point that seeds
// them. Border points join the first cluster that reaches them.
func dbscan(ctx context.Context, points [][2]float64, eps float64, minSamples int) ([]int, error) {
	g := newGrid(points, eps)

	hood := make([][]int, len(points))
	for i := range points {
		if i%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		hood[i] = g.neighbours(points, i)
	}

	labels := make([]int, len(points))
	for i := range labels {
		labels[i] = unassigned
	}

	next := 0
	visited := 0
	for i := range points {
		if labels[i] != unassigned {
			continue
		}
		if len(hood[i]) < minSamples {
			labels[i] = noise
			continue
		}

		id := next
		next++
		labels[i] = id
		queue := append([]int(nil), hood[i]...)
		for len(queue) > 0 {
			j := queue[0]
			queue = queue[1:]

			visited++
			if visited%checkEvery == 0 {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}

			switch labels[j] {
			case noise:
				// previously dismissed, reachable from a core point: border
				labels[j] = id
				continue
			case unassigned:
				labels[j] = id
			default:
				continue
			}
			if len(hood[j]) >= minSamples {
				queue = append(queue, hood[j]...)
			}
		}
	}
	return labels, nil
}
