package montecarlo

import (
	"sort"

	"github.com/atlas-desktop/risk-sim/pkg/types"
)

// DefaultChartSamples is the path count used for chart sampling.
const DefaultChartSamples = 1000

// RankIndices returns the positions of the worst, 25th percentile, median,
// 75th percentile and best paths in a sample of n sorted paths.
func RankIndices(n int) [5]int {
	if n <= 0 {
		return [5]int{}
	}
	return [5]int{0, n / 4, n / 2, 3 * n / 4, n - 1}
}

// SelectRepresentative sorts paths by final capital ascending and returns the
// five paths at RankIndices. The input slice is reordered.
func SelectRepresentative(paths []types.Path) []types.Path {
	if len(paths) == 0 {
		return nil
	}
	sort.SliceStable(paths, func(i, j int) bool {
		return paths[i].Final() < paths[j].Final()
	})

	ranks := RankIndices(len(paths))
	selected := make([]types.Path, len(ranks))
	for i, r := range ranks {
		selected[i] = paths[r]
	}
	return selected
}

// BuildChart emits one point per month 0..months with the capital of each
// selected path. A path too short for a month leaves that series empty.
func BuildChart(selected []types.Path, months int) []types.ChartPoint {
	if months < 0 {
		months = 0
	}
	points := make([]types.ChartPoint, months+1)
	for month := range points {
		pt := types.ChartPoint{Month: month}
		slots := []**float64{&pt.Worst, &pt.P25, &pt.Median, &pt.P75, &pt.Best}
		for i, path := range selected {
			if i >= len(slots) || month >= len(path) {
				continue
			}
			capital := path[month].Capital
			*slots[i] = &capital
		}
		points[month] = pt
	}
	return points
}
