package imagekernel

import (
	"math"
	"sort"
)

// GridOption is the (rows, cols) pair chosen to partition a source image.
type GridOption struct {
	Rows int
	Cols int
}

// Tiles is the derived rows*cols tile count.
func (g GridOption) Tiles() int { return g.Rows * g.Cols }

// GridPlan is the ordered, deduplicated set of suggested grid options plus
// a fallback.
type GridPlan struct {
	Options  []GridOption
	Fallback GridOption
}

type scoredGrid struct {
	grid  GridOption
	score float64
}

// SuggestGrids enumerates (rows, cols) with 1<=rows,cols<=10 and
// rows*cols<=maxTiles, scores each by |cell_aspect-1|, sorts by
// (score, tiles) ascending, and returns up to limit distinct options. The
// first option is always the fallback; if no option fits, the fallback is
// 1x1.
func SuggestGrids(width, height, maxTiles, limit int) GridPlan {
	if limit <= 0 {
		limit = 5
	}

	var candidates []scoredGrid
	for rows := 1; rows <= 10; rows++ {
		for cols := 1; cols <= 10; cols++ {
			if rows*cols > maxTiles {
				continue
			}
			cellAspect := (float64(width) / float64(cols)) / (float64(height) / float64(rows))
			score := math.Abs(cellAspect - 1)
			candidates = append(candidates, scoredGrid{grid: GridOption{Rows: rows, Cols: cols}, score: score})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score < candidates[j].score
		}
		return candidates[i].grid.Tiles() < candidates[j].grid.Tiles()
	})

	seen := make(map[GridOption]bool)
	var options []GridOption
	for _, c := range candidates {
		if seen[c.grid] {
			continue
		}
		seen[c.grid] = true
		options = append(options, c.grid)
		if len(options) == limit {
			break
		}
	}

	if len(options) == 0 {
		return GridPlan{Options: nil, Fallback: GridOption{Rows: 1, Cols: 1}}
	}
	return GridPlan{Options: options, Fallback: options[0]}
}

// PaddingPx computes the transparent-border thickness in pixels for a given
// padding level and tile size. level is clamped to >= 0.
func PaddingPx(level, tileSize int) int {
	if level < 0 {
		level = 0
	}
	step := tileSize / 20
	if step < 2 {
		step = 2
	}
	pixels := level * step
	maxPixels := tileSize / 2
	if pixels > maxPixels {
		pixels = maxPixels
	}
	return pixels
}
