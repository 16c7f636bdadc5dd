package facematch

import "github.com/kozaktomas/reunite/internal/database"

// NormalizeBBox converts a pixel box [x1, y1, x2, y2] into relative
// [x, y, width, height] coordinates of an image of the given size. Values are
// clamped into [0, 1]. Returns false for malformed boxes or sizes.
func NormalizeBBox(bbox []float64, width, height int) (database.BBox, bool) {
	if len(bbox) != 4 || width <= 0 || height <= 0 {
		return database.BBox{}, false
	}

	w, h := float64(width), float64(height)
	x1 := clamp01(bbox[0] / w)
	y1 := clamp01(bbox[1] / h)
	x2 := clamp01(bbox[2] / w)
	y2 := clamp01(bbox[3] / h)
	if x2 <= x1 || y2 <= y1 {
		return database.BBox{}, false
	}

	return database.BBox{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}, true
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}
