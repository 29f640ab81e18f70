package geo

import (
	"fmt"
	"math"
)

// DefaultCellSizeDegrees is the default bucket cell size, roughly 500 m
// per cell at the equator.
const DefaultCellSizeDegrees = 0.005

// BucketKey quantizes a coordinate into a coarse grid cell key. Two
// coordinates in the same cell always produce identical keys, so callers
// can answer "same area?" without comparing floats, and area-scoped
// resources (voice rooms) are created once per cell instead of once per
// fix. Uses floor, not truncation, so negative coordinates bucket
// correctly.
func BucketKey(lat, lon, cellSizeDegrees float64) string {
	latCell := int64(math.Floor(lat / cellSizeDegrees))
	lonCell := int64(math.Floor(lon / cellSizeDegrees))
	return fmt.Sprintf("%d_%d", latCell, lonCell)
}

// Bucket returns the point's bucket key at the default cell size.
func Bucket(p Point) string {
	return BucketKey(p.Lat, p.Lon, DefaultCellSizeDegrees)
}
