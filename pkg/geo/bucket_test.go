package geo

import "testing"

func TestBucketKeyDeterminism(t *testing.T) {
	lat, lon := 51.5012, -0.1188

	first := BucketKey(lat, lon, DefaultCellSizeDegrees)
	for i := 0; i < 100; i++ {
		if got := BucketKey(lat, lon, DefaultCellSizeDegrees); got != first {
			t.Fatalf("BucketKey() not stable: call %d returned %q, first call %q", i, got, first)
		}
	}
}

func TestBucketKeySameCell(t *testing.T) {
	// Both points sit well inside the same 0.005 x 0.005 degree cell.
	a := BucketKey(51.5012, -0.1188, DefaultCellSizeDegrees)
	b := BucketKey(51.5038, -0.1163, DefaultCellSizeDegrees)
	if a != b {
		t.Errorf("points in the same cell produced different keys: %q vs %q", a, b)
	}
}

func TestBucketKeyDifferentCells(t *testing.T) {
	a := BucketKey(51.5012, -0.1188, DefaultCellSizeDegrees)
	b := BucketKey(51.5062, -0.1188, DefaultCellSizeDegrees)
	if a == b {
		t.Errorf("points one cell apart produced the same key: %q", a)
	}
}

func TestBucketKeyNegativeCoordinates(t *testing.T) {
	// Southern hemisphere must floor toward negative infinity, not zero.
	got := BucketKey(-33.8688, 151.2093, DefaultCellSizeDegrees)
	want := "-6774_30241"
	if got != want {
		t.Errorf("BucketKey() = %q, want %q", got, want)
	}
}

func TestBucketDefaultCellSize(t *testing.T) {
	p := Point{Lat: 35.6762, Lon: 139.6503}

	if got, want := Bucket(p), BucketKey(p.Lat, p.Lon, DefaultCellSizeDegrees); got != want {
		t.Errorf("Bucket() = %q, want %q", got, want)
	}
}

func TestBucketKeyCustomCellSize(t *testing.T) {
	// A coarser cell merges points a finer cell separates.
	fineA := BucketKey(51.5012, -0.1188, 0.005)
	fineB := BucketKey(51.5062, -0.1188, 0.005)
	coarseA := BucketKey(51.5012, -0.1188, 0.05)
	coarseB := BucketKey(51.5062, -0.1188, 0.05)

	if fineA == fineB {
		t.Errorf("fine cells should differ, both %q", fineA)
	}
	if coarseA != coarseB {
		t.Errorf("coarse cells should match: %q vs %q", coarseA, coarseB)
	}
}
