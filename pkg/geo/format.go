package geo

import "fmt"

// UnknownDistanceLabel is shown when no distance can be computed. The
// consumer layer owns user-facing copy; this is only a placeholder token.
const UnknownDistanceLabel = "--"

// FormatDistance renders a distance in kilometers as a short display
// label: meters below 1 km, one decimal up to 10 km, whole kilometers
// beyond that.
func FormatDistance(km float64) string {
	switch {
	case km < 1.0:
		return fmt.Sprintf("%.0fm", km*1000)
	case km <= 10.0:
		return fmt.Sprintf("%.1fkm", km)
	default:
		return fmt.Sprintf("%.0fkm", km)
	}
}
