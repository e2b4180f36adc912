// Package preset has helpers for turning prototype figures into layout units.
package preset

// ScaleKmH converts a prototype speed in km/h into a model speed in µm/s at 1:150 scale.
func ScaleKmH(a int64) int64 {
	return int64(float64(a) * 1e9 / (60 * 60) / 150)
}
