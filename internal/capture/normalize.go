package capture

import "math"

const (
	// noiseFloorDBFS is the meter floor; readings at or below it register
	// as silence.
	noiseFloorDBFS = -80

	// maxDecibel bounds the normalized output range.
	maxDecibel = 120
)

// NormalizeDecibel maps a logarithmic power reading (dBFS, ≤ 0) into a
// bounded [0, 120] dB scale. Readings at or below the noise floor clamp
// to 0.
func NormalizeDecibel(power float64) float64 {
	if power <= noiseFloorDBFS {
		return 0
	}
	level := math.Pow(10, power/20)
	return math.Min(level*maxDecibel, maxDecibel)
}
