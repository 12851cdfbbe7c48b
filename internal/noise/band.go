package noise

// Band is an exposure classification for a single decibel reading.
type Band int

const (
	BandQuiet Band = iota
	BandModerate
	BandLoud
	BandIntense
)

func (b Band) String() string {
	switch b {
	case BandQuiet:
		return "quiet"
	case BandModerate:
		return "moderate"
	case BandLoud:
		return "loud"
	case BandIntense:
		return "intense"
	default:
		return "unknown"
	}
}

// Classify maps a decibel reading to its exposure band using half-open
// intervals: [0, quiet) → Quiet, [quiet, moderate) → Moderate,
// [moderate, loud) → Loud, [loud, ∞) → Intense. The four bands partition
// the whole input range with no gaps or overlaps.
func (c Config) Classify(decibel float64) Band {
	switch {
	case decibel < c.QuietThreshold:
		return BandQuiet
	case decibel < c.ModerateThreshold:
		return BandModerate
	case decibel < c.LoudThreshold:
		return BandLoud
	default:
		return BandIntense
	}
}
