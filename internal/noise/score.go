package noise

// Distribution accumulates time spent in each exposure band over a day.
type Distribution struct {
	Quiet    float64 `json:"quiet_seconds"`
	Moderate float64 `json:"moderate_seconds"`
	Loud     float64 `json:"loud_seconds"`
	Intense  float64 `json:"intense_seconds"`
}

// Total returns the accumulated exposure time across all bands, in seconds.
func (d Distribution) Total() float64 {
	return d.Quiet + d.Moderate + d.Loud + d.Intense
}

// add charges seconds of exposure to the given band.
func (d *Distribution) add(b Band, seconds float64) {
	switch b {
	case BandQuiet:
		d.Quiet += seconds
	case BandModerate:
		d.Moderate += seconds
	case BandLoud:
		d.Loud += seconds
	case BandIntense:
		d.Intense += seconds
	}
}

// Score converts an exposure distribution into a 0-100 quiet score.
//
// The coefficients are policy constants; existing score history depends on
// them, so they must not change without a data migration. A day with no
// recorded exposure scores 100: absence of samples is treated as quiet,
// never penalized.
func Score(d Distribution) float64 {
	if d.Total() <= 0 {
		return 100
	}

	quietMinutes := d.Quiet / 60
	moderateMinutes := d.Moderate / 60
	loudMinutes := d.Loud / 60
	intenseMinutes := d.Intense / 60

	score := 30.0
	// Quiet exposure is rewarded but capped at two hours.
	score += min(quietMinutes, 120) * 0.5
	score -= moderateMinutes * 0.6
	score -= loudMinutes * 1.2
	score -= intenseMinutes * 2.5

	return max(0, min(100, score))
}
