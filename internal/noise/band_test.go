package noise

import "testing"

// TestClassifyBands tests band assignment across the whole input range,
// including the exact threshold boundaries
func TestClassifyBands(t *testing.T) {
	cfg := DefaultConfig()

	cases := []struct {
		decibel float64
		want    Band
	}{
		{0, BandQuiet},
		{25, BandQuiet},
		{39.999, BandQuiet},
		{40, BandModerate}, // boundary belongs to the upper band
		{55, BandModerate},
		{69.999, BandModerate},
		{70, BandLoud},
		{80, BandLoud},
		{84.999, BandLoud},
		{85, BandIntense},
		{100, BandIntense},
		{120, BandIntense},
	}

	for _, tc := range cases {
		if got := cfg.Classify(tc.decibel); got != tc.want {
			t.Errorf("Classify(%v) = %v, want %v", tc.decibel, got, tc.want)
		}
	}
}

// TestClassifyCustomThresholds tests that classification follows the
// configured thresholds, not the defaults
func TestClassifyCustomThresholds(t *testing.T) {
	cfg := Config{
		SampleInterval:    DefaultConfig().SampleInterval,
		QuietThreshold:    30,
		ModerateThreshold: 50,
		LoudThreshold:     60,
	}

	if got := cfg.Classify(35); got != BandModerate {
		t.Errorf("Classify(35) = %v, want %v", got, BandModerate)
	}
	if got := cfg.Classify(55); got != BandLoud {
		t.Errorf("Classify(55) = %v, want %v", got, BandLoud)
	}
	if got := cfg.Classify(60); got != BandIntense {
		t.Errorf("Classify(60) = %v, want %v", got, BandIntense)
	}
}

// TestBandString tests the textual band names
func TestBandString(t *testing.T) {
	cases := map[Band]string{
		BandQuiet:    "quiet",
		BandModerate: "moderate",
		BandLoud:     "loud",
		BandIntense:  "intense",
		Band(99):     "unknown",
	}
	for band, want := range cases {
		if got := band.String(); got != want {
			t.Errorf("Band(%d).String() = %q, want %q", int(band), got, want)
		}
	}
}
