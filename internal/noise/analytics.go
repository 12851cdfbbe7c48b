package noise

import (
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Sample is one timestamped decibel reading. Samples are immutable facts:
// once captured they are never modified, only bulk-purged by day.
type Sample struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Decibel   float64   `json:"decibel"`
}

// HourlyPoint is the mean decibel level for one hour of a day.
type HourlyPoint struct {
	Hour           int       `json:"hour"`
	AverageDecibel float64   `json:"average_decibel"`
	Time           time.Time `json:"time"`
}

// DayView is the full analytics output for one calendar day. The persisted
// summary is a lossy projection of this view: hourly points and the raw
// distribution are recomputed on demand, only the scalars are stored.
type DayView struct {
	Day            time.Time     `json:"day"`
	QuietScore     float64       `json:"quiet_score"`
	AverageDecibel float64       `json:"average_decibel"`
	SampleCount    int           `json:"sample_count"`
	QuietestHour   *int          `json:"quietest_hour"`
	NoisiestHour   *int          `json:"noisiest_hour"`
	Hourly         []HourlyPoint `json:"hourly"`
	Distribution   Distribution  `json:"distribution"`
}

// DayStart normalizes an instant to local midnight of its calendar day.
func DayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Analytics computes day views from sample sets. It is stateless apart from
// its configuration and performs no I/O.
type Analytics struct {
	cfg Config
}

// NewAnalytics validates the configuration and returns an analytics engine.
func NewAnalytics(cfg Config) (*Analytics, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid analytics configuration: %w", err)
	}
	return &Analytics{cfg: cfg}, nil
}

// Config returns the engine's configuration.
func (a *Analytics) Config() Config {
	return a.cfg
}

// ComputeDay aggregates the given samples into a DayView for the calendar
// day containing the given instant. Input need not be sorted or filtered;
// samples outside the day are ignored. The computation is deterministic:
// identical inputs always yield an identical view.
func (a *Analytics) ComputeDay(samples []Sample, day time.Time) DayView {
	start := DayStart(day)
	end := start.AddDate(0, 0, 1)

	inDay := make([]Sample, 0, len(samples))
	for _, s := range samples {
		if !s.Timestamp.Before(start) && s.Timestamp.Before(end) {
			inDay = append(inDay, s)
		}
	}

	if len(inDay) == 0 {
		return DayView{Day: start, QuietScore: 100}
	}

	// Stable sort keeps equal-timestamp samples in input order so the
	// hourly grouping stays deterministic.
	sort.SliceStable(inDay, func(i, j int) bool {
		return inDay[i].Timestamp.Before(inDay[j].Timestamp)
	})

	decibels := make([]float64, len(inDay))
	var dist Distribution
	intervalSeconds := a.cfg.SampleInterval.Seconds()
	for i, s := range inDay {
		decibels[i] = s.Decibel
		// Each sample is charged one fixed interval of exposure regardless
		// of actual spacing; gaps are not interpolated.
		dist.add(a.cfg.Classify(s.Decibel), intervalSeconds)
	}

	hourly := buildHourlyPoints(inDay, start)

	var quietest, noisiest *int
	for i := range hourly {
		if quietest == nil || hourly[i].AverageDecibel < hourly[*quietest].AverageDecibel {
			h := i
			quietest = &h
		}
		if noisiest == nil || hourly[i].AverageDecibel > hourly[*noisiest].AverageDecibel {
			h := i
			noisiest = &h
		}
	}
	if quietest != nil {
		h := hourly[*quietest].Hour
		quietest = &h
	}
	if noisiest != nil {
		h := hourly[*noisiest].Hour
		noisiest = &h
	}

	return DayView{
		Day:            start,
		QuietScore:     Score(dist),
		AverageDecibel: stat.Mean(decibels, nil),
		SampleCount:    len(inDay),
		QuietestHour:   quietest,
		NoisiestHour:   noisiest,
		Hourly:         hourly,
		Distribution:   dist,
	}
}

// buildHourlyPoints groups sorted samples by local hour of day and averages
// each non-empty hour. Hours without samples are omitted, not zero-filled.
func buildHourlyPoints(sorted []Sample, dayStart time.Time) []HourlyPoint {
	sums := make(map[int]float64)
	counts := make(map[int]int)
	for _, s := range sorted {
		h := s.Timestamp.In(dayStart.Location()).Hour()
		sums[h] += s.Decibel
		counts[h]++
	}

	hours := make([]int, 0, len(sums))
	for h := range sums {
		hours = append(hours, h)
	}
	sort.Ints(hours)

	points := make([]HourlyPoint, 0, len(hours))
	for _, h := range hours {
		points = append(points, HourlyPoint{
			Hour:           h,
			AverageDecibel: sums[h] / float64(counts[h]),
			Time: time.Date(dayStart.Year(), dayStart.Month(), dayStart.Day(),
				h, 0, 0, 0, dayStart.Location()),
		})
	}
	return points
}
