package noise

import (
	"math"
	"testing"
)

// TestScoreEmptyDistribution tests that a day with no exposure scores 100
func TestScoreEmptyDistribution(t *testing.T) {
	if got := Score(Distribution{}); got != 100 {
		t.Errorf("Expected score 100 for empty distribution, got %v", got)
	}
}

// TestScoreExposureMix tests the score formula against a hand-computed mix
func TestScoreExposureMix(t *testing.T) {
	// 2 minutes quiet, 1 minute intense:
	// 30 + min(2,120)*0.5 - 1*2.5 = 28.5
	dist := Distribution{Quiet: 120, Intense: 60}
	if got := Score(dist); math.Abs(got-28.5) > 1e-9 {
		t.Errorf("Expected score 28.5, got %v", got)
	}
}

// TestScoreQuietCredit tests that quiet exposure raises the score
func TestScoreQuietCredit(t *testing.T) {
	// 60 quiet minutes: 30 + 60*0.5 = 60
	dist := Distribution{Quiet: 60 * 60}
	if got := Score(dist); math.Abs(got-60) > 1e-9 {
		t.Errorf("Expected score 60, got %v", got)
	}
}

// TestScoreQuietCreditCapped tests that quiet credit stops accruing past
// two hours
func TestScoreQuietCreditCapped(t *testing.T) {
	twoHours := Score(Distribution{Quiet: 120 * 60})
	eightHours := Score(Distribution{Quiet: 480 * 60})

	if math.Abs(twoHours-90) > 1e-9 {
		t.Errorf("Expected score 90 at two quiet hours, got %v", twoHours)
	}
	if eightHours != twoHours {
		t.Errorf("Expected quiet credit to cap at two hours: got %v vs %v", eightHours, twoHours)
	}
}

// TestScoreClampedToZero tests that heavy exposure cannot push the score
// below zero
func TestScoreClampedToZero(t *testing.T) {
	dist := Distribution{Intense: 600 * 60}
	if got := Score(dist); got != 0 {
		t.Errorf("Expected score clamped to 0, got %v", got)
	}
}

// TestScoreMonotonicInNoise tests that adding noisy exposure never raises
// the score
func TestScoreMonotonicInNoise(t *testing.T) {
	base := Distribution{Quiet: 60 * 60}
	baseScore := Score(base)

	for _, extra := range []Distribution{
		{Quiet: 60 * 60, Moderate: 10 * 60},
		{Quiet: 60 * 60, Loud: 10 * 60},
		{Quiet: 60 * 60, Intense: 10 * 60},
	} {
		if got := Score(extra); got >= baseScore {
			t.Errorf("Expected noisier distribution %+v to score below %v, got %v", extra, baseScore, got)
		}
	}
}

// TestScoreBandWeights tests that louder bands cost more per minute
func TestScoreBandWeights(t *testing.T) {
	moderate := Score(Distribution{Moderate: 10 * 60})
	loud := Score(Distribution{Loud: 10 * 60})
	intense := Score(Distribution{Intense: 10 * 60})

	if !(moderate > loud && loud > intense) {
		t.Errorf("Expected moderate > loud > intense, got %v / %v / %v", moderate, loud, intense)
	}
}

// TestDistributionTotal tests exposure accumulation across bands
func TestDistributionTotal(t *testing.T) {
	var dist Distribution
	dist.add(BandQuiet, 60)
	dist.add(BandModerate, 60)
	dist.add(BandLoud, 30)
	dist.add(BandIntense, 30)

	if got := dist.Total(); got != 180 {
		t.Errorf("Expected total 180 seconds, got %v", got)
	}
	if dist.Quiet != 60 || dist.Moderate != 60 || dist.Loud != 30 || dist.Intense != 30 {
		t.Errorf("Unexpected distribution: %+v", dist)
	}
}
