package severity

import "github.com/steveyegge/rcagov/internal/types"

// Confidence bounds. Every report starts at BaseConfidence; each component
// adds at most MaxComponentScore.
const (
	BaseConfidence    = 40
	MaxConfidence     = 100
	MaxComponentScore = 20
)

// Score is the breakdown of a report's confidence.
type Score struct {
	LogQuality        int
	EvidenceStrength  int
	PatternMatchScore int
	Confidence        int
}

// ScoreEvidence rates evidence completeness.
//
// Scoring rules:
// - log quality: +10 for logs, +10 for a stack trace
// - evidence strength: +10 for repro steps (scaled by success rate when one is known),
//   +5 for screenshots, +5 for at least one artifact ref
// - pattern match: perPrior for each earlier closed report with the same signature
//
// Each component is capped at MaxComponentScore and the total at MaxConfidence.
func ScoreEvidence(ev types.Evidence, priorMatches, perPrior int) Score {
	var s Score

	if ev.HasLogs() {
		s.LogQuality += 10
	}
	if ev.HasStackTrace() {
		s.LogQuality += 10
	}

	if ev.HasReproSteps() {
		repro := 10
		if ev.ReproSuccessRate > 0 {
			repro = int(float64(repro)*ev.ReproSuccessRate + 0.5)
		}
		s.EvidenceStrength += repro
	}
	if ev.HasScreenshots() {
		s.EvidenceStrength += 5
	}
	if len(ev.Refs) > 0 {
		s.EvidenceStrength += 5
	}

	if priorMatches > 0 && perPrior > 0 {
		s.PatternMatchScore = priorMatches * perPrior
	}

	s.LogQuality = clamp(s.LogQuality)
	s.EvidenceStrength = clamp(s.EvidenceStrength)
	s.PatternMatchScore = clamp(s.PatternMatchScore)

	s.Confidence = BaseConfidence + s.LogQuality + s.EvidenceStrength + s.PatternMatchScore
	if s.Confidence > MaxConfidence {
		s.Confidence = MaxConfidence
	}
	return s
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > MaxComponentScore {
		return MaxComponentScore
	}
	return v
}
