package pipeline

import "luisterlab/internal/models"

// Progress maps a recording's committed stage and counters to a 0-100
// percentage. Each stage owns a base value; within explaining the value
// interpolates between 50 and 95, reserving the last 5 points for the
// commit to ready. Pure function over committed fields, safe to call
// concurrently with an in-flight stage.
func Progress(stage string, totalSentences, explainedSentences int) int {
	if stage == models.StageExplaining && totalSentences > 0 {
		frac := float64(explainedSentences) / float64(totalSentences)
		return 50 + int(frac*45)
	}

	switch stage {
	case models.StagePending:
		return 0
	case models.StageExtracting:
		return 10
	case models.StageTranscribing:
		return 30
	case models.StageExplaining:
		return 50
	case models.StageReady:
		return 100
	default: // error or unknown
		return 0
	}
}
