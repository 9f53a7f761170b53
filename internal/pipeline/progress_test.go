package pipeline

import (
	"testing"

	"luisterlab/internal/models"
)

func TestProgress(t *testing.T) {
	tests := []struct {
		name      string
		stage     string
		total     int
		explained int
		want      int
	}{
		{"pending", models.StagePending, 0, 0, 0},
		{"extracting", models.StageExtracting, 0, 0, 10},
		{"transcribing", models.StageTranscribing, 0, 0, 30},
		{"explaining start", models.StageExplaining, 10, 0, 50},
		{"explaining halfway", models.StageExplaining, 10, 5, 72},
		{"explaining done, not yet ready", models.StageExplaining, 10, 10, 95},
		{"explaining without sentences", models.StageExplaining, 0, 0, 50},
		{"ready", models.StageReady, 10, 10, 100},
		{"error", models.StageError, 10, 5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Progress(tt.stage, tt.total, tt.explained); got != tt.want {
				t.Errorf("Progress(%s, %d, %d) = %d, want %d",
					tt.stage, tt.total, tt.explained, got, tt.want)
			}
		})
	}
}
