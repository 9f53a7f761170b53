package models

import "time"

// Recording is one uploaded audio/video file being turned into a study artifact.
type Recording struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name"`
	SourcePath         string     `json:"source_path"`
	AudioPath          *string    `json:"audio_path,omitempty"`
	Stage              string     `json:"stage"`
	ErrorDetail        *string    `json:"error_detail,omitempty"`
	TotalSentences     int        `json:"total_sentences"`
	ExplainedSentences int        `json:"explained_sentences"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
}

// Processing stages. Transitions are monotonic except StageError,
// which can be entered from any non-terminal stage.
const (
	StagePending      = "pending"
	StageExtracting   = "extracting"
	StageTranscribing = "transcribing"
	StageExplaining   = "explaining"
	StageReady        = "ready"
	StageError        = "error"
)

// Terminal reports whether the recording is in a terminal stage.
func (r *Recording) Terminal() bool {
	return r.Stage == StageReady || r.Stage == StageError
}
