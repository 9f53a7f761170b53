package models

// Chunk is one bounded-size slice of the normalized audio. The persisted
// chunk list is the resume checkpoint for the transcribing stage.
type Chunk struct {
	RecordingID string  `json:"recording_id"`
	Index       int     `json:"index"`
	StartSec    float64 `json:"start_sec"`
	EndSec      float64 `json:"end_sec"`
	Transcribed bool    `json:"transcribed"`
}

// Segment is a raw time-stamped text fragment from the transcription
// service. Times are in absolute recording seconds once the orchestrator
// has remapped them by the owning chunk's StartSec.
type Segment struct {
	RecordingID string  `json:"recording_id"`
	ChunkIndex  int     `json:"chunk_index"`
	Position    int     `json:"position"`
	Text        string  `json:"text"`
	StartSec    float64 `json:"start_sec"`
	EndSec      float64 `json:"end_sec"`
}
