package models

// Sentence is the assembled, user-facing unit: timed text with a
// translation, bilingual explanations and extracted vocabulary.
// Explanation fields start nil and are filled batch by batch.
type Sentence struct {
	ID            string    `json:"id"`
	RecordingID   string    `json:"recording_id"`
	Index         int       `json:"index"`
	Text          string    `json:"text"`
	StartSec      float64   `json:"start_sec"`
	EndSec        float64   `json:"end_sec"`
	TranslationEN *string   `json:"translation_en,omitempty"`
	ExplanationNL *string   `json:"explanation_nl,omitempty"`
	ExplanationEN *string   `json:"explanation_en,omitempty"`
	Keywords      []Keyword `json:"keywords,omitempty"`
}

// Explained reports whether the sentence has received its annotation.
func (s *Sentence) Explained() bool {
	return s.TranslationEN != nil
}

// Keyword is one vocabulary item extracted from a sentence.
type Keyword struct {
	ID         string `json:"id"`
	SentenceID string `json:"sentence_id"`
	Word       string `json:"word"`
	MeaningNL  string `json:"meaning_nl"`
	MeaningEN  string `json:"meaning_en"`
}
