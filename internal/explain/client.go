package explain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Explanation is the annotation produced for one sentence.
type Explanation struct {
	TranslationEN string    `json:"translation_en"`
	ExplanationNL string    `json:"explanation_nl"`
	ExplanationEN string    `json:"explanation_en"`
	Keywords      []Keyword `json:"keywords"`
}

// Keyword is one extracted vocabulary item.
type Keyword struct {
	Word      string `json:"word"`
	MeaningNL string `json:"meaning_nl"`
	MeaningEN string `json:"meaning_en"`
}

// ExplanationError wraps annotation service failures.
type ExplanationError struct {
	Err error
}

func (e *ExplanationError) Error() string { return "explanation failed: " + e.Err.Error() }
func (e *ExplanationError) Unwrap() error { return e.Err }

// Client calls a chat-completions endpoint to annotate sentence batches.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
}

// NewClient creates an explanation client.
func NewClient(baseURL, apiKey, model string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		http:    &http.Client{Timeout: timeout},
	}
}

const systemPrompt = "You are a Dutch language teacher. Always respond with valid JSON only."

func buildPrompt(sentences []string) (string, error) {
	sentencesJSON, err := json.MarshalIndent(sentences, "", "  ")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`You are an expert Dutch language teacher helping students learn Dutch.

For each of the following Dutch sentences, provide:
1. A complete and accurate English translation of the sentence
2. A simple explanation in Dutch (1-2 sentences explaining the context and any grammar points)
3. An explanation in English (1-2 sentences about usage, context, or grammar notes - NOT a translation)
4. Extract 2-4 key vocabulary words with their meanings in both Dutch and English

IMPORTANT:
- The translation_en should be a direct, accurate translation of the Dutch sentence
- The explanation_en should provide context, usage notes, or grammar tips - NOT repeat the translation
- Keep explanations simple and helpful for language learners
- Focus on commonly used words and expressions
- For keywords, include the base/dictionary form of verbs and nouns

Respond ONLY with a valid JSON object in this exact format:
{
  "sentences": [
    {
      "translation_en": "Complete English translation here",
      "explanation_nl": "Dutch explanation here",
      "explanation_en": "English usage/context explanation here (not a translation)",
      "keywords": [
        {"word": "dutch_word", "meaning_nl": "Dutch meaning", "meaning_en": "English meaning"}
      ]
    }
  ]
}

Dutch sentences to explain:
%s`, sentencesJSON), nil
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	MaxTokens      int           `json:"max_tokens"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type batchResult struct {
	Sentences []Explanation `json:"sentences"`
}

// ExplainBatch annotates one batch of sentences with a single service
// call. The result has exactly one entry per input sentence, in input
// order; a count mismatch is an error rather than silently padded, so a
// partial response never reaches the store.
func (c *Client) ExplainBatch(ctx context.Context, sentences []string) ([]Explanation, error) {
	if len(sentences) == 0 {
		return nil, nil
	}

	prompt, err := buildPrompt(sentences)
	if err != nil {
		return nil, &ExplanationError{Err: err}
	}

	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.3,
		MaxTokens:   4000,
	}
	reqBody.ResponseFormat.Type = "json_object"

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &ExplanationError{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, &ExplanationError{Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &ExplanationError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return nil, &ExplanationError{Err: fmt.Errorf("http %d: %s", resp.StatusCode, string(b))}
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, &ExplanationError{Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	if len(cr.Choices) == 0 {
		return nil, &ExplanationError{Err: fmt.Errorf("response contains no choices")}
	}

	var result batchResult
	if err := json.Unmarshal([]byte(cr.Choices[0].Message.Content), &result); err != nil {
		return nil, &ExplanationError{Err: fmt.Errorf("failed to parse model output as JSON: %w", err)}
	}
	if len(result.Sentences) != len(sentences) {
		return nil, &ExplanationError{Err: fmt.Errorf("got %d explanations for %d sentences",
			len(result.Sentences), len(sentences))}
	}
	return result.Sentences, nil
}
