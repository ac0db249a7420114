// Package synthesizer turns retrieved context plus a question into a
// grounded answer via the LLM gateway. Sampling is deterministic
// (temperature 0) and the model is told to admit when the context does
// not contain the answer.
package synthesizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"crimesight-go/internal/logger"
)

// maxRetries applies per answer request; retry is bounded by design.
const maxRetries = 2

const answerTemplate = `Based on the context provided, answer the following question as accurately as possible.
If the information is not available in the context, respond with "I don't know."

Context:
%s

Question: %s`

// SynthesisError signals that no answer could be obtained after
// retries. Fatal for the pipeline run.
type SynthesisError struct {
	Err error
}

func (e *SynthesisError) Error() string { return fmt.Sprintf("answer synthesis failed: %v", e.Err) }
func (e *SynthesisError) Unwrap() error { return e.Err }

// Synthesizer calls an OpenAI-style chat-completions gateway.
type Synthesizer struct {
	url        string
	apiKey     string
	model      string
	httpClient *http.Client
	mock       bool
	log        *logrus.Entry
}

func New(url, apiKey, model string) *Synthesizer {
	return &Synthesizer{
		url:        url,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		log:        logger.New().WithComponent("synthesizer"),
	}
}

// NewFromEnv reads LLM_GATEWAY_URL / LLM_API_KEY / LLM_MODEL.
// USE_MOCK_LLM=true serves a canned answer for offline demos.
func NewFromEnv() *Synthesizer {
	s := New(os.Getenv("LLM_GATEWAY_URL"), os.Getenv("LLM_API_KEY"), os.Getenv("LLM_MODEL"))
	if os.Getenv("USE_MOCK_LLM") == "true" {
		s.mock = true
	}
	return s
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
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

// Answer builds one request from the retrieved context and the verbatim
// question and extracts the plain-text completion.
func (s *Synthesizer) Answer(ctx context.Context, contextDocs []string, question string) (string, error) {
	if s.mock {
		return "MOCK ANSWER: the context does not cover this question.", nil
	}
	if s.url == "" {
		return "", &SynthesisError{Err: fmt.Errorf("llm gateway not configured")}
	}

	prompt := fmt.Sprintf(answerTemplate, formatContext(contextDocs), question)
	payload, err := json.Marshal(chatRequest{
		Model:       s.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: 0.0,
	})
	if err != nil {
		return "", &SynthesisError{Err: err}
	}

	var answer string
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if s.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+s.apiKey)
		}
		resp, err := s.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 500 {
			return fmt.Errorf("llm server error: %s", string(body))
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("llm request rejected: status=%d body=%s", resp.StatusCode, string(body)))
		}

		var parsed chatResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return fmt.Errorf("decode llm response: %w", err)
		}
		if len(parsed.Choices) == 0 {
			return fmt.Errorf("llm response has no choices")
		}
		answer = strings.TrimSpace(parsed.Choices[0].Message.Content)
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries), ctx)
	if err := backoff.Retry(operation, bo); err != nil {
		s.log.WithError(err).Error("llm request failed after retries")
		return "", &SynthesisError{Err: err}
	}
	return answer, nil
}

// formatContext renders retrieved chunks as a plain listing, one per
// line.
func formatContext(docs []string) string {
	if len(docs) == 0 {
		return "(no context retrieved)"
	}
	var b strings.Builder
	for _, doc := range docs {
		b.WriteString("- ")
		b.WriteString(doc)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
