package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/Edjavier-collab/Main2MI-sub000/app/models"
)

const geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

var ErrUnavailable = errors.New("llm: provider temporarily unavailable")

// Gemini calls the generateContent REST endpoint through a circuit breaker.
type Gemini struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[string]
	logger  *slog.Logger
}

func NewGemini(apiKey, model string, logger *slog.Logger) *Gemini {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gemini{
		apiKey:  apiKey,
		model:   model,
		baseURL: geminiBaseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
	g.breaker = gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "gemini",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			var se *statusError
			return err == nil || (errors.As(err, &se) && se.code < 500 && se.code != http.StatusTooManyRequests)
		},
	})
	return g
}

// WithBaseURL points the client at another endpoint.
func (g *Gemini) WithBaseURL(u string) *Gemini {
	g.baseURL = strings.TrimRight(u, "/")
	return g
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("gemini: status %d: %s", e.code, e.body)
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	GenerationConfig  struct {
		Temperature      float64 `json:"temperature"`
		MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
		ResponseMimeType string  `json:"responseMimeType,omitempty"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (g *Gemini) generate(ctx context.Context, system string, contents []geminiContent, jsonMode bool) (string, error) {
	req := geminiRequest{
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: system}}},
		Contents:          contents,
	}
	req.GenerationConfig.Temperature = 0.8
	if jsonMode {
		req.GenerationConfig.Temperature = 0.2
		req.GenerationConfig.ResponseMimeType = "application/json"
	}

	out, err := g.breaker.Execute(func() (string, error) {
		return g.do(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", ErrUnavailable
	}
	return out, err
}

func (g *Gemini) do(ctx context.Context, body geminiRequest) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.baseURL, url.PathEscape(g.model), url.QueryEscape(g.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", &statusError{code: resp.StatusCode, body: string(raw)}
	}

	var parsed geminiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode gemini response: %w", err)
	}
	if len(parsed.Candidates) == 0 {
		return "", errors.New("gemini: empty response")
	}
	var b strings.Builder
	for _, p := range parsed.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return strings.TrimSpace(b.String()), nil
}

func (g *Gemini) PatientReply(ctx context.Context, patient models.PatientProfile, history []models.ChatMessage, message string) (string, error) {
	contents := make([]geminiContent, 0, len(history)+1)
	for _, m := range history {
		role := "model"
		if m.Author == models.AuthorUser {
			role = "user"
		}
		contents = append(contents, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Text}}})
	}
	contents = append(contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: message}}})
	return g.generate(ctx, patientInstruction(patient), contents, false)
}

func (g *Gemini) AnalyzeSession(ctx context.Context, patient models.PatientProfile, transcript []models.ChatMessage) (models.Feedback, error) {
	if models.ClinicianTurns(transcript) == 0 {
		return InsufficientFeedback(), nil
	}
	out, err := g.generate(ctx, feedbackInstruction, []geminiContent{{
		Role: "user", Parts: []geminiPart{{Text: feedbackPrompt(patient, transcript)}},
	}}, true)
	if err != nil {
		return models.Feedback{}, err
	}
	fb, err := ParseFeedback([]byte(out))
	if err != nil {
		g.logger.Error("feedback response unparseable", "error", err)
		return models.Feedback{}, fmt.Errorf("parse feedback: %w", err)
	}
	return fb, nil
}

func (g *Gemini) CoachingSummary(ctx context.Context, sessions []models.Session) (models.CoachingSummary, error) {
	out, err := g.generate(ctx, summaryInstruction, []geminiContent{{
		Role: "user", Parts: []geminiPart{{Text: summaryPrompt(sessions)}},
	}}, true)
	if err != nil {
		return models.CoachingSummary{}, err
	}
	var sum models.CoachingSummary
	if err := json.Unmarshal([]byte(stripFences(out)), &sum); err != nil {
		return models.CoachingSummary{}, fmt.Errorf("parse summary: %w", err)
	}
	if sum.TotalSessions == 0 {
		sum.TotalSessions = len(sessions)
	}
	if sum.DateRange == "" {
		sum.DateRange = dateRange(sessions)
	}
	return sum, nil
}

func dateRange(sessions []models.Session) string {
	if len(sessions) == 0 {
		return ""
	}
	first, last := sessions[0].Date, sessions[0].Date
	for _, s := range sessions[1:] {
		if s.Date.Before(first) {
			first = s.Date
		}
		if s.Date.After(last) {
			last = s.Date
		}
	}
	return first.Format("Jan 2, 2006") + " - " + last.Format("Jan 2, 2006")
}
