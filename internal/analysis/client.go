package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/markbunyevacz/lambda-extractor/internal/common"
	"github.com/markbunyevacz/lambda-extractor/internal/extract"
)

// Request carries everything one structuring call needs. TemplateID comes
// from the routed expert; empty selects the config default.
type Request struct {
	Text       string
	Tables     []extract.Table
	Filename   string
	TemplateID string
}

// ErrAnalysis wraps terminal analysis failures: the token-budget ladder was
// exhausted or a non-retryable transport error occurred.
var ErrAnalysis = errors.New("analysis failed")

// tokenBudgetError marks a rejection caused specifically by the requested
// token budget; only this class participates in the decrement-and-retry loop.
type tokenBudgetError struct {
	status int
	body   string
}

func (e *tokenBudgetError) Error() string {
	return fmt.Sprintf("token budget rejected (status %d): %s", e.status, truncateBody(e.body, 256))
}

// Service turns text+tables into a StructuredResult via a chat-completions
// style endpoint. The active Config snapshot is fetched per call so hot
// reloads apply to the next task without restarting.
type Service struct {
	provider   *Provider
	httpClient *http.Client
	logger     *slog.Logger
}

func NewService(provider *Provider, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		provider:   provider,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

// Analyze runs the structuring call with the token-budget retry ladder.
// Returned errors are terminal (wrapped ErrAnalysis); parse failures of an
// accepted response do NOT error — they come back as an error-shaped result
// so downstream always receives a predictable shape.
func (s *Service) Analyze(ctx context.Context, req Request) (StructuredResult, error) {
	cfg := s.provider.Current()
	// Hand-built snapshots can bypass validate(); the ladder must shrink.
	if cfg.TokenDecrement <= 0 {
		cfg.TokenDecrement = cfg.MaxTokens
		if cfg.TokenDecrement <= 0 {
			cfg.TokenDecrement = 1
		}
	}
	rid := common.RequestIDFromContext(ctx)
	if rid == "" {
		rid = uuid.New().String()
	}
	start := time.Now()

	prompt, err := buildUserPrompt(cfg, req.TemplateID, req.Text, req.Filename, req.Tables)
	if err != nil {
		return StructuredResult{}, fmt.Errorf("%w: %v", ErrAnalysis, err)
	}

	s.logger.Info("analysis.start",
		"req_id", rid, "model", cfg.Model, "template", req.TemplateID,
		"text_len", len(req.Text), "tables", len(req.Tables), "max_tokens", cfg.MaxTokens,
	)

	var (
		raw      string
		lastErr  error
		attempts int
	)
	for tokens := cfg.MaxTokens; tokens >= cfg.MinTokens; tokens -= cfg.TokenDecrement {
		if cfg.MaxRetries > 0 && attempts >= cfg.MaxRetries {
			break
		}
		attempts++

		callCtx := ctx
		var cancel context.CancelFunc
		if cfg.Timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		}
		raw, lastErr = s.complete(callCtx, cfg, prompt, tokens)
		if cancel != nil {
			cancel()
		}

		if lastErr == nil {
			res := parseStructured(raw)
			if res.Err != "" {
				s.logger.Warn("analysis.parse_failed",
					"req_id", rid, "error", res.Err,
					"elapsed_ms", time.Since(start).Milliseconds(),
				)
			} else {
				s.logger.Info("analysis.ok",
					"req_id", rid, "confidence", res.Confidence, "attempts", attempts,
					"elapsed_ms", time.Since(start).Milliseconds(),
				)
			}
			return res, nil
		}

		var tbe *tokenBudgetError
		if !errors.As(lastErr, &tbe) {
			// Network, auth, malformed request: not covered by this policy.
			s.logger.Error("analysis.failed",
				"req_id", rid, "error", lastErr, "attempts", attempts,
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			return StructuredResult{}, fmt.Errorf("%w: %v", ErrAnalysis, lastErr)
		}
		s.logger.Warn("analysis.token_budget_retry",
			"req_id", rid, "rejected_tokens", tokens, "next_tokens", tokens-cfg.TokenDecrement,
		)
	}

	s.logger.Error("analysis.retries_exhausted",
		"req_id", rid, "attempts", attempts, "min_tokens", cfg.MinTokens,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return StructuredResult{}, fmt.Errorf("%w: token budget ladder exhausted: %v", ErrAnalysis, lastErr)
}

// complete performs one chat/completions call at the given token budget.
func (s *Service) complete(ctx context.Context, cfg Config, prompt string, maxTokens int) (string, error) {
	body := map[string]any{
		"model":           cfg.Model,
		"temperature":     cfg.Temperature,
		"max_tokens":      maxTokens,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "user", "content": prompt},
			{"role": "system", "content": "JSON Schema:\n" + mustJSON(BuildDatasheetJSONSchema())},
		},
	}

	b, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	endpoint := strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("analysis http error: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			s.logger.Warn("analysis response body close error", "error", cerr)
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if isTokenBudgetRejection(resp.StatusCode, raw) {
			return "", &tokenBudgetError{status: resp.StatusCode, body: string(raw)}
		}
		return "", fmt.Errorf("analysis status %d: %s", resp.StatusCode, truncateBody(string(raw), 1024))
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	if len(cc.Choices) == 0 {
		return "", fmt.Errorf("no choices in completion response")
	}
	return strings.TrimSpace(cc.Choices[0].Message.Content), nil
}

// isTokenBudgetRejection classifies an API rejection as token-budget-specific.
// Providers phrase this differently; all known variants mention the token
// limit in a 4xx body.
func isTokenBudgetRejection(status int, body []byte) bool {
	if status != http.StatusBadRequest && status != http.StatusRequestEntityTooLarge {
		return false
	}
	b := strings.ToLower(string(body))
	return strings.Contains(b, "max_tokens") ||
		strings.Contains(b, "maximum context length") ||
		strings.Contains(b, "token limit") ||
		strings.Contains(b, "too many tokens")
}

func truncateBody(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
