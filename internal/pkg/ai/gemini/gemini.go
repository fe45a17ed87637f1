package gemini

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/qs3c/homework_helper/config"
	"github.com/qs3c/homework_helper/internal/pkg/ai"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	DefaultModel   = "gemini-1.5-flash"
)

// Provider 通过 REST 接口调用 Generative Language API
type Provider struct {
	apiKey         string
	model          string
	baseURL        string
	maxRetries     int
	retryBaseDelay time.Duration
	timeout        time.Duration
	client         *http.Client
	logger         zerolog.Logger
}

func New(cfg config.AIConfig, logger zerolog.Logger) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}

	p := &Provider{
		apiKey:         cfg.APIKey,
		model:          cfg.Model,
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		maxRetries:     cfg.MaxRetries,
		retryBaseDelay: time.Second,
		timeout:        time.Duration(cfg.TimeoutSeconds) * time.Second,
		client:         &http.Client{},
		logger:         logger.With().Str("component", "gemini").Logger(),
	}
	if p.model == "" {
		p.model = DefaultModel
	}
	if p.baseURL == "" {
		p.baseURL = DefaultBaseURL
	}
	if p.maxRetries < 0 {
		p.maxRetries = 0
	}
	if p.timeout <= 0 {
		p.timeout = 60 * time.Second
	}
	return p, nil
}

func (p *Provider) Name() string { return "gemini" }

// Generate 单次生成
func (p *Provider) Generate(ctx context.Context, req ai.Request) (*ai.Response, error) {
	start := time.Now()

	body, err := p.buildBody(req)
	if err != nil {
		return nil, err
	}

	var out apiResponse
	err = p.withRetry(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()

		resp, err := p.post(ctx, "generateContent", "", body)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		return json.NewDecoder(resp.Body).Decode(&out)
	})
	if err != nil {
		return nil, fmt.Errorf("ai generate: %w", err)
	}

	text, err := out.text()
	if err != nil {
		return nil, fmt.Errorf("ai generate: %w", err)
	}

	return &ai.Response{
		Text:         text,
		Model:        p.model,
		InputTokens:  out.UsageMetadata.PromptTokenCount,
		OutputTokens: out.UsageMetadata.CandidatesTokenCount,
		Duration:     time.Since(start),
	}, nil
}

// Stream 流式生成，只在收到第一段内容之前重试
func (p *Provider) Stream(ctx context.Context, req ai.Request, onChunk func(string) error) (*ai.Response, error) {
	start := time.Now()

	body, err := p.buildBody(req)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var resp *http.Response
	err = p.withRetry(ctx, func(ctx context.Context) error {
		r, err := p.post(ctx, "streamGenerateContent", "alt=sse", body)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ai stream: %w", err)
	}
	defer resp.Body.Close()

	result := &ai.Response{Model: p.model}
	var full strings.Builder

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}

		var chunk apiResponse
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return nil, fmt.Errorf("ai stream: decode chunk: %w", err)
		}
		if chunk.PromptFeedback.BlockReason != "" {
			return nil, fmt.Errorf("ai stream: %w: %s", ai.ErrBlocked, chunk.PromptFeedback.BlockReason)
		}
		if chunk.UsageMetadata.PromptTokenCount > 0 {
			result.InputTokens = chunk.UsageMetadata.PromptTokenCount
			result.OutputTokens = chunk.UsageMetadata.CandidatesTokenCount
		}

		text := chunk.partsText()
		if text == "" {
			continue
		}
		full.WriteString(text)
		if err := onChunk(text); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("ai stream: %w", ai.ErrTimeout)
		}
		return nil, fmt.Errorf("ai stream: %w", err)
	}

	if full.Len() == 0 {
		return nil, fmt.Errorf("ai stream: %w", ai.ErrEmptyResponse)
	}
	result.Text = full.String()
	result.Duration = time.Since(start)
	return result, nil
}

func (p *Provider) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			delay := p.retryBaseDelay * time.Duration(1<<(attempt-1))
			p.logger.Warn().Err(lastErr).Int("attempt", attempt).Dur("delay", delay).Msg("retrying ai request")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil || !ai.IsRetryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// post 发起请求，非 200 时关闭响应体并返回映射后的错误
func (p *Provider) post(ctx context.Context, method, query string, body []byte) (*http.Response, error) {
	url := fmt.Sprintf("%s/v1beta/models/%s:%s", p.baseURL, p.model, method)
	if query != "" {
		url += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ai.ErrTimeout
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ai.ErrUnavailable
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, mapHTTPError(resp.StatusCode, data)
	}
	return resp, nil
}

func mapHTTPError(status int, body []byte) error {
	var errResp apiErrorResponse
	_ = json.Unmarshal(body, &errResp)

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ai.ErrUnauthorized
	case status == http.StatusTooManyRequests:
		return ai.ErrRateLimit
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return ai.ErrTimeout
	case status >= 500:
		return ai.ErrUnavailable
	case status == http.StatusBadRequest && strings.Contains(strings.ToLower(errResp.Error.Message), "image"):
		return fmt.Errorf("%w: %s", ai.ErrInvalidImage, errResp.Error.Message)
	default:
		return fmt.Errorf("api error (status %d): %s", status, errResp.Error.Message)
	}
}

func (p *Provider) buildBody(req ai.Request) ([]byte, error) {
	if req.Image != nil {
		if err := ai.ValidateImage(req.Image); err != nil {
			return nil, err
		}
	}

	body := apiRequest{
		GenerationConfig: &generationConfig{Temperature: 0.4, MaxOutputTokens: 2048},
	}
	if req.SystemPrompt != "" {
		body.SystemInstruction = &content{Parts: []part{{Text: req.SystemPrompt}}}
	}
	for _, m := range req.History {
		role := ai.RoleUser
		if m.Role == ai.RoleModel {
			role = ai.RoleModel
		}
		body.Contents = append(body.Contents, content{Role: role, Parts: []part{{Text: m.Text}}})
	}

	turn := content{Role: ai.RoleUser}
	if req.Prompt != "" {
		turn.Parts = append(turn.Parts, part{Text: req.Prompt})
	}
	if req.Image != nil {
		turn.Parts = append(turn.Parts, part{InlineData: &inlineData{
			MIMEType: req.Image.MIMEType,
			Data:     base64.StdEncoding.EncodeToString(req.Image.Data),
		}})
	}
	if len(turn.Parts) == 0 {
		return nil, fmt.Errorf("empty prompt")
	}
	body.Contents = append(body.Contents, turn)

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return data, nil
}
