package analysis

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config 描述 OpenAI 兼容的 chat/completions 服务。
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// OpenAIClient 通过 chat/completions 接口做多模态分析。
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	log        zerolog.Logger
}

func NewOpenAIClient(cfg Config, log zerolog.Logger) *OpenAIClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &OpenAIClient{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		FinishReason string `json:"finish_reason"`
		Message      struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *OpenAIClient) Analyze(ctx context.Context, media Media) (*Suggestion, error) {
	parts := make([]contentPart, 0, 4)
	if len(media.Image) > 0 {
		dataURL := "data:" + media.ImageType + ";base64," + base64.StdEncoding.EncodeToString(media.Image)
		parts = append(parts,
			contentPart{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
			contentPart{Type: "text", Text: "Analyze the image."},
		)
	}
	if media.HasAudio {
		parts = append(parts, contentPart{Type: "text", Text: audioHint})
	}
	parts = append(parts, contentPart{Type: "text", Text: instructions})

	body, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: []chatMessage{{Role: "user", Content: parts}},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call analysis service: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	c.log.Debug().
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Str("model", c.model).
		Msg("analysis response")

	var decoded chatResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := http.StatusText(resp.StatusCode)
		if decoded.Error != nil && decoded.Error.Message != "" {
			msg = decoded.Error.Message
		}
		return nil, fmt.Errorf("analysis service returned %d: %s", resp.StatusCode, msg)
	}
	if len(decoded.Choices) == 0 {
		return nil, ErrNoJSON
	}

	choice := decoded.Choices[0]
	if choice.FinishReason == "content_filter" || choice.Message.Refusal != "" {
		c.log.Warn().Str("finish_reason", choice.FinishReason).Msg("analysis blocked")
		return nil, ErrBlocked
	}

	suggestion, err := ParseSuggestion(choice.Message.Content)
	if err != nil {
		c.log.Error().Err(err).Str("raw", choice.Message.Content).Msg("unusable analysis response")
		return nil, err
	}
	return suggestion, nil
}
