package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ruyi-tarot/tarot-service/internal/config"
	"github.com/ruyi-tarot/tarot-service/internal/models"
	"github.com/sirupsen/logrus"
)

// Interpreter generates a full reading from a drawn spread. The session
// state machine depends on this interface, not on the HTTP client.
type Interpreter interface {
	Interpret(ctx context.Context, req models.ReadingRequest) (models.FullReadingResponse, error)
}

// Message is one turn of a chat-completions conversation, as accepted
// by the raw proxy endpoint.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client calls the DeepSeek chat-completions API. All transport errors,
// non-2xx statuses and unparseable bodies collapse into
// models.ErrInterpretationFailed; no partial results are returned.
type Client struct {
	url    string
	apiKey string
	model  string
	client *http.Client
	log    *logrus.Logger
}

// NewClient initializes an oracle client with a bounded timeout.
func NewClient(cfg *config.Config, log *logrus.Logger) *Client {
	return &Client{
		url:    cfg.DeepSeekURL,
		apiKey: cfg.DeepSeekAPIKey,
		model:  cfg.DeepSeekModel,
		client: &http.Client{Timeout: cfg.OracleTimeout},
		log:    log,
	}
}

type chatRequest struct {
	Model          string    `json:"model"`
	Messages       []Message `json:"messages"`
	Temperature    float64   `json:"temperature"`
	MaxTokens      int       `json:"max_tokens"`
	Stream         bool      `json:"stream"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Chat sends raw messages upstream and returns the model's text. Used
// directly by the proxy endpoint. DeepSeek requires the word "json" in
// a system message when JSON mode is requested, so one is injected if
// the caller did not provide it.
func (c *Client) Chat(ctx context.Context, messages []Message, maxTokens int, jsonMode bool) (string, error) {
	if maxTokens <= 0 {
		maxTokens = 3000
	}
	if jsonMode && !hasSystemJSONHint(messages) {
		messages = append([]Message{{
			Role:    "system",
			Content: "You are a helpful assistant. You must output your response in valid JSON format.",
		}}, messages...)
	}

	reqBody := chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: 0.7,
		MaxTokens:   maxTokens,
	}
	if jsonMode {
		reqBody.ResponseFormat = &struct {
			Type string `json:"type"`
		}{Type: "json_object"}
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upstream call failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read upstream response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("upstream status %d: %s", resp.StatusCode, string(respBody))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", fmt.Errorf("failed to decode upstream response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("upstream returned no choices")
	}

	c.log.Debugf("Oracle call completed in %dms", time.Since(start).Milliseconds())
	return strings.TrimSpace(chatResp.Choices[0].Message.Content), nil
}

// Interpret sends the structured reading request and parses the
// structured response, defensively.
func (c *Client) Interpret(ctx context.Context, req models.ReadingRequest) (models.FullReadingResponse, error) {
	messages := []Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: buildReadingPrompt(req)},
	}

	content, err := c.Chat(ctx, messages, 3000, true)
	if err != nil {
		c.log.Warnf("Oracle call failed: %v", err)
		return models.FullReadingResponse{}, fmt.Errorf("%w: %v", models.ErrInterpretationFailed, err)
	}

	var reading models.FullReadingResponse
	if err := extractJSON(content, &reading); err != nil {
		c.log.Warnf("Oracle returned unparseable body: %v", err)
		return models.FullReadingResponse{}, fmt.Errorf("%w: %v", models.ErrInterpretationFailed, err)
	}
	if reading.Summary == "" || len(reading.CardInterpretations) == 0 {
		return models.FullReadingResponse{}, fmt.Errorf("%w: response missing required fields", models.ErrInterpretationFailed)
	}

	return reading, nil
}

// extractJSON parses v from text: a strict parse first, then with
// markdown fences stripped, then the substring between the first '{'
// and the last '}'. The upstream model is not guaranteed to emit clean
// structured output.
func extractJSON(text string, v any) error {
	if err := json.Unmarshal([]byte(text), v); err == nil {
		return nil
	}

	clean := strings.ReplaceAll(text, "```json", "")
	clean = strings.ReplaceAll(clean, "```", "")
	clean = strings.TrimSpace(clean)
	if err := json.Unmarshal([]byte(clean), v); err == nil {
		return nil
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return fmt.Errorf("no JSON structure found in response")
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), v); err != nil {
		return fmt.Errorf("response did not contain valid JSON: %w", err)
	}
	return nil
}

func hasSystemJSONHint(messages []Message) bool {
	for _, m := range messages {
		if m.Role == "system" && strings.Contains(strings.ToLower(m.Content), "json") {
			return true
		}
	}
	return false
}
