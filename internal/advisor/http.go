package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"TradeSentinel/internal/model"
)

const systemPrompt = "You are an expert cryptocurrency trader. Analyze the candle data you are given " +
	"and decide whether to Buy, Sell, or Hold based on trends and technical indicators. " +
	`Reply with JSON only: {"decision": "Buy|Sell|Hold", "explanation": "..."}`

// HTTPAdvisor calls an OpenAI-compatible chat completions endpoint.
type HTTPAdvisor struct {
	BaseURL string
	APIKey  string
	Model   string
	// MaxBars limits how much of the window is sent.
	MaxBars int
	Client  *http.Client
}

// NewHTTPAdvisor creates an advisor for baseURL, e.g. https://api.openai.com.
func NewHTTPAdvisor(baseURL, apiKey, modelName string) *HTTPAdvisor {
	return &HTTPAdvisor{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Model:   modelName,
		MaxBars: 200,
		Client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (a *HTTPAdvisor) Name() string { return "http:" + a.Model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// compactBar keeps the prompt small.
type compactBar struct {
	T string  `json:"t"`
	O float64 `json:"o"`
	H float64 `json:"h"`
	L float64 `json:"l"`
	C float64 `json:"c"`
	V float64 `json:"v"`
}

func (a *HTTPAdvisor) Advise(ctx context.Context, window []model.Bar) (Judgment, error) {
	if len(window) == 0 {
		return Judgment{}, model.ErrNoBars
	}
	if a.MaxBars > 0 && len(window) > a.MaxBars {
		window = window[len(window)-a.MaxBars:]
	}
	candles := make([]compactBar, len(window))
	for i, b := range window {
		candles[i] = compactBar{T: b.Time.UTC().Format(time.RFC3339), O: b.Open, H: b.High, L: b.Low, C: b.Close, V: b.Volume}
	}
	data, err := json.Marshal(candles)
	if err != nil {
		return Judgment{}, err
	}

	body, err := json.Marshal(chatRequest{
		Model: a.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: "Data: " + string(data)},
		},
		MaxTokens: 500,
	})
	if err != nil {
		return Judgment{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Judgment{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if a.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.APIKey)
	}

	resp, err := a.Client.Do(req)
	if err != nil {
		return Judgment{}, fmt.Errorf("advisor request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Judgment{}, fmt.Errorf("advisor read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Judgment{}, fmt.Errorf("advisor: status %d, body: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var cr chatResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return Judgment{}, fmt.Errorf("advisor decode: %w", err)
	}
	if cr.Error != nil {
		return Judgment{}, fmt.Errorf("advisor api error: %s", cr.Error.Message)
	}
	if len(cr.Choices) == 0 {
		return Judgment{}, fmt.Errorf("advisor: empty choices")
	}
	return ParseJudgment(cr.Choices[0].Message.Content)
}
