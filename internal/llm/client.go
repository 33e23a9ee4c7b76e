// Package llm talks to an OpenAI-compatible completion API.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Client struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
	Logger     logrus.FieldLogger
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) log() logrus.FieldLogger {
	if c.Logger != nil {
		return c.Logger
	}
	return logrus.StandardLogger()
}

func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.BaseURL, "/") + path
}

// Complete sends messages to /chat/completions and returns the first
// choice's content.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	body, err := json.Marshal(map[string]any{
		"model":    c.Model,
		"messages": messages,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/chat/completions"), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	c.log().WithFields(logrus.Fields{
		"model":    c.Model,
		"messages": len(messages),
		"bytes":    len(body),
	}).Debug("chat completion request")

	var out struct {
		Choices []struct {
			Message      Message `json:"message"`
			FinishReason string  `json:"finish_reason"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := c.do(req, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("empty response: no choices")
	}

	c.log().WithFields(logrus.Fields{
		"prompt_tokens":     out.Usage.PromptTokens,
		"completion_tokens": out.Usage.CompletionTokens,
		"finish_reason":     out.Choices[0].FinishReason,
	}).Debug("chat completion response")

	return out.Choices[0].Message.Content, nil
}

// UsageReport is the body of the usage endpoint. Buckets are kept raw since
// their shape differs between providers.
type UsageReport struct {
	Object                       string            `json:"object"`
	Data                         []json.RawMessage `json:"data"`
	TPMData                      []json.RawMessage `json:"tpm_data"`
	FTData                       []json.RawMessage `json:"ft_data"`
	DalleAPIData                 []json.RawMessage `json:"dalle_api_data"`
	WhisperAPIData               []json.RawMessage `json:"whisper_api_data"`
	TTSAPIData                   []json.RawMessage `json:"tts_api_data"`
	AssistantCodeInterpreterData []json.RawMessage `json:"assistant_code_interpreter_data"`
	RetrievalStorageData         []json.RawMessage `json:"retrieval_storage_data"`
}

// Usage fetches the usage report for one day.
func (c *Client) Usage(ctx context.Context, date time.Time) (*UsageReport, error) {
	q := url.Values{}
	q.Set("date", date.Format(time.DateOnly))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/usage")+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	var report UsageReport
	if err := c.do(req, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("connection error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return classifyResponse(resp, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
