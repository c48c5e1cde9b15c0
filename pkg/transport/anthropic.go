package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/christopherdebeer/dygram/pkg/execution"
	"github.com/christopherdebeer/dygram/pkg/httpclient"
)

// AnthropicTransport implements LLMTransport against the Anthropic Messages
// API, translating the core's vendor-neutral execution.Message shape to and
// from Anthropic's content-block wire format.
type AnthropicTransport struct {
	apiKey     string
	host       string
	httpClient *httpclient.Client
}

// NewAnthropicTransport builds a transport that retries transient failures
// with the same smart-retry/rate-limit-aware client the rest of the stack
// uses for outbound HTTP. An empty baseURL defaults to the public API host.
func NewAnthropicTransport(apiKey, baseURL string, timeout time.Duration) *AnthropicTransport {
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	return &AnthropicTransport{
		apiKey: apiKey,
		host:   baseURL,
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: timeout}),
			httpclient.WithMaxRetries(3),
			httpclient.WithBaseDelay(500*time.Millisecond),
			httpclient.WithHeaderParser(httpclient.ParseAnthropicHeaders),
		),
	}
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthropicContent struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     *map[string]any `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature,omitempty"`
	System      string             `json:"system,omitempty"`
	Tools       []anthropicTool    `json:"tools,omitempty"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type anthropicResponse struct {
	Content    []anthropicContent `json:"content"`
	StopReason string             `json:"stop_reason"`
	Usage      anthropicUsage     `json:"usage"`
	Error      *anthropicError    `json:"error,omitempty"`
}

// InvokeWithTools implements LLMTransport.
func (t *AnthropicTransport) InvokeWithTools(ctx context.Context, conversation []execution.Message, tools []execution.ToolDefinition, opts Options) (Response, error) {
	req := t.buildRequest(conversation, tools, opts)

	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("marshal anthropic request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.host+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("build anthropic request: %w", err)
	}
	httpReq.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", t.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("anthropic request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return Response{}, fmt.Errorf("anthropic request failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var ar anthropicResponse
	if err := json.Unmarshal(respBody, &ar); err != nil {
		return Response{}, fmt.Errorf("decode anthropic response: %w", err)
	}
	if ar.Error != nil {
		return Response{}, fmt.Errorf("anthropic API error: %s", ar.Error.Message)
	}

	return Response{
		Content:    fromAnthropicContent(ar.Content),
		StopReason: toStopReason(ar.StopReason),
		Tokens:     ar.Usage.InputTokens + ar.Usage.OutputTokens,
	}, nil
}

func (t *AnthropicTransport) buildRequest(conversation []execution.Message, tools []execution.ToolDefinition, opts Options) anthropicRequest {
	messages := make([]anthropicMessage, 0, len(conversation))
	for _, m := range conversation {
		messages = append(messages, anthropicMessage{Role: m.Role, Content: toAnthropicContent(m.Content)})
	}

	req := anthropicRequest{
		Model:       opts.Model,
		Messages:    messages,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		System:      opts.SystemPrompt,
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = 4096
	}
	if len(tools) > 0 {
		req.Tools = make([]anthropicTool, len(tools))
		for i, td := range tools {
			req.Tools[i] = anthropicTool{Name: td.Name, Description: td.Description, InputSchema: td.InputSchema}
		}
	}
	return req
}

func toAnthropicContent(blocks []execution.ContentBlock) []anthropicContent {
	out := make([]anthropicContent, 0, len(blocks))
	for _, b := range blocks {
		switch b.Type {
		case "text":
			out = append(out, anthropicContent{Type: "text", Text: b.Text})
		case "tool_use":
			input := b.Input
			if input == nil {
				input = map[string]any{}
			}
			out = append(out, anthropicContent{Type: "tool_use", ID: b.ToolUseID, Name: b.ToolName, Input: &input})
		case "tool_result":
			content := ""
			if b.Output != nil {
				if encoded, err := json.Marshal(b.Output); err == nil {
					content = string(encoded)
				}
			}
			if b.Error != "" {
				content = b.Error
			}
			out = append(out, anthropicContent{
				Type:      "tool_result",
				ToolUseID: b.ToolUseID,
				Content:   content,
				IsError:   b.Success != nil && !*b.Success,
			})
		}
	}
	return out
}

func fromAnthropicContent(blocks []anthropicContent) []execution.ContentBlock {
	out := make([]execution.ContentBlock, 0, len(blocks))
	for _, c := range blocks {
		switch c.Type {
		case "text":
			out = append(out, execution.ContentBlock{Type: "text", Text: c.Text})
		case "tool_use":
			var input map[string]any
			if c.Input != nil {
				input = *c.Input
			}
			out = append(out, execution.ContentBlock{Type: "tool_use", ToolUseID: c.ID, ToolName: c.Name, Input: input})
		}
	}
	return out
}

func toStopReason(s string) execution.StopReason {
	switch s {
	case "end_turn", "stop_sequence":
		return execution.StopEndTurn
	case "tool_use":
		return execution.StopToolUse
	case "max_tokens":
		return execution.StopMaxTokens
	default:
		return execution.StopError
	}
}
