package anthropic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// StreamEvent is one element of a streaming completion. Text fragments arrive
// in order; the final event carries Done=true with the last-known token usage,
// or Err when the stream failed mid-way. The channel closes after the final
// event, so consumers see exactly one terminal element.
type StreamEvent struct {
	Text         string
	InputTokens  int
	OutputTokens int
	Done         bool
	Err          error
}

// sseEvent mirrors the wire shapes the messages streaming endpoint emits.
type sseEvent struct {
	Type    string `json:"type"`
	Message struct {
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	} `json:"message"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// StreamChat opens a streaming completion and returns a channel of events.
// Cancelling ctx aborts the underlying request; the channel still terminates
// with an Err event in that case.
func (c *Client) StreamChat(ctx context.Context, system string, messages []Message, maxTokens int) (<-chan StreamEvent, error) {
	reqBody := request{
		Model:     c.model,
		MaxTokens: maxTokens,
		System:    system,
		Messages:  messages,
		Stream:    true,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, apiError(resp.StatusCode, respBody)
	}

	events := make(chan StreamEvent)
	go func() {
		defer close(events)
		defer resp.Body.Close()

		var inputTokens, outputTokens int
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "" {
				continue
			}

			var evt sseEvent
			if err := json.Unmarshal([]byte(data), &evt); err != nil {
				events <- StreamEvent{Err: fmt.Errorf("parse stream event: %w", err)}
				return
			}

			switch evt.Type {
			case "message_start":
				inputTokens = evt.Message.Usage.InputTokens
			case "content_block_delta":
				if evt.Delta.Type == "text_delta" && evt.Delta.Text != "" {
					select {
					case events <- StreamEvent{Text: evt.Delta.Text}:
					case <-ctx.Done():
						events <- StreamEvent{Err: ctx.Err()}
						return
					}
				}
			case "message_delta":
				if evt.Usage.OutputTokens > 0 {
					outputTokens = evt.Usage.OutputTokens
				}
			case "message_stop":
				events <- StreamEvent{Done: true, InputTokens: inputTokens, OutputTokens: outputTokens}
				return
			case "error":
				events <- StreamEvent{Err: fmt.Errorf("stream error: %s — %s", evt.Error.Type, evt.Error.Message)}
				return
			}
		}

		if err := scanner.Err(); err != nil {
			events <- StreamEvent{Err: fmt.Errorf("read stream: %w", err)}
			return
		}
		// Stream ended without a message_stop: treat as an error so callers
		// never mistake a truncated stream for a complete one.
		events <- StreamEvent{Err: fmt.Errorf("stream ended without message_stop")}
	}()

	return events, nil
}
