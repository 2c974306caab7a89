package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sandevgo/ragline/internal/config"
	"github.com/sandevgo/ragline/internal/core"
	"github.com/sandevgo/ragline/pkg/log"
)

// OpenAICompatible speaks the chat-completions dialect served by local
// inference stacks (llama.cpp server, vLLM, ollama's OpenAI endpoint).
type OpenAICompatible struct {
	baseProvider
}

func NewOpenAICompatible(cfg *config.LLMConfig) *OpenAICompatible {
	return &OpenAICompatible{
		baseProvider: newBaseProvider(
			cfg.BaseURL,
			cfg.APIKey,
			cfg.Model,
			time.Duration(cfg.TimeoutSeconds)*time.Second,
		),
	}
}

// Complete returns a full non-streaming completion.
func (o *OpenAICompatible) Complete(ctx context.Context, messages []core.Message) (string, error) {
	payload := map[string]any{
		"model":    o.model,
		"messages": messages,
		"stream":   false,
	}

	resp, err := o.doRequest(ctx, http.MethodPost, "/v1/chat/completions", payload)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("http %d: %s", resp.StatusCode, string(data))
	}

	var result struct {
		Choices []struct {
			Message core.Message `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("empty choices: %s", string(data))
	}
	return result.Choices[0].Message.Content, nil
}

// Stream issues a streaming completion and calls emit for every text
// fragment in arrival order. Returns once the stream is drained or errors.
func (o *OpenAICompatible) Stream(ctx context.Context, messages []core.Message, emit func(fragment string)) error {
	payload := map[string]any{
		"model":    o.model,
		"messages": messages,
		"stream":   true,
	}

	resp, err := o.doRequest(ctx, http.MethodPost, "/v1/chat/completions", payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("http %d: %s", resp.StatusCode, string(data))
	}

	logger := log.FromCtx(ctx)
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		line = strings.TrimPrefix(line, "data:")
		line = strings.TrimSpace(line)
		if line == "" || line == "[DONE]" {
			continue
		}

		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			logger.Debug().Str("line", line).Msg("skipping non-JSON stream line")
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if content := chunk.Choices[0].Delta.Content; content != "" {
			emit(content)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return nil
}
