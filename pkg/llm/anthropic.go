// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package llm

import (
	"context"
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/loomrun/loom/pkg/errs"
)

// AnthropicConfig configures the Anthropic chat-model backend.
type AnthropicConfig struct {
	APIKey    string
	Model     string
	MaxTokens int64
}

// AnthropicModel is a ChatModel backed by Anthropic's Messages API.
type AnthropicModel struct {
	client anthropic.Client
	cfg    AnthropicConfig
}

func NewAnthropicModel(cfg AnthropicConfig) *AnthropicModel {
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-20250514"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4096
	}
	client := anthropic.NewClient(option.WithAPIKey(cfg.APIKey))
	return &AnthropicModel{client: client, cfg: cfg}
}

func splitSystemAndTurns(messages []Message) (string, []anthropic.MessageParam) {
	var system string
	turns := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system += m.Content
		case RoleAssistant:
			turns = append(turns, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			turns = append(turns, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return system, turns
}

func toAnthropicTools(tools []ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: anthropic.ToolInputSchemaParam{Properties: t.Parameters["properties"]},
			},
		})
	}
	return out
}

func (m *AnthropicModel) Invoke(ctx context.Context, messages []Message, tools []ToolDefinition) (Response, error) {
	system, turns := splitSystemAndTurns(messages)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(m.cfg.Model),
		MaxTokens: m.cfg.MaxTokens,
		Messages:  turns,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(tools) > 0 {
		params.Tools = toAnthropicTools(tools)
	}

	resp, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return Response{}, errs.Wrap(errs.KindModel, "anthropic_model", "message create failed", err)
	}

	out := Response{Tokens: int(resp.Usage.InputTokens + resp.Usage.OutputTokens)}
	for _, block := range resp.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			out.Text += b.Text
		case anthropic.ToolUseBlock:
			var args map[string]any
			raw, _ := b.Input.MarshalJSON()
			_ = json.Unmarshal(raw, &args)
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        b.ID,
				Name:      b.Name,
				Arguments: args,
				RawArgs:   string(raw),
			})
		}
	}
	return out, nil
}

func (m *AnthropicModel) Stream(ctx context.Context, messages []Message, tools []ToolDefinition) (<-chan StreamChunk, error) {
	system, turns := splitSystemAndTurns(messages)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(m.cfg.Model),
		MaxTokens: m.cfg.MaxTokens,
		Messages:  turns,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(tools) > 0 {
		params.Tools = toAnthropicTools(tools)
	}

	stream := m.client.Messages.NewStreaming(ctx, params)
	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		var tokens int
		for stream.Next() {
			event := stream.Current()
			if delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
				if text := delta.Delta.Text; text != "" {
					tokens++
					out <- StreamChunk{Type: "text", Text: text}
				}
			}
		}
		if err := stream.Err(); err != nil {
			out <- StreamChunk{Type: "error", Err: err}
			return
		}
		out <- StreamChunk{Type: "done", Tokens: tokens}
	}()
	return out, nil
}

func (m *AnthropicModel) Model() string { return m.cfg.Model }
func (m *AnthropicModel) Close() error  { return nil }
