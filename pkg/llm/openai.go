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

	openai "github.com/sashabaranov/go-openai"

	"github.com/loomrun/loom/pkg/errs"
)

// OpenAIConfig configures the OpenAI chat-model backend.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
}

// OpenAIModel is a ChatModel backed by OpenAI's chat completions API.
type OpenAIModel struct {
	client *openai.Client
	cfg    OpenAIConfig
}

func NewOpenAIModel(cfg OpenAIConfig) *OpenAIModel {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	return &OpenAIModel{client: openai.NewClientWithConfig(clientCfg), cfg: cfg}
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msg := openai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		}
		for _, tc := range m.ToolCalls {
			args := tc.RawArgs
			if args == "" {
				b, _ := json.Marshal(tc.Arguments)
				args = string(b)
			}
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: args,
				},
			})
		}
		out = append(out, msg)
	}
	return out
}

func toOpenAITools(tools []ToolDefinition) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}

func (m *OpenAIModel) Invoke(ctx context.Context, messages []Message, tools []ToolDefinition) (Response, error) {
	req := openai.ChatCompletionRequest{
		Model:       m.cfg.Model,
		Messages:    toOpenAIMessages(messages),
		Temperature: m.cfg.Temperature,
	}
	if m.cfg.MaxTokens > 0 {
		req.MaxTokens = m.cfg.MaxTokens
	}
	if len(tools) > 0 {
		req.Tools = toOpenAITools(tools)
	}

	resp, err := m.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return Response{}, errs.Wrap(errs.KindModel, "openai_model", "chat completion failed", err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, errs.New(errs.KindModel, "openai_model", "empty completion response")
	}

	choice := resp.Choices[0]
	out := Response{Text: choice.Message.Content, Tokens: resp.Usage.TotalTokens}
	for _, tc := range choice.Message.ToolCalls {
		var args map[string]any
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
			RawArgs:   tc.Function.Arguments,
		})
	}
	return out, nil
}

func (m *OpenAIModel) Stream(ctx context.Context, messages []Message, tools []ToolDefinition) (<-chan StreamChunk, error) {
	req := openai.ChatCompletionRequest{
		Model:       m.cfg.Model,
		Messages:    toOpenAIMessages(messages),
		Temperature: m.cfg.Temperature,
		Stream:      true,
	}
	if len(tools) > 0 {
		req.Tools = toOpenAITools(tools)
	}

	stream, err := m.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, errs.Wrap(errs.KindModel, "openai_model", "stream creation failed", err)
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		defer stream.Close()
		var tokens int
		for {
			resp, err := stream.Recv()
			if err != nil {
				if err.Error() == "EOF" {
					out <- StreamChunk{Type: "done", Tokens: tokens}
					return
				}
				out <- StreamChunk{Type: "error", Err: err}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta
			if delta.Content != "" {
				tokens++
				out <- StreamChunk{Type: "text", Text: delta.Content}
			}
			for _, tc := range delta.ToolCalls {
				var args map[string]any
				_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
				out <- StreamChunk{Type: "tool_call", ToolCall: &ToolCall{
					ID:        tc.ID,
					Name:      tc.Function.Name,
					Arguments: args,
					RawArgs:   tc.Function.Arguments,
				}}
			}
		}
	}()
	return out, nil
}

func (m *OpenAIModel) Model() string { return m.cfg.Model }
func (m *OpenAIModel) Close() error  { return nil }
