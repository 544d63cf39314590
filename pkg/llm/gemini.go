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

	"google.golang.org/genai"

	"github.com/loomrun/loom/pkg/errs"
)

// GeminiConfig configures the Google Gemini chat-model backend.
type GeminiConfig struct {
	APIKey      string
	Model       string
	Temperature float32
}

// GeminiModel is a ChatModel backed by Google's unified genai SDK.
type GeminiModel struct {
	client *genai.Client
	cfg    GeminiConfig
}

func NewGeminiModel(ctx context.Context, cfg GeminiConfig) (*GeminiModel, error) {
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, errs.Wrap(errs.KindModel, "gemini_model", "failed to create client", err)
	}
	return &GeminiModel{client: client, cfg: cfg}, nil
}

func toGeminiContents(messages []Message) ([]*genai.Content, string) {
	var system string
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem {
			system += m.Content
			continue
		}
		role := genai.RoleUser
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	return contents, system
}

func (m *GeminiModel) Invoke(ctx context.Context, messages []Message, tools []ToolDefinition) (Response, error) {
	contents, system := toGeminiContents(messages)

	cfg := &genai.GenerateContentConfig{Temperature: genai.Ptr(m.cfg.Temperature)}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := m.client.Models.GenerateContent(ctx, m.cfg.Model, contents, cfg)
	if err != nil {
		return Response{}, errs.Wrap(errs.KindModel, "gemini_model", "generate content failed", err)
	}
	if len(resp.Candidates) == 0 {
		return Response{}, errs.New(errs.KindModel, "gemini_model", "empty generation response")
	}

	out := Response{Text: resp.Text()}
	if resp.UsageMetadata != nil {
		out.Tokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.FunctionCall != nil {
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				Name:      part.FunctionCall.Name,
				Arguments: part.FunctionCall.Args,
			})
		}
	}
	return out, nil
}

func (m *GeminiModel) Stream(ctx context.Context, messages []Message, tools []ToolDefinition) (<-chan StreamChunk, error) {
	contents, system := toGeminiContents(messages)
	cfg := &genai.GenerateContentConfig{Temperature: genai.Ptr(m.cfg.Temperature)}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		var tokens int
		for resp, err := range m.client.Models.GenerateContentStream(ctx, m.cfg.Model, contents, cfg) {
			if err != nil {
				out <- StreamChunk{Type: "error", Err: err}
				return
			}
			text := resp.Text()
			if text != "" {
				tokens++
				out <- StreamChunk{Type: "text", Text: text}
			}
		}
		out <- StreamChunk{Type: "done", Tokens: tokens}
	}()
	return out, nil
}

func (m *GeminiModel) Model() string { return m.cfg.Model }
func (m *GeminiModel) Close() error  { return nil }
