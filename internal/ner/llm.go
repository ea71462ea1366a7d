package ner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dativo-io/piiguard/internal/classifier"
	piiotel "github.com/dativo-io/piiguard/internal/otel"
)

// DefaultLLMModel is used when no model name is configured.
const DefaultLLMModel = "gpt-4o-mini"

const llmSystemPrompt = `You are a named-entity recognizer for personal data.
Return ONLY a JSON array. Each element is {"text": "<exact substring>", "label": "<TYPE>", "score": <0..1>}.
Allowed labels: %s.
Copy "text" exactly as it appears in the input. Return [] when nothing is found.`

// LLMModel asks an OpenAI-compatible chat model for entities and locates
// every occurrence of each returned string in the text itself, so offsets
// never depend on the model counting characters.
type LLMModel struct {
	client   *openai.Client
	model    string
	labels   map[string]string
	entities []string
}

// NewLLMModel creates an LLM-backed NER model. baseURL may be empty for
// api.openai.com; otherwise it is scheme+host and /v1 is appended.
func NewLLMModel(apiKey, baseURL, model string, entities []string) *LLMModel {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = strings.TrimRight(baseURL, "/") + "/v1"
	}
	return newLLMModelWithClient(openai.NewClientWithConfig(config), model, entities)
}

func newLLMModelWithClient(client *openai.Client, model string, entities []string) *LLMModel {
	if model == "" {
		model = DefaultLLMModel
	}
	if len(entities) == 0 {
		entities = DefaultEntities
	}
	return &LLMModel{client: client, model: model, labels: DefaultLabelMap, entities: entities}
}

type llmEntity struct {
	Text  string  `json:"text"`
	Label string  `json:"label"`
	Score *float64 `json:"score"`
}

// Detect implements classifier.NERModel.
func (m *LLMModel) Detect(ctx context.Context, text, language string) ([]classifier.Detection, error) {
	ctx, span := tracer.Start(ctx, "ner.llm.detect",
		trace.WithAttributes(piiotel.NERAttributes("llm", m.model)...))
	defer span.End()

	if strings.TrimSpace(text) == "" {
		return []classifier.Detection{}, nil
	}

	resp, err := m.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: m.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: fmt.Sprintf(llmSystemPrompt, strings.Join(m.entities, ", "))},
			{Role: openai.ChatMessageRoleUser, Content: "Language: " + language + "\n\n" + text},
		},
		Temperature: 0,
	})
	if err != nil {
		err = wrapBackendError(ctx, "llm", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: llm returned no choices", classifier.ErrModelUnavailable)
	}

	var found []llmEntity
	if err := json.Unmarshal([]byte(stripCodeFence(resp.Choices[0].Message.Content)), &found); err != nil {
		err = fmt.Errorf("%w: llm returned malformed JSON: %v", classifier.ErrModelUnavailable, err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	out := locate(text, found, m.labels)
	span.SetAttributes(piiotel.PIIEntityCount.Int(len(out)))
	return out, nil
}

// locate finds every occurrence of each entity string and returns code
// point spans. Duplicate spans are reported once.
func locate(text string, found []llmEntity, labels map[string]string) []classifier.Detection {
	t := classifier.NewText(text)
	type span struct {
		start, end int
		entity     string
	}
	seen := map[span]bool{}
	out := []classifier.Detection{}
	for _, f := range found {
		needle := strings.TrimSpace(f.Text)
		if needle == "" {
			continue
		}
		entity := mapLabel(labels, f.Label)
		score := DefaultScore
		if f.Score != nil && classifier.ValidScore(*f.Score) {
			score = *f.Score
		}
		for from := 0; from < len(text); {
			i := strings.Index(text[from:], needle)
			if i < 0 {
				break
			}
			b := from + i
			s := span{start: t.RuneOffset(b), end: t.RuneOffset(b + len(needle)), entity: entity}
			from = b + len(needle)
			if seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, classifier.Detection{
				EntityType: entity,
				Start:      s.start,
				End:        s.end,
				Score:      score,
				Source:     classifier.SourceNER,
			})
		}
	}
	return out
}

// stripCodeFence removes a surrounding ```json ... ``` block if present.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
