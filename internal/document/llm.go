package document

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/spec-search/internal/cost"
	"github.com/sells-group/spec-search/internal/model"
	"github.com/sells-group/spec-search/pkg/anthropic"
	"github.com/sells-group/spec-search/pkg/openai"
)

// Reply is a model's text answer with its token usage.
type Reply struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}

// VisionModel reads a document attached inline to a prompt.
type VisionModel interface {
	Provider() cost.Provider
	Read(ctx context.Context, prompt string, doc model.Document) (Reply, error)
}

// TextModel answers a plain text prompt.
type TextModel interface {
	Provider() cost.Provider
	Complete(ctx context.Context, prompt string) (Reply, error)
}

// OpenAIVision sends documents as file or image_url content parts.
type OpenAIVision struct {
	client    openai.Client
	model     string
	maxTokens int
}

// NewOpenAIVision wraps an OpenAI client.
func NewOpenAIVision(client openai.Client, model string, maxTokens int) *OpenAIVision {
	return &OpenAIVision{client: client, model: model, maxTokens: maxTokens}
}

// Provider implements VisionModel.
func (v *OpenAIVision) Provider() cost.Provider { return cost.OpenAI }

// Read implements VisionModel.
func (v *OpenAIVision) Read(ctx context.Context, prompt string, doc model.Document) (Reply, error) {
	resp, err := v.client.ChatCompletion(ctx, openai.ChatRequest{
		Model:     v.model,
		MaxTokens: v.maxTokens,
		Messages: []openai.Message{{
			Role: "user",
			Content: []openai.ContentPart{
				openai.TextPart(prompt),
				openai.AttachmentPart(doc.Filename, mediaType(doc), doc.Data),
			},
		}},
	})
	if err != nil {
		return Reply{}, eris.Wrap(err, "document: openai vision")
	}
	text, ok := resp.Text()
	if !ok {
		return Reply{}, eris.New("document: openai vision returned no content")
	}
	return Reply{
		Text:         text,
		Model:        resp.Model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

// Anthropic serves both the vision and the text role.
type Anthropic struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropic wraps an Anthropic client.
func NewAnthropic(client anthropic.Client, model string, maxTokens int64) *Anthropic {
	return &Anthropic{client: client, model: model, maxTokens: maxTokens}
}

// Provider implements VisionModel and TextModel.
func (a *Anthropic) Provider() cost.Provider { return cost.Anthropic }

// Read implements VisionModel.
func (a *Anthropic) Read(ctx context.Context, prompt string, doc model.Document) (Reply, error) {
	return a.send(ctx, anthropic.Message{
		Role:        "user",
		Content:     prompt,
		Attachments: []anthropic.Attachment{{MediaType: mediaType(doc), Data: doc.Data}},
	})
}

// Complete implements TextModel.
func (a *Anthropic) Complete(ctx context.Context, prompt string) (Reply, error) {
	return a.send(ctx, anthropic.Message{Role: "user", Content: prompt})
}

func (a *Anthropic) send(ctx context.Context, msg anthropic.Message) (Reply, error) {
	temp := 0.0
	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       a.model,
		MaxTokens:   a.maxTokens,
		Messages:    []anthropic.Message{msg},
		Temperature: &temp,
	})
	if err != nil {
		return Reply{}, eris.Wrap(err, "document: anthropic")
	}
	resp.Usage.LogUsage(resp.Model, "document")
	return Reply{
		Text:         resp.Text(),
		Model:        resp.Model,
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	}, nil
}

func mediaType(doc model.Document) string {
	if doc.MediaType != "" {
		return doc.MediaType
	}
	return "application/pdf"
}

// timed runs fn and reports its duration.
func timed[T any](fn func() (T, error)) (T, time.Duration, error) {
	start := time.Now()
	v, err := fn()
	return v, time.Since(start), err
}
