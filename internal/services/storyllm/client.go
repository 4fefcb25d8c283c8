// Package storyllm adapts a book title into a story outline and scene list
// using a chat model with a strict JSON schema response format.
package storyllm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"storyreel/internal/logging"
	"storyreel/internal/metrics"
	"storyreel/internal/services"
	"storyreel/internal/session"
)

const (
	stageName      = "story"
	maxSceneCount  = 12
	defaultTimeout = 120 * time.Second
)

// Config captures the runtime settings required to talk to the chat model.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// Client wraps the chat completion API.
type Client struct {
	api     openai.Client
	model   string
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// adaptation is the structured output the model must return.
type adaptation struct {
	Title                string        `json:"title" jsonschema_description:"The book's title as commonly published"`
	Summary              string        `json:"summary" jsonschema_description:"Two or three sentence synopsis of the adapted story"`
	VisualStyle          string        `json:"visual_style" jsonschema_description:"One consistent art direction for every scene, e.g. palette, medium, lighting"`
	CharacterDescription string        `json:"character_description" jsonschema_description:"Physical description of the protagonist, stable across scenes"`
	Scenes               []sceneDraft  `json:"scenes" jsonschema_description:"Ordered narrated scenes, between 3 and 8"`
	Sources              []sourceDraft `json:"sources" jsonschema_description:"Works or pages the adaptation draws on; may be empty"`
}

type sceneDraft struct {
	TextEn       string `json:"text_en" jsonschema_description:"English narration, one to three short sentences"`
	TextZh       string `json:"text_zh" jsonschema_description:"Simplified Chinese translation of text_en with matching sentence count"`
	VisualPrompt string `json:"visual_prompt" jsonschema_description:"What the camera shows, without repeating the art direction"`
	VoiceMood    string `json:"voice_mood" jsonschema_description:"A few words describing the narration mood, e.g. calm, tense, joyful"`
}

type sourceDraft struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

var adaptationSchema = generateSchema[adaptation]()

func generateSchema[T any]() any {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

const systemPrompt = `You adapt books into short narrated films.
Given a book title, retell its core story as 3 to 8 scenes a narrator can read aloud in under 15 seconds each.
Every scene needs English narration, a faithful Simplified Chinese translation with the same number of sentences, a visual prompt for a video model, and a voice mood.
Keep the visual style and the protagonist's description identical in spirit across all scenes.
Respond with JSON only.`

// New constructs a Client. Extra request options are appended last so tests
// can override transport settings.
func New(cfg Config, logger *slog.Logger, m *metrics.Metrics, extra ...option.RequestOption) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		option.WithRequestTimeout(timeout),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	opts = append(opts, extra...)
	return &Client{
		api:     openai.NewClient(opts...),
		model:   strings.TrimSpace(cfg.Model),
		logger:  logging.NewComponentLogger(logger, "storyllm"),
		metrics: m,
	}
}

// AdaptStory turns a title into story metadata and pending scenes with
// dense 1-based ids. Any failure, including a malformed reply, is an
// input error.
func (c *Client) AdaptStory(ctx context.Context, title string) (session.Story, []session.Scene, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return session.Story{}, nil, services.Wrap(services.ErrInput, stageName, "adapt", "title is required", nil)
	}
	start := time.Now()
	content, err := c.complete(ctx, title)
	c.metrics.ObserveService(stageName, err, time.Since(start))
	if err != nil {
		return session.Story{}, nil, services.Wrap(services.ErrInput, stageName, "adapt", "chat completion failed", err)
	}

	var parsed adaptation
	if err := decodeJSON(content, &parsed); err != nil {
		return session.Story{}, nil, services.Wrap(services.ErrInput, stageName, "decode", "reply is not valid story JSON", err)
	}
	story, scenes, err := parsed.toSession()
	if err != nil {
		return session.Story{}, nil, services.Wrap(services.ErrInput, stageName, "validate", "reply is incomplete", err)
	}

	logging.WithContext(ctx, c.logger).Info("story adapted",
		logging.String(logging.FieldEventType, "story_adapted"),
		logging.String("title", story.Title),
		logging.Int("scene_count", len(scenes)),
		logging.Duration("elapsed", time.Since(start)),
	)
	return story, scenes, nil
}

func (c *Client) complete(ctx context.Context, title string) (string, error) {
	schemaParam := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:        "story_adaptation",
		Description: openai.String("A book adapted into narrated scenes"),
		Schema:      adaptationSchema,
		Strict:      openai.Bool(true),
	}
	completion, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(fmt.Sprintf("Book title: %s", title)),
		},
		Model: c.model,
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: schemaParam,
			},
		},
	})
	if err != nil {
		return "", err
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	choice := completion.Choices[0]
	if refusal := strings.TrimSpace(choice.Message.Refusal); refusal != "" {
		return "", fmt.Errorf("model refused: %s", refusal)
	}
	content := strings.TrimSpace(choice.Message.Content)
	if content == "" {
		return "", fmt.Errorf("empty content (finish_reason=%q)", choice.FinishReason)
	}
	return content, nil
}

func (a adaptation) toSession() (session.Story, []session.Scene, error) {
	story := session.Story{
		Title:                strings.TrimSpace(a.Title),
		Summary:              strings.TrimSpace(a.Summary),
		VisualStyle:          strings.TrimSpace(a.VisualStyle),
		CharacterDescription: strings.TrimSpace(a.CharacterDescription),
	}
	if story.Title == "" {
		return story, nil, fmt.Errorf("missing title")
	}
	if story.Summary == "" {
		return story, nil, fmt.Errorf("missing summary")
	}
	for _, src := range a.Sources {
		if strings.TrimSpace(src.URI) == "" && strings.TrimSpace(src.Title) == "" {
			continue
		}
		story.Sources = append(story.Sources, session.Source{Title: strings.TrimSpace(src.Title), URI: strings.TrimSpace(src.URI)})
	}
	if len(a.Scenes) == 0 {
		return story, nil, fmt.Errorf("no scenes")
	}
	drafts := a.Scenes
	if len(drafts) > maxSceneCount {
		drafts = drafts[:maxSceneCount]
	}
	scenes := make([]session.Scene, 0, len(drafts))
	for i, d := range drafts {
		scene := session.Scene{
			ID:           i + 1,
			TextEn:       strings.TrimSpace(d.TextEn),
			TextZh:       strings.TrimSpace(d.TextZh),
			VisualPrompt: strings.TrimSpace(d.VisualPrompt),
			VoiceMood:    strings.TrimSpace(d.VoiceMood),
			Status:       session.StatusPending,
		}
		if scene.TextEn == "" {
			return story, nil, fmt.Errorf("scene %d has no English text", i+1)
		}
		if scene.VisualPrompt == "" {
			return story, nil, fmt.Errorf("scene %d has no visual prompt", i+1)
		}
		scenes = append(scenes, scene)
	}
	return story, scenes, nil
}
