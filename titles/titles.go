package titles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"
	"unicode"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

const (
	maxTitleRunes = 60
	maxTags       = 8
)

type Metadata struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// Generator asks an OpenAI compatible chat completions endpoint for clip
// titles and upload metadata. Without an API key, or when a request fails,
// it answers from fixed templates instead.
type Generator struct {
	apiKey string
	model  string
	client *openai.Client
	log    *logrus.Entry
}

func New(apiKey, model, baseURL string, log *logrus.Entry) *Generator {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	return &Generator{
		apiKey: apiKey,
		model:  model,
		client: openai.NewClientWithConfig(cfg),
		log:    log,
	}
}

func (g *Generator) Enabled() bool {
	return g.apiKey != ""
}

// GenerateClipTitles returns exactly count titles.
func (g *Generator) GenerateClipTitles(ctx context.Context, sourceTitle string, count int) ([]string, error) {
	if count <= 0 {
		return nil, nil
	}
	fallback := FallbackTitles(sourceTitle, count)
	if !g.Enabled() {
		return fallback, nil
	}

	prompt := fmt.Sprintf("Write %d short, punchy titles for vertical short-form clips cut from a video titled %q. "+
		"Each title must be under %d characters, must not use hashtags and must differ from the others. "+
		`Answer with JSON of the form {"titles": ["..."]}.`, count, sourceTitle, maxTitleRunes)
	var out struct {
		Titles []string `json:"titles"`
	}
	if err := g.complete(ctx, prompt, &out); err != nil {
		g.log.Warnln("title generation failed, using templates:", err)
		return fallback, nil
	}

	titles := make([]string, 0, count)
	for _, t := range out.Titles {
		if t = cleanTitle(t); t != "" {
			titles = append(titles, t)
		}
		if len(titles) == count {
			break
		}
	}
	for i := len(titles); i < count; i++ {
		titles = append(titles, fallback[i])
	}
	return titles, nil
}

// GenerateMetadata describes clip clipIndex (zero based) of totalClips for
// publishing.
func (g *Generator) GenerateMetadata(ctx context.Context, sourceTitle string, clipIndex, totalClips int) (Metadata, error) {
	fallback := FallbackMetadata(sourceTitle, clipIndex, totalClips)
	if !g.Enabled() {
		return fallback, nil
	}

	prompt := fmt.Sprintf("Clip %d of %d was cut from a video titled %q. Write upload metadata for it as a vertical short. "+
		"The title must be under %d characters. The description is two sentences at most. Give up to %d lowercase tags without '#'. "+
		`Answer with JSON of the form {"title": "...", "description": "...", "tags": ["..."]}.`,
		clipIndex+1, totalClips, sourceTitle, maxTitleRunes, maxTags)
	var out Metadata
	if err := g.complete(ctx, prompt, &out); err != nil {
		g.log.Warnln("metadata generation failed, using templates:", err)
		return fallback, nil
	}

	md := Metadata{
		Title:       cleanTitle(out.Title),
		Description: strings.TrimSpace(out.Description),
		Tags:        cleanTags(out.Tags),
	}
	if md.Title == "" {
		md.Title = fallback.Title
	}
	if md.Description == "" {
		md.Description = fallback.Description
	}
	if len(md.Tags) == 0 {
		md.Tags = fallback.Tags
	}
	return md, nil
}

// complete sends prompt and decodes the JSON object in the reply into v.
func (g *Generator) complete(ctx context.Context, prompt string, v any) error {
	g.log.Debugln("chat completion with", g.model)
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "You write titles and metadata for short vertical videos. Reply with JSON only."},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.7,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return errors.New("chat completion returned no choices")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimSuffix(strings.TrimPrefix(content, "```"), "```")
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), v); err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	return nil
}

// FallbackTitles returns count template titles derived from sourceTitle.
func FallbackTitles(sourceTitle string, count int) []string {
	base := shorten(sourceTitle, maxTitleRunes-10)
	out := make([]string, count)
	for i := range out {
		if base == "" {
			out[i] = fmt.Sprintf("Highlight #%d", i+1)
		} else {
			out[i] = fmt.Sprintf("%s #%d", base, i+1)
		}
	}
	return out
}

func FallbackMetadata(sourceTitle string, clipIndex, totalClips int) Metadata {
	title := FallbackTitles(sourceTitle, clipIndex+1)[clipIndex]
	desc := fmt.Sprintf("Part %d of %d.", clipIndex+1, totalClips)
	if s := strings.TrimSpace(sourceTitle); s != "" {
		desc = fmt.Sprintf("Part %d of %d from %q.", clipIndex+1, totalClips, s)
	}
	tags := []string{"shorts"}
	for _, w := range strings.FieldsFunc(strings.ToLower(sourceTitle), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len([]rune(w)) >= 4 && !slices.Contains(tags, w) {
			tags = append(tags, w)
		}
		if len(tags) == maxTags {
			break
		}
	}
	return Metadata{Title: title, Description: desc + "\n\n#shorts", Tags: tags}
}

func cleanTitle(t string) string {
	t = strings.Join(strings.Fields(t), " ")
	t = strings.Trim(t, `"'`)
	return shorten(t, maxTitleRunes)
}

func cleanTags(tags []string) []string {
	var out []string
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(t), "#")))
		if t == "" || slices.Contains(out, t) {
			continue
		}
		out = append(out, t)
		if len(out) == maxTags {
			break
		}
	}
	return out
}

// shorten cuts s at a word boundary so it fits in limit runes.
func shorten(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len([]rune(s)) <= limit {
		return s
	}
	var b strings.Builder
	for _, w := range strings.Fields(s) {
		n := len([]rune(b.String()))
		if n > 0 && n+1+len([]rune(w)) > limit {
			break
		}
		if n == 0 && len([]rune(w)) > limit {
			return string([]rune(w)[:limit])
		}
		if n > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(w)
	}
	return b.String()
}
