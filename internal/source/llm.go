package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	openai "github.com/sashabaranov/go-openai"
	log "github.com/sirupsen/logrus"
	"github.com/spockmay/bainbridge-now/internal/storage"
	"github.com/spockmay/bainbridge-now/internal/util"
	"github.com/valyala/fastjson"
)

const (
	llmEventType           = "COMMUNITY"
	defaultLLMModel        = "gpt-5"
	defaultLinkSelector    = "h2 a"
	defaultArticleSelector = "article"

	llmSystemPrompt = "You are a helpful assistant that extracts structured event data from webpages."
	llmUserPrompt   = `The following is text from a community events webpage:

%s

Extract all upcoming events into a JSON object with an "events" array.
Each object must have the following fields:
  - start_datetime (ISO 8601 format)
  - end_datetime (ISO 8601 format)
  - title
  - url
  - zip_code (infer from city or set to null if unknown)
  - location (either the address or the name of the location of the event)
The default timezone for all events is %s.`
)

var ErrEmptyCompletion = errors.New("completion has no choices")

// LLM follows the newest article linked from an index page and asks a chat
// model to turn its free text into events.
type LLM struct {
	name            string
	indexURL        string
	linkSelector    string
	contentSelector string
	model           string
	loc             *time.Location
	client          *http.Client
	ai              *openai.Client
}

func NewLLM(c Config, loc *time.Location) *LLM {
	client := util.NewHTTPClient(c.Timeout)
	aiConfig := openai.DefaultConfig(c.LLM.APIKey)
	if c.LLM.BaseURL != "" {
		aiConfig.BaseURL = c.LLM.BaseURL
	}
	aiConfig.HTTPClient = client
	return &LLM{
		name:            sourceName(c, TypeLLM),
		indexURL:        c.URL,
		linkSelector:    defaultString(c.LinkSelector, defaultLinkSelector),
		contentSelector: defaultString(c.ContentSelector, defaultArticleSelector),
		model:           defaultString(c.LLM.Model, defaultLLMModel),
		loc:             loc,
		client:          client,
		ai:              openai.NewClientWithConfig(aiConfig),
	}
}

func (s *LLM) Name() string { return s.name }

func (s *LLM) Fetch(ctx context.Context) ([]storage.Event, error) {
	articleURL, err := s.latestArticle(ctx)
	if err != nil {
		return nil, err
	}
	text, err := s.articleText(ctx, articleURL)
	if err != nil {
		return nil, err
	}
	content, err := s.complete(ctx, text)
	if err != nil {
		return nil, err
	}
	return s.parse(content, articleURL)
}

func (s *LLM) latestArticle(ctx context.Context) (string, error) {
	doc, err := fetchDocument(ctx, s.client, s.indexURL)
	if err != nil {
		return "", err
	}
	href, ok := doc.Find(s.linkSelector).First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return "", fmt.Errorf("%s: article link %q: %w", s.name, s.linkSelector, ErrLayoutChanged)
	}
	return resolveURL(s.indexURL, href), nil
}

func (s *LLM) articleText(ctx context.Context, articleURL string) (string, error) {
	doc, err := fetchDocument(ctx, s.client, articleURL)
	if err != nil {
		return "", err
	}
	block := doc.Find(s.contentSelector).First()
	if block.Length() == 0 {
		return "", fmt.Errorf("%s: article block %q: %w", s.name, s.contentSelector, ErrLayoutChanged)
	}
	text := blockText(block)
	if text == "" {
		return "", fmt.Errorf("%s: article block %q is empty: %w", s.name, s.contentSelector, ErrLayoutChanged)
	}
	return text, nil
}

func (s *LLM) complete(ctx context.Context, text string) (string, error) {
	resp, err := s.ai.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: llmSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf(llmUserPrompt, text, s.loc.String())},
		},
		Temperature: 1,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", fmt.Errorf("%s: chat completion failed: %w", s.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: %w", s.name, ErrEmptyCompletion)
	}
	return resp.Choices[0].Message.Content, nil
}

// parse converts the model answer. Items without a usable start are skipped.
func (s *LLM) parse(content, pageURL string) ([]storage.Event, error) {
	var p fastjson.Parser
	value, err := p.Parse(content)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to decode completion: %w", s.name, err)
	}

	items := value.GetArray("events")
	events := make([]storage.Event, 0, len(items))
	for _, item := range items {
		name := defaultString(jsonText(item, "title"), defaultEventName)
		start, err := storage.ParseISO(jsonText(item, "start_datetime"), s.loc)
		if err != nil {
			log.WithField("source", s.name).Warnf("skipping %q: bad start: %v", name, err)
			continue
		}
		var end time.Time
		if v := jsonText(item, "end_datetime"); v != "" {
			if end, err = storage.ParseISO(v, s.loc); err != nil {
				log.WithField("source", s.name).Warnf("ignoring end of %q: %v", name, err)
				end = time.Time{}
			}
		}
		if end.Before(start) {
			end = time.Time{}
		}

		e, err := storage.NewEvent(start, name, llmEventType, jsonText(item, "zip_code"),
			storage.WithEnd(end),
			storage.WithURL(defaultString(jsonText(item, "url"), pageURL)),
			storage.WithLocation(jsonText(item, "location")),
		)
		if err != nil {
			log.WithField("source", s.name).Warnf("skipping %q: %v", name, err)
			continue
		}
		events = append(events, e)
	}
	return events, nil
}

// jsonText returns strings and numbers as text; null and missing keys are empty.
func jsonText(v *fastjson.Value, key string) string {
	field := v.Get(key)
	if field == nil {
		return ""
	}
	switch field.Type() {
	case fastjson.TypeString:
		return strings.TrimSpace(string(field.GetStringBytes()))
	case fastjson.TypeNumber:
		return field.String()
	default:
		return ""
	}
}

// blockText keeps one line per paragraph so the model sees the page structure.
func blockText(block *goquery.Selection) string {
	lines := make([]string, 0)
	block.Find("p, li, h1, h2, h3, h4, h5, h6").Each(func(_ int, el *goquery.Selection) {
		if line := collapseSpace(el.Text()); line != "" {
			lines = append(lines, line)
		}
	})
	if len(lines) == 0 {
		return collapseSpace(block.Text())
	}
	return strings.Join(lines, "\n")
}
