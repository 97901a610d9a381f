// Package llm talks to an OpenAI-compatible chat-completion gateway.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/bryan-buckman/termread/internal/metrics"
	"github.com/bryan-buckman/termread/internal/model"
	"github.com/bryan-buckman/termread/internal/render"
	openai "github.com/sashabaranov/go-openai"
)

// MissingKeyMessage is shown to users who have not configured a key.
const MissingKeyMessage = "Please set your OpenRouter API key in settings"

// Request and response errors.
var (
	ErrMissingAPIKey = errors.New("missing OpenRouter API key")
	ErrEmptyResponse = errors.New("empty response from model")
	ErrEmptyInput    = errors.New("chat input is required")
)

// Client talks to an OpenAI-compatible gateway.
type Client struct {
	baseURL      string
	defaultModel string
	http         *http.Client
}

// NewClient targets baseURL (e.g. https://openrouter.ai/api/v1).
func NewClient(baseURL, defaultModel string, timeout time.Duration) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		defaultModel: defaultModel,
		http:         &http.Client{Timeout: timeout},
	}
}

func (c *Client) api(apiKey string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = c.baseURL
	cfg.HTTPClient = c.http
	return openai.NewClientWithConfig(cfg)
}

func (c *Client) model(m string) string {
	if m = strings.TrimSpace(m); m != "" {
		return m
	}
	return c.defaultModel
}

// SummarizeRequest is the body of a summary request.
type SummarizeRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Prompt  string `json:"prompt"`
	Length  string `json:"length"`
	Model   string `json:"model"`
	APIKey  string `json:"openRouterKey"`
}

// Summary holds the model's markdown and its rendered HTML.
type Summary struct {
	Markdown string `json:"markdown"`
	HTML     string `json:"html"`
}

// Summarize asks the model for a summary of an article. Content may be HTML;
// it is sent to the model as markdown.
func (c *Client) Summarize(ctx context.Context, req SummarizeRequest) (*Summary, error) {
	if strings.TrimSpace(req.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	body, err := htmltomarkdown.ConvertString(req.Content)
	if err != nil {
		body = req.Content
	}

	reply, err := c.complete(ctx, req.APIKey, req.Model, []model.ChatMessage{
		{Role: model.RoleSystem, Content: SystemPrompt(ParseLength(req.Length), req.Prompt)},
		{Role: model.RoleUser, Content: req.Title + "\n\n" + strings.TrimSpace(body)},
	})
	if err != nil {
		return nil, err
	}
	return &Summary{Markdown: reply, HTML: render.Markdown(reply)}, nil
}

// ChatRequest is one chat turn with its prior history.
type ChatRequest struct {
	History        []model.ChatMessage `json:"history"`
	Input          string              `json:"input"`
	Article        string              `json:"article"`
	IncludeArticle bool                `json:"includeArticle"`
	Model          string              `json:"model"`
	APIKey         string              `json:"openRouterKey"`
}

// ChatResult is the reply and the conversation to display.
type ChatResult struct {
	Reply     string              `json:"reply"`
	ReplyHTML string              `json:"replyHtml"`
	Sent      []model.ChatMessage `json:"-"`
	Display   []model.ChatMessage `json:"messages"`
}

// Chat sends one conversation turn. Display is the transcript to show,
// ending with the assistant's reply.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	if strings.TrimSpace(req.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if strings.TrimSpace(req.Input) == "" {
		return nil, ErrEmptyInput
	}

	sent, display := BuildChat(req.History, req.Input, req.Article, req.IncludeArticle)
	reply, err := c.complete(ctx, req.APIKey, req.Model, sent)
	if err != nil {
		return nil, err
	}
	display = append(display, model.ChatMessage{Role: model.RoleAssistant, Content: reply})
	return &ChatResult{
		Reply:     reply,
		ReplyHTML: render.Markdown(reply),
		Sent:      sent,
		Display:   display,
	}, nil
}

// Models lists the model identifiers offered by the gateway.
func (c *Client) Models(ctx context.Context, apiKey string) (ids []string, err error) {
	start := time.Now()
	defer func() { metrics.Observe(metrics.KindLLM, start, err) }()

	list, err := c.api(apiKey).ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	ids = make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func (c *Client) complete(ctx context.Context, apiKey, modelName string, msgs []model.ChatMessage) (reply string, err error) {
	start := time.Now()
	defer func() { metrics.Observe(metrics.KindLLM, start, err) }()

	req := openai.ChatCompletionRequest{
		Model:    c.model(modelName),
		Messages: make([]openai.ChatCompletionMessage, 0, len(msgs)),
	}
	for _, m := range msgs {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := c.api(apiKey).CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}
