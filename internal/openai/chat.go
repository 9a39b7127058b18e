package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	DefaultChatModel   = openai.GPT4oMini
	DefaultChatTimeout = 90 * time.Second
)

// jsonCorrection is sent when a reply could not be parsed as JSON.
const jsonCorrection = "Your previous reply was not valid JSON. Return only the JSON object described in the instructions, with no prose and no code fences."

var (
	// ErrChatUnavailable is returned when the language model could not be reached
	ErrChatUnavailable = errors.New("language model unavailable")
	// ErrInvalidJSON is returned when the model reply is not valid JSON after one correction
	ErrInvalidJSON = errors.New("language model returned invalid JSON")
)

// Message is one chat turn
type Message struct {
	Role    string
	Content string
}

// Chat roles.
const (
	RoleSystem    = openai.ChatMessageRoleSystem
	RoleUser      = openai.ChatMessageRoleUser
	RoleAssistant = openai.ChatMessageRoleAssistant
)

// ChatAPI defines the interface for a single chat completion.
type ChatAPI interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// ChatAdapter calls a chat-completions endpoint through go-openai.
type ChatAdapter struct {
	client   *openai.Client
	model    string
	jsonMode bool
}

func NewChatAdapter(apiKey, baseURL, model string, jsonMode bool) *ChatAdapter {
	if model == "" {
		model = DefaultChatModel
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &ChatAdapter{
		client:   openai.NewClientWithConfig(cfg),
		model:    model,
		jsonMode: jsonMode,
	}
}

// Complete sends the conversation and returns the first choice's content.
func (a *ChatAdapter) Complete(ctx context.Context, messages []Message) (string, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	req := openai.ChatCompletionRequest{
		Model:       a.model,
		Messages:    msgs,
		Temperature: 0.2,
	}
	if a.jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no response generated")
	}
	return resp.Choices[0].Message.Content, nil
}

// ChatConfig configures the language model client
type ChatConfig struct {
	APIKey   string
	BaseURL  string
	Model    string
	JSONMode bool
	Timeout  time.Duration
}

// ChatClient asks a language model for JSON documents
type ChatClient struct {
	api     ChatAPI
	timeout time.Duration
}

// NewChatClient creates a ChatClient backed by go-openai.
func NewChatClient(cfg ChatConfig) (*ChatClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNoAPIKey
	}
	return NewChatClientWithAPI(NewChatAdapter(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.JSONMode), cfg.Timeout), nil
}

// NewChatClientWithAPI wraps an existing ChatAPI.
func NewChatClientWithAPI(api ChatAPI, timeout time.Duration) *ChatClient {
	if timeout <= 0 {
		timeout = DefaultChatTimeout
	}
	return &ChatClient{api: api, timeout: timeout}
}

// CompleteJSON sends a system prompt and one user turn and decodes the reply
// into out. A reply that does not parse gets exactly one correction turn. out
// is only written by a reply that decodes cleanly.
func (c *ChatClient) CompleteJSON(ctx context.Context, system, user string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messages := []Message{
		{Role: RoleSystem, Content: system},
		{Role: RoleUser, Content: user},
	}

	reply, err := c.api.Complete(ctx, messages)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrChatUnavailable, err)
	}
	if err := decodeReplace(reply, out); err == nil {
		return nil
	}

	messages = append(messages,
		Message{Role: RoleAssistant, Content: reply},
		Message{Role: RoleUser, Content: jsonCorrection},
	)
	reply, err = c.api.Complete(ctx, messages)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrChatUnavailable, err)
	}
	if err := decodeReplace(reply, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return nil
}

// decodeReplace decodes into a zero value of out's element type and copies it
// over out on success, so a rejected reply leaves no partial fields behind.
func decodeReplace(reply string, out any) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return DecodeJSON(reply, out)
	}
	fresh := reflect.New(rv.Elem().Type())
	if err := DecodeJSON(reply, fresh.Interface()); err != nil {
		return err
	}
	rv.Elem().Set(fresh.Elem())
	return nil
}

// CompleteText returns the raw reply for prompts that produce prose.
func (c *ChatClient) CompleteText(ctx context.Context, system, user string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reply, err := c.api.Complete(ctx, []Message{
		{Role: RoleSystem, Content: system},
		{Role: RoleUser, Content: user},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrChatUnavailable, err)
	}
	return strings.TrimSpace(reply), nil
}

// DecodeJSON strips Markdown code fences and surrounding prose from reply and
// decodes the JSON object it contains.
func DecodeJSON(reply string, out any) error {
	s := StripCodeFences(reply)
	if start, end := strings.Index(s, "{"), strings.LastIndex(s, "}"); start >= 0 && end > start {
		s = s[start : end+1]
	}
	if s == "" {
		return errors.New("empty reply")
	}
	return json.Unmarshal([]byte(s), out)
}

// StripCodeFences removes a surrounding ``` or ```json fence.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], "{[") {
		s = s[nl+1:]
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
