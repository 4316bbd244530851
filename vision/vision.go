// Package vision reads product fields from a page screenshot through an
// Ollama-compatible multimodal chat endpoint. It is the reader behind the
// last-resort vision tier.
package vision

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/hazyhaar/pricewatch/extract"
)

// Reading is one field read off a screenshot.
type Reading struct {
	Value string `json:"value"`
	// Locator is a selector in the restricted extract grammar pointing at
	// the element the value was read from, when the model could name one.
	Locator string `json:"locator,omitempty"`
}

// Config configures the client.
type Config struct {
	Endpoint string        `yaml:"endpoint"` // e.g. http://localhost:11434
	Model    string        `yaml:"model"`    // e.g. llava:13b
	Timeout  time.Duration `yaml:"timeout"`
	Logger   *slog.Logger  `yaml:"-"`
}

func (c *Config) defaults() {
	if c.Endpoint == "" {
		c.Endpoint = "http://localhost:11434"
	}
	if c.Model == "" {
		c.Model = "llava:13b"
	}
	if c.Timeout <= 0 {
		c.Timeout = 90 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Client talks to the chat endpoint.
type Client struct {
	cfg  Config
	http *resty.Client
}

// New creates a Client.
func New(cfg Config) *Client {
	cfg.defaults()
	c := resty.New().
		SetBaseURL(strings.TrimRight(cfg.Endpoint, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")
	return &Client{cfg: cfg, http: c}
}

type message struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []message `json:"messages"`
	Stream   bool      `json:"stream"`
	Format   any       `json:"format,omitempty"`
	Options  any       `json:"options,omitempty"`
}

type chatResponse struct {
	Message message `json:"message"`
	Error   string  `json:"error,omitempty"`
}

// Read asks the model for fields in screenshot (PNG). Fields the model could
// not see are absent from the result.
func (c *Client) Read(ctx context.Context, screenshot []byte, fields []extract.Field) (map[extract.Field]Reading, error) {
	if len(screenshot) == 0 {
		return nil, errors.New("vision: empty screenshot")
	}
	if len(fields) == 0 {
		return map[extract.Field]Reading{}, nil
	}

	req := chatRequest{
		Model: c.cfg.Model,
		Messages: []message{{
			Role:    "user",
			Content: prompt(fields),
			Images:  []string{base64.StdEncoding.EncodeToString(screenshot)},
		}},
		Format:  schema(fields),
		Options: map[string]any{"temperature": 0},
	}

	var out chatResponse
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		ForceContentType("application/json").
		SetResult(&out).
		SetError(&out).
		Post("/api/chat")
	if err != nil {
		return nil, fmt.Errorf("vision: chat: %w", err)
	}
	if res.IsError() {
		return nil, fmt.Errorf("vision: chat: status %d: %s", res.StatusCode(), out.Error)
	}

	readings, err := parseReadings(out.Message.Content, fields)
	if err != nil {
		return nil, err
	}
	c.cfg.Logger.Debug("vision: read", "model", c.cfg.Model, "fields", len(readings))
	return readings, nil
}

// Ping reports whether the endpoint answers.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.http.R().SetContext(ctx).Get("/api/tags")
	if err != nil {
		return fmt.Errorf("vision: ping: %w", err)
	}
	if res.IsError() {
		return fmt.Errorf("vision: ping: status %d", res.StatusCode())
	}
	return nil
}

func prompt(fields []extract.Field) string {
	var sb strings.Builder
	sb.WriteString("This is a screenshot of a retail product page. ")
	sb.WriteString("For each requested field return the exact text shown on the page as \"value\". ")
	sb.WriteString("If you can tell which element shows it, also return \"locator\" as one CSS selector of the form .class, [attr=value], tag or [itemprop=name]. ")
	sb.WriteString("Leave a field out if it is not visible. Fields: ")
	for i, f := range fields {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(string(f))
		switch f {
		case extract.FieldPrice:
			sb.WriteString(" (current selling price with currency)")
		case extract.FieldOriginalPrice:
			sb.WriteString(" (crossed-out previous price)")
		case extract.FieldStock:
			sb.WriteString(" (availability text)")
		}
	}
	sb.WriteString(".")
	return sb.String()
}

func schema(fields []extract.Field) map[string]any {
	props := make(map[string]any, len(fields))
	for _, f := range fields {
		props[string(f)] = map[string]any{
			"type": "object",
			"properties": map[string]any{
				"value":   map[string]any{"type": "string"},
				"locator": map[string]any{"type": "string"},
			},
			"required": []string{"value"},
		}
	}
	return map[string]any{"type": "object", "properties": props}
}

// parseReadings decodes the model answer. Values may come back as bare
// strings or numbers instead of {value, locator} objects.
func parseReadings(content string, fields []extract.Field) (map[extract.Field]Reading, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &raw); err != nil {
		return nil, fmt.Errorf("vision: decode answer: %w", err)
	}

	out := make(map[extract.Field]Reading)
	for _, f := range fields {
		msg, ok := raw[string(f)]
		if !ok {
			continue
		}
		var r Reading
		if err := json.Unmarshal(msg, &r); err != nil {
			var s string
			var n json.Number
			switch {
			case json.Unmarshal(msg, &s) == nil:
				r.Value = s
			case json.Unmarshal(msg, &n) == nil:
				r.Value = n.String()
			default:
				continue
			}
		}
		r.Value = strings.TrimSpace(r.Value)
		r.Locator = strings.TrimSpace(r.Locator)
		if r.Locator != "" {
			if _, err := extract.ParseSelector(r.Locator); err != nil {
				r.Locator = ""
			}
		}
		if r.Value != "" {
			out[f] = r
		}
	}
	return out, nil
}
