// Package classifier asks a remote OpenAI-compatible model to turn a
// message into a StructuredIntent. Any failure yields no verdict so the
// caller can fall back to local matching.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/buger/jsonparser"

	"github.com/jholhewres/deskclaw/pkg/deskclaw/intent"
)

// Endpoint styles understood by the client.
const (
	EndpointResponses = "responses"
	EndpointChat      = "chat"
)

// Config configures the remote classifier.
type Config struct {
	Enabled  bool          `yaml:"enabled"`
	BaseURL  string        `yaml:"base_url"`
	Model    string        `yaml:"model"`
	APIKey   string        `yaml:"api_key"`
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
}

// DefaultConfig returns the classifier defaults. Disabled until a key is
// configured.
func DefaultConfig() Config {
	return Config{
		BaseURL:  "https://api.openai.com/v1",
		Model:    "gpt-4o-mini",
		Endpoint: EndpointResponses,
		Timeout:  30 * time.Second,
	}
}

// Classifier is safe for concurrent use.
type Classifier struct {
	cfg         Config
	instruction string
	httpClient  *http.Client
	logger      *slog.Logger
}

// New creates a Classifier. Blank fields fall back to DefaultConfig.
func New(cfg Config, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Endpoint != EndpointChat {
		cfg.Endpoint = EndpointResponses
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	return &Classifier{
		cfg:         cfg,
		instruction: Instruction(),
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        4,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		logger: logger.With("component", "classifier", "model", cfg.Model),
	}
}

// Available reports whether the classifier is enabled and has a key.
func (c *Classifier) Available() bool {
	return c != nil && c.cfg.Enabled && strings.TrimSpace(c.cfg.APIKey) != ""
}

// Classify returns the model's verdict for text. ok is false on any
// transport, status or parse failure.
func (c *Classifier) Classify(ctx context.Context, text string) (*intent.StructuredIntent, bool) {
	if !c.Available() {
		return nil, false
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	start := time.Now()
	raw, err := c.complete(ctx, text)
	if err != nil {
		c.logger.Warn("classification failed, falling back", "error", err)
		return nil, false
	}

	si, err := ParseVerdict(raw)
	if err != nil {
		c.logger.Warn("unparseable classification", "error", err, "raw", truncate(raw, 300))
		return nil, false
	}

	c.logger.Info("classification done",
		"actionable", si.Actionable,
		"action", si.RawAction,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return si, true
}

// complete sends the instruction plus text and returns the model's text.
func (c *Classifier) complete(ctx context.Context, text string) (string, error) {
	var (
		endpoint string
		payload  any
	)
	msgs := []map[string]string{
		{"role": "system", "content": c.instruction},
		{"role": "user", "content": text},
	}
	if c.cfg.Endpoint == EndpointChat {
		endpoint = c.cfg.BaseURL + "/chat/completions"
		payload = map[string]any{"model": c.cfg.Model, "messages": msgs}
	} else {
		endpoint = c.cfg.BaseURL + "/responses"
		payload = map[string]any{
			"model": c.cfg.Model,
			"input": msgs,
			"text":  map[string]any{"format": map[string]string{"type": "text"}},
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	c.logger.Debug("sending classification", "endpoint", endpoint)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("API error", "status", resp.StatusCode, "body", truncate(string(respBody), 500))
		return "", fmt.Errorf("API returned %d", resp.StatusCode)
	}

	out, err := extractText(respBody, c.cfg.Endpoint)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(out) == "" {
		return "", errors.New("empty response")
	}
	return out, nil
}

// extractText pulls the generated text out of a responses or chat body.
func extractText(body []byte, endpoint string) (string, error) {
	if endpoint == EndpointChat {
		s, err := jsonparser.GetString(body, "choices", "[0]", "message", "content")
		if err != nil {
			return "", fmt.Errorf("no message content: %w", err)
		}
		return s, nil
	}

	if s, err := jsonparser.GetString(body, "output_text"); err == nil && strings.TrimSpace(s) != "" {
		return s, nil
	}

	var found string
	_, err := jsonparser.ArrayEach(body, func(item []byte, _ jsonparser.ValueType, _ int, _ error) {
		if found != "" {
			return
		}
		jsonparser.ArrayEach(item, func(part []byte, _ jsonparser.ValueType, _ int, _ error) {
			if found != "" {
				return
			}
			if s, err := jsonparser.GetString(part, "text"); err == nil && strings.TrimSpace(s) != "" {
				found = s
			}
		}, "content")
	}, "output")
	if err != nil && found == "" {
		return "", fmt.Errorf("no output text: %w", err)
	}
	return found, nil
}

var (
	fenceOpen  = regexp.MustCompile("^```(?:json|JSON)?\\s*")
	fenceClose = regexp.MustCompile("\\s*```$")
)

// ParseVerdict decodes {"actionable","action","params","reply"}, tolerating
// code fences and non-string parameter values. An unknown action name
// yields an actionable intent with an empty Action and RawAction set.
func ParseVerdict(text string) (*intent.StructuredIntent, error) {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = fenceClose.ReplaceAllString(fenceOpen.ReplaceAllString(s, ""), "")
	}
	data := []byte(s)
	if !json.Valid(data) || !strings.HasPrefix(s, "{") {
		return nil, errors.New("verdict is not a JSON object")
	}

	si := &intent.StructuredIntent{Params: map[string]string{}}
	si.Actionable = coerceBool(data, "actionable")
	si.Reply, _ = jsonparser.GetString(data, "reply")

	if !si.Actionable {
		return si, nil
	}

	si.RawAction, _ = jsonparser.GetString(data, "action")
	if a, ok := intent.ParseAction(si.RawAction); ok {
		si.Action = a
	}

	params, dt, _, err := jsonparser.Get(data, "params")
	if err != nil || dt != jsonparser.Object {
		return si, nil
	}
	err = jsonparser.ObjectEach(params, func(key, value []byte, dt jsonparser.ValueType, _ int) error {
		si.Params[string(key)] = coerceString(value, dt)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading params: %w", err)
	}
	return si, nil
}

func coerceBool(data []byte, key string) bool {
	v, dt, _, err := jsonparser.Get(data, key)
	if err != nil {
		return false
	}
	switch dt {
	case jsonparser.Boolean:
		b, _ := jsonparser.ParseBoolean(v)
		return b
	case jsonparser.String:
		return strings.EqualFold(strings.TrimSpace(string(v)), "true")
	}
	return false
}

func coerceString(value []byte, dt jsonparser.ValueType) string {
	switch dt {
	case jsonparser.String:
		s, err := jsonparser.ParseString(value)
		if err != nil {
			return string(value)
		}
		return s
	case jsonparser.Null:
		return ""
	default:
		return string(value)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
