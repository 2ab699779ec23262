// SPDX-License-Identifier: MIT
//
// Package phrasegen drafts signature dictionaries with a chat-completion
// model. Drafting is an offline step; the running pipeline only reads the
// resulting YAML file.
package phrasegen

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"tonecast/internal/analysis"
	"tonecast/internal/log"
	"tonecast/internal/message"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// ErrNoPhrases is returned when the model reply contained no usable entry.
var ErrNoPhrases = errors.New("model reply contained no phrases")

type config struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
}

// Option configures a Drafter.
type Option func(*config)

// WithBaseURL overrides the API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *config) { c.httpClient = client }
}

// WithMaxRetries sets how often a failed request is retried.
func WithMaxRetries(n int) Option {
	return func(c *config) { c.maxRetries = n }
}

// Drafter asks the model for one phrase per signature key.
type Drafter struct {
	client oai.Client
	model  string
}

// New creates a Drafter.
func New(apiKey, model string, opts ...Option) (*Drafter, error) {
	if apiKey == "" {
		return nil, errors.New("phrasegen: api key must not be empty")
	}
	if model == "" {
		return nil, errors.New("phrasegen: model must not be empty")
	}

	cfg := &config{maxRetries: 2}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(cfg.maxRetries),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.httpClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(cfg.httpClient))
	}

	return &Drafter{client: oai.NewClient(reqOpts...), model: model}, nil
}

// Draft returns a dictionary with a phrase for each of keys that the model
// answered. The zero key is never requested.
func (d *Drafter) Draft(ctx context.Context, keys []analysis.SignatureKey) (*message.Dictionary, error) {
	keys = nonZero(keys)
	if len(keys) == 0 {
		return nil, errors.New("phrasegen: no signature keys to draft")
	}

	resp, err := d.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: shared.ChatModel(d.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(systemPrompt),
			oai.UserMessage(BuildPrompt(keys)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("phrasegen: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("phrasegen: empty choices in response")
	}

	entries := ParseReply(resp.Choices[0].Message.Content, keys)
	if len(entries) == 0 {
		return nil, ErrNoPhrases
	}
	if missing := len(keys) - len(entries); missing > 0 {
		log.Warnf("PhraseGen: model skipped %d of %d keys", missing, len(keys))
	}
	return message.NewDictionary(entries)
}

const systemPrompt = "You write short, evocative one-sentence captions for audio patterns. " +
	"Answer only with lines of the form KEY: caption."

// BuildPrompt lists the keys and explains the notation.
func BuildPrompt(keys []analysis.SignatureKey) string {
	var sb strings.Builder
	sb.WriteString("Each key has the form {low}R{high}B, where {low} counts strong frequencies ")
	sb.WriteString("between 400 and 850 Hz and {high} counts strong frequencies between 1200 and 2000 Hz. ")
	sb.WriteString("Write one caption of at most ten words ending with a period for each key:\n")
	for _, k := range keys {
		sb.WriteString(k.String())
		sb.WriteString("\n")
	}
	return sb.String()
}

// ParseReply extracts "KEY: phrase" lines for the requested keys. Other
// lines, unknown keys and duplicate keys after the first are ignored.
func ParseReply(content string, keys []analysis.SignatureKey) map[string]string {
	wanted := make(map[analysis.SignatureKey]bool, len(keys))
	for _, k := range keys {
		wanted[k] = true
	}

	out := make(map[string]string)
	sc := bufio.NewScanner(strings.NewReader(content))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		line = strings.TrimLeft(line, "-*` ")
		rawKey, phrase, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key, err := analysis.ParseSignatureKey(strings.Trim(rawKey, "*` "))
		if err != nil || !wanted[key] {
			continue
		}
		phrase = strings.Trim(strings.TrimSpace(phrase), `"`)
		if phrase == "" {
			continue
		}
		if _, dup := out[key.String()]; dup {
			continue
		}
		out[key.String()] = phrase
	}
	return out
}

// Keys enumerates every non-zero key with up to maxLow and maxHigh counts.
func Keys(maxLow, maxHigh int) []analysis.SignatureKey {
	var keys []analysis.SignatureKey
	for low := 0; low <= maxLow; low++ {
		for high := 0; high <= maxHigh; high++ {
			k := analysis.SignatureKey{Low: low, High: high}
			if !k.IsZero() {
				keys = append(keys, k)
			}
		}
	}
	return keys
}

func nonZero(keys []analysis.SignatureKey) []analysis.SignatureKey {
	out := make([]analysis.SignatureKey, 0, len(keys))
	for _, k := range keys {
		if !k.IsZero() {
			out = append(out, k)
		}
	}
	return out
}
