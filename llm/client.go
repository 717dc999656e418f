// Package llm is the OpenAI-backed collaborator that reviews a proposal
// against its requirements and extracts line items from document text.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"bid-review/decision/lineitem"
	"bid-review/ingest"
	bierrors "bid-review/pkg/errors"
	"bid-review/pkg/platform"
)

// ChatCompleter is the part of the OpenAI API the client uses.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Client calls a chat-completion model and decodes its JSON answers.
type Client struct {
	api           ChatCompleter
	model         string
	timeout       time.Duration
	maxInputChars int
}

// NewClient builds a client from configuration. An empty API key yields an
// AI_UNAVAILABLE error.
func NewClient(cfg platform.AIConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, bierrors.NewAIUnavailableError(fmt.Errorf("no API key configured"))
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	oc.HTTPClient = platform.NewHTTPClient(cfg.Retries, timeout)

	return NewWithAPI(openai.NewClientWithConfig(oc), cfg.Model, timeout, cfg.MaxInputChars), nil
}

// NewWithAPI builds a client around an existing API implementation.
func NewWithAPI(api ChatCompleter, model string, timeout time.Duration, maxInputChars int) *Client {
	if maxInputChars <= 0 {
		maxInputChars = 50000
	}
	return &Client{api: api, model: model, timeout: timeout, maxInputChars: maxInputChars}
}

const analyzeSystemPrompt = `You are a senior civil construction estimator reviewing a bid proposal against the RFP requirements.
Respond with a single JSON object with the keys "critical_issues", "warnings" and "recommendations", each an array of short strings.
Critical issues are problems that may cause the bid to be rejected. Warnings are risks worth reviewing. Recommendations are optional improvements.`

const extractSystemPrompt = `You extract bid schedule line items from construction documents.
Respond with a single JSON object {"line_items": [{"item_number": "", "description": "", "quantity": 0, "unit": "", "category": "", "spec_reference": "", "notes": ""}]}.
Use numbers for quantities and standard pay-item units (LF, SY, CY, TON, EA, LS, AC).`

// Analyze asks the model for findings on a proposal.
func (c *Client) Analyze(ctx context.Context, requirements, proposal []lineitem.LineItem) (lineitem.Finding, error) {
	reqJSON, err := json.Marshal(requirements)
	if err != nil {
		return lineitem.Finding{}, fmt.Errorf("marshal requirements: %w", err)
	}
	propJSON, err := json.Marshal(proposal)
	if err != nil {
		return lineitem.Finding{}, fmt.Errorf("marshal proposal: %w", err)
	}

	half := c.maxInputChars / 2
	user := fmt.Sprintf("RFP REQUIREMENTS:\n%s\n\nBID PROPOSAL:\n%s", clip(string(reqJSON), half), clip(string(propJSON), half))

	content, err := c.complete(ctx, analyzeSystemPrompt, user)
	if err != nil {
		return lineitem.Finding{}, err
	}

	res := ingest.ParseFindings(content, "llm")
	if !res.OK() {
		log.Warn().Err(res.Err).Int("raw_len", len(res.Raw)).Msg("AI analysis response was malformed")
		return lineitem.Finding{}, res.Err
	}
	return res.Value, nil
}

// ExtractLineItems asks the model for the line items in a document's text.
func (c *Client) ExtractLineItems(ctx context.Context, documentText, source string) ([]lineitem.LineItem, error) {
	user := fmt.Sprintf("DOCUMENT (%s):\n%s", source, clip(documentText, c.maxInputChars))

	content, err := c.complete(ctx, extractSystemPrompt, user)
	if err != nil {
		return nil, err
	}

	res := ingest.ParseLineItems(content, source)
	if !res.OK() {
		log.Warn().Err(res.Err).Str("source", source).Msg("AI extraction response was malformed")
		return nil, res.Err
	}
	return res.Value, nil
}

func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0.1,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", bierrors.NewAIUnavailableError(err)
	}
	if len(resp.Choices) == 0 {
		return "", bierrors.NewAIUnavailableError(fmt.Errorf("model returned no choices"))
	}

	log.Debug().
		Str("model", c.model).
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Dur("duration", time.Since(start)).
		Msg("chat completion")

	return resp.Choices[0].Message.Content, nil
}

func clip(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n]
}
