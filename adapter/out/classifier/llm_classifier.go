package classifier

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"mailsync_server/core/port/out"
	"mailsync_server/pkg/logger"

	"github.com/goccy/go-json"
	openai "github.com/sashabaranov/go-openai"
)

// =============================================================================
// LLM Classifier Adapter
// =============================================================================

const classifySystemPrompt = `You are an email classifier. For each message you receive, choose zero or more labels from exactly this set:
work, personal, finance, shopping, social, travel, newsletter, promotion, security, receipt, spam

Respond with ONLY a JSON array, one element per input message:
[{"id": <message id>, "labels": ["<label>", ...]}]
Use an empty labels array when nothing fits. Never invent labels outside the set.`

// LLMClassifier implements out.LabelClassifier on a chat-completion
// model, emitting the same label vocabulary as the dedicated service.
// Used as a fallback when the primary classifier is down.
type LLMClassifier struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

var _ out.LabelClassifier = (*LLMClassifier)(nil)

func NewLLMClassifier(apiKey, model string, timeout time.Duration) *LLMClassifier {
	if model == "" {
		model = openai.GPT4oMini
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &LLMClassifier{
		client:  openai.NewClient(apiKey),
		model:   model,
		timeout: timeout,
	}
}

func (c *LLMClassifier) ClassifyBatch(ctx context.Context, items []out.ClassifyItem) ([]out.ClassifyResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var sb strings.Builder
	for _, item := range items {
		content := truncatePrompt(item.Content, 1000)
		fmt.Fprintf(&sb, "--- message id=%d ---\n%s\n\n", item.ID, content)
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: classifySystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: sb.String()},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("llm classify failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("llm classify returned no choices")
	}

	raw := extractJSONArray(resp.Choices[0].Message.Content)

	var results []out.ClassifyResult
	if err := json.Unmarshal([]byte(raw), &results); err != nil {
		return nil, fmt.Errorf("malformed llm classify response: %w", err)
	}
	return results, nil
}

func (c *LLMClassifier) Ping(ctx context.Context) error {
	if _, err := c.client.ListModels(ctx); err != nil {
		return fmt.Errorf("llm backend unreachable: %w", err)
	}
	return nil
}

// truncatePrompt cuts s to at most max bytes without splitting a
// multi-byte rune.
func truncatePrompt(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// extractJSONArray trims markdown fences and prose the model sometimes
// wraps around the array.
func extractJSONArray(content string) string {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start == -1 || end == -1 || end < start {
		return content
	}
	return content[start : end+1]
}

// =============================================================================
// Fallback composition
// =============================================================================

// FallbackClassifier tries the primary backend first and falls through
// to the secondary when the primary fails. Ping reports the primary
// only: the fallback path is exercised lazily.
type FallbackClassifier struct {
	primary   out.LabelClassifier
	secondary out.LabelClassifier
}

var _ out.LabelClassifier = (*FallbackClassifier)(nil)

func NewFallbackClassifier(primary, secondary out.LabelClassifier) *FallbackClassifier {
	return &FallbackClassifier{primary: primary, secondary: secondary}
}

func (f *FallbackClassifier) ClassifyBatch(ctx context.Context, items []out.ClassifyItem) ([]out.ClassifyResult, error) {
	results, err := f.primary.ClassifyBatch(ctx, items)
	if err == nil {
		return results, nil
	}
	if f.secondary == nil {
		return nil, err
	}

	logger.Warn("[FallbackClassifier.ClassifyBatch] Primary failed, falling back: %v", err)
	return f.secondary.ClassifyBatch(ctx, items)
}

func (f *FallbackClassifier) Ping(ctx context.Context) error {
	return f.primary.Ping(ctx)
}
