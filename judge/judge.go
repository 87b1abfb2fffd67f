// Package judge provides the semantic evaluation collaborator: an
// external judge that scores a candidate response against a reference
// and a rubric.
package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/scalvert/playwright-mcp-evals/logger"
	"github.com/scalvert/playwright-mcp-evals/model"
)

// Verdict is the judge's assessment. Score is optional; judges that
// only produce a boolean leave it nil and callers treat pass as 1.0
// and fail as 0.0.
type Verdict struct {
	Pass      bool     `json:"pass"`
	Score     *float64 `json:"score,omitempty"`
	Reasoning string   `json:"reasoning,omitempty"`
}

// EffectiveScore maps a bool-only verdict onto the score scale.
func (v *Verdict) EffectiveScore() float64 {
	if v.Score != nil {
		return *v.Score
	}
	if v.Pass {
		return 1.0
	}
	return 0.0
}

// Judge evaluates a candidate response. Implementations may call out
// to network services and may return an error on transport failure.
type Judge interface {
	Evaluate(ctx context.Context, candidate, reference, rubric string) (*Verdict, error)
}

const defaultRubric = "The candidate response conveys the same essential information as the reference. " +
	"Wording may differ; facts, values and conclusions may not."

const judgePromptFormat = `You are grading the output of an automated tool call.

Rubric:
%s

Reference (may be empty):
%s

Candidate response:
%s

Respond with ONLY a JSON object of the form
{"pass": <bool>, "score": <0.0-1.0>, "reasoning": "<one sentence>"}`

// LLMJudge scores candidates with an LLM resolved from a judge
// configuration.
type LLMJudge struct {
	llm      llms.Model
	config   model.JudgeConfig
	throttle *Throttle
}

// NewLLMJudge builds the LLM named by the configuration and wraps it
// with an optional request throttle.
func NewLLMJudge(ctx context.Context, cfg model.JudgeConfig) (*LLMJudge, error) {
	llmModel, err := createModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create judge '%s': %w", cfg.ID, err)
	}

	j := &LLMJudge{llm: llmModel, config: cfg}
	if cfg.RPM > 0 {
		j.throttle = NewThrottle(cfg.RPM)
	}
	return j, nil
}

func createModel(ctx context.Context, cfg model.JudgeConfig) (llms.Model, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("judge model is empty")
	}
	if cfg.Token == "" && cfg.Provider != model.ProviderGoogle {
		return nil, fmt.Errorf("judge token is empty")
	}

	switch cfg.Provider {
	case model.ProviderOpenAI:
		opts := []openai.Option{
			openai.WithToken(cfg.Token),
			openai.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return openai.New(opts...)
	case model.ProviderGroq:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "https://api.groq.com/openai/v1"
		}
		return openai.New(
			openai.WithToken(cfg.Token),
			openai.WithModel(cfg.Model),
			openai.WithBaseURL(baseURL),
		)
	case model.ProviderAnthropic:
		return anthropic.New(
			anthropic.WithToken(cfg.Token),
			anthropic.WithModel(cfg.Model),
		)
	case model.ProviderGoogle:
		return googleai.New(ctx,
			googleai.WithAPIKey(cfg.Token),
			googleai.WithDefaultModel(cfg.Model),
		)
	default:
		return nil, fmt.Errorf("unsupported judge provider type: %s", cfg.Provider)
	}
}

func (j *LLMJudge) Evaluate(ctx context.Context, candidate, reference, rubric string) (*Verdict, error) {
	if j.throttle != nil {
		if err := j.throttle.Wait(ctx); err != nil {
			return nil, err
		}
	}

	if rubric == "" {
		rubric = j.config.Rubric
	}
	if rubric == "" {
		rubric = defaultRubric
	}
	if reference == "" {
		reference = j.config.Reference
	}

	prompt := fmt.Sprintf(judgePromptFormat, rubric, reference, candidate)

	msgs := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}
	resp, err := j.llm.GenerateContent(ctx, msgs, llms.WithJSONMode())
	if err != nil {
		return nil, fmt.Errorf("judge LLM call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("judge LLM returned no choices")
	}

	verdict, err := parseVerdict(resp.Choices[0].Content)
	if err != nil {
		return nil, err
	}

	logger.Logger.Debug("Judge verdict",
		"judge", j.config.ID,
		"pass", verdict.Pass,
		"score", verdict.EffectiveScore())
	return verdict, nil
}

// parseVerdict decodes the judge's JSON reply, tolerating a fenced
// code block around it.
func parseVerdict(raw string) (*Verdict, error) {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	var verdict Verdict
	if err := json.Unmarshal([]byte(text), &verdict); err != nil {
		return nil, fmt.Errorf("judge returned unparseable verdict: %w", err)
	}
	return &verdict, nil
}
