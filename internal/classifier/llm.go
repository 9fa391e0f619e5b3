package classifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"contextgraph/internal/models"
)

// NoneLabel is the answer a model gives when no candidate fits.
const NoneLabel = "none"

// Request is the bounded prompt input for one ambiguous column.
type Request struct {
	Table      string
	Column     string
	TruthType  models.TruthType
	Samples    []string
	Candidates []models.SemanticType
}

// LLM resolves an ambiguous column to one of the candidate type ids or
// NoneLabel. Implementations must be safe for concurrent use.
type LLM interface {
	Classify(ctx context.Context, req Request) (string, error)
}

type LLMConfig struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}

// NewLLM builds a langchaingo-backed classifier. It returns nil when no
// provider is configured, which the classifier treats as unavailable.
func NewLLM(cfg LLMConfig) (LLM, error) {
	var (
		model llms.Model
		err   error
	)

	switch strings.ToLower(cfg.Provider) {
	case "":
		return nil, nil
	case "anthropic":
		opts := []anthropic.Option{anthropic.WithToken(cfg.APIKey)}
		if cfg.Model != "" {
			opts = append(opts, anthropic.WithModel(cfg.Model))
		}
		model, err = anthropic.New(opts...)
	case "openai":
		opts := []openai.Option{openai.WithToken(cfg.APIKey)}
		if cfg.Model != "" {
			opts = append(opts, openai.WithModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err = openai.New(opts...)
	case "ollama":
		serverURL := cfg.BaseURL
		if serverURL == "" {
			serverURL = "http://localhost:11434"
		}
		opts := []ollama.Option{ollama.WithServerURL(serverURL)}
		if cfg.Model != "" {
			opts = append(opts, ollama.WithModel(cfg.Model))
		}
		model, err = ollama.New(opts...)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", cfg.Provider, err)
	}

	return &langchainLLM{model: model}, nil
}

type langchainLLM struct {
	model llms.Model
}

func (l *langchainLLM) Classify(ctx context.Context, req Request) (string, error) {
	out, err := llms.GenerateFromSinglePrompt(ctx, l.model, buildPrompt(req),
		llms.WithTemperature(0),
		llms.WithMaxTokens(32),
	)
	if err != nil {
		return "", err
	}
	return parseLabel(out, req.Candidates), nil
}

func buildPrompt(req Request) string {
	var b strings.Builder
	b.WriteString("You classify database columns into semantic types.\n")
	b.WriteString("Answer with exactly one type id from the list, or \"none\" if no type fits.\n\n")
	fmt.Fprintf(&b, "Table: %s (%s data)\n", req.Table, req.TruthType)
	fmt.Fprintf(&b, "Column: %s\n", req.Column)
	if len(req.Samples) > 0 {
		fmt.Fprintf(&b, "Sample values: %s\n", strings.Join(req.Samples, ", "))
	}
	b.WriteString("\nCandidate types:\n")
	for _, c := range req.Candidates {
		fmt.Fprintf(&b, "- %s: %s", c.ID, c.Label)
		if c.Description != "" {
			fmt.Fprintf(&b, " (%s)", c.Description)
		}
		b.WriteString("\n")
	}
	b.WriteString("\nType id:")
	return b.String()
}

// parseLabel extracts the first candidate id mentioned in the answer.
// Anything unrecognised is treated as none.
func parseLabel(answer string, candidates []models.SemanticType) string {
	answer = strings.ToLower(strings.TrimSpace(answer))
	if line, _, ok := strings.Cut(answer, "\n"); ok {
		answer = line
	}
	answer = strings.Trim(answer, " \t\"'`.:")

	for _, c := range candidates {
		if answer == strings.ToLower(c.ID) {
			return c.ID
		}
	}
	for _, c := range candidates {
		if strings.Contains(answer, strings.ToLower(c.ID)) {
			return c.ID
		}
	}
	return NoneLabel
}
