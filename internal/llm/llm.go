// Package llm wraps the hosted generative-text service behind the two raw
// operations the pipeline needs: generate and evaluate. All structured
// parsing of responses happens in the caller; this package only moves text.
package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/spf13/viper"
	"google.golang.org/api/option"
)

const (
	// DefaultModel is the default Gemini model used for article generation.
	DefaultModel = "gemini-1.5-flash-latest"

	generationTemperature = 0.8
	evaluationTemperature = 0.2
)

// Client is a client for the Gemini generative-text API.
type Client struct {
	modelName string
	gClient   *genai.Client
}

// NewClient creates a new LLM client.
// The API key is resolved from GEMINI_API_KEY or the gemini.api_key config
// entry; the model from the parameter, gemini.model, or DefaultModel.
func NewClient(ctx context.Context, modelName string) (*Client, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		apiKey = viper.GetString("gemini.api_key")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required: set GEMINI_API_KEY or gemini.api_key in config")
	}

	if modelName == "" {
		modelName = viper.GetString("gemini.model")
		if modelName == "" {
			modelName = DefaultModel
		}
	}

	gClient, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Client{modelName: modelName, gClient: gClient}, nil
}

// Close releases the underlying API client.
func (c *Client) Close() error {
	return c.gClient.Close()
}

// Generate sends a generation prompt and returns the raw response text.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	return c.generateContent(ctx, prompt, generationTemperature)
}

// Evaluate sends an evaluation prompt and returns the raw response text.
// Evaluation runs at low temperature so scores stay comparable across calls.
func (c *Client) Evaluate(ctx context.Context, prompt string) (string, error) {
	return c.generateContent(ctx, prompt, evaluationTemperature)
}

func (c *Client) generateContent(ctx context.Context, prompt string, temperature float32) (string, error) {
	if prompt == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}

	model := c.gClient.GenerativeModel(c.modelName)
	model.SetTemperature(temperature)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil ||
		len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty response from model")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}

	text := sb.String()
	if text == "" {
		return "", fmt.Errorf("no text parts in model response")
	}
	return text, nil
}

// ConfirmCandidate asks the evaluation model whether a keyword cluster is a
// coherent, article-worthy topic. Used as the batcher's optional semantic
// confirmation step.
func (c *Client) ConfirmCandidate(ctx context.Context, keyword string, titles []string) (bool, error) {
	var sb strings.Builder
	sb.WriteString("You are screening topic clusters for an automated publication.\n")
	sb.WriteString(fmt.Sprintf("Cluster keyword: %q\n", keyword))
	sb.WriteString("Member headlines:\n")
	for _, title := range titles {
		sb.WriteString("- " + title + "\n")
	}
	sb.WriteString("\nIs this a single coherent topic worth one article? Answer YES or NO only.")

	resp, err := c.Evaluate(ctx, sb.String())
	if err != nil {
		return false, err
	}

	answer := strings.ToUpper(strings.TrimSpace(resp))
	return strings.HasPrefix(answer, "YES"), nil
}
