// Package gemini adapts the Gemini API to the classifier's model contract.
package gemini

import (
	"context"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/pkg/errors"
	"google.golang.org/api/option"

	"github.com/customeros/mailarchive/interfaces"
)

const defaultModel = "gemini-1.5-flash"

type Model struct {
	client    *genai.Client
	modelName string
}

var _ interfaces.LanguageModel = (*Model)(nil)

func NewModel(ctx context.Context, apiKey, modelName string) (*Model, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, errors.Wrap(err, "gemini client")
	}
	if modelName == "" {
		modelName = defaultModel
	}
	return &Model{client: client, modelName: modelName}, nil
}

func (m *Model) Name() string {
	return "gemini/" + m.modelName
}

func (m *Model) Generate(ctx context.Context, prompt string) (string, error) {
	gm := m.client.GenerativeModel(m.modelName)
	gm.SetTemperature(0)

	resp, err := gm.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", errors.Wrap(err, "gemini generate")
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("gemini returned no candidates")
	}

	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String(), nil
}

func (m *Model) Close() error {
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}
