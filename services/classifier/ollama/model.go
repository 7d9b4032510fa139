// Package ollama calls a local Ollama server for classification.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailarchive/dto"
	"github.com/customeros/mailarchive/interfaces"
	"github.com/customeros/mailarchive/internal/tracing"
)

type model struct {
	baseURL   string
	modelName string
	client    *http.Client
}

func NewModel(baseURL, modelName string) interfaces.LanguageModel {
	return &model{
		baseURL:   strings.TrimRight(baseURL, "/"),
		modelName: modelName,
		client:    &http.Client{},
	}
}

func (m *model) Name() string {
	return "ollama/" + m.modelName
}

func (m *model) Generate(ctx context.Context, prompt string) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Ollama.Generate")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("model", m.modelName)

	payload, err := json.Marshal(dto.ModelPrompt{
		Model:   m.modelName,
		Prompt:  prompt,
		Stream:  false,
		Options: map[string]interface{}{"temperature": 0},
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/api/generate", bytes.NewBuffer(payload))
	if err != nil {
		return "", errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req = tracing.InjectSpanContextIntoHTTPRequest(req, span)

	resp, err := m.client.Do(req)
	if err != nil {
		tracing.TraceErr(span, err)
		return "", errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "unable to read response body")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("request failed with status code %d: %s", resp.StatusCode, string(body))
	}

	var reply dto.ModelReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return reply.Response, nil
}
