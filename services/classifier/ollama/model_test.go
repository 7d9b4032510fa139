package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/mocktracer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailarchive/dto"
)

func TestGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		var prompt dto.ModelPrompt
		require.NoError(t, json.NewDecoder(r.Body).Decode(&prompt))
		assert.Equal(t, "llama3.2", prompt.Model)
		assert.False(t, prompt.Stream)
		_ = json.NewEncoder(w).Encode(dto.ModelReply{Model: prompt.Model, Response: "invoice\nMonthly hosting invoice.", Done: true})
	}))
	defer srv.Close()

	m := NewModel(srv.URL+"/", "llama3.2")
	assert.Equal(t, "ollama/llama3.2", m.Name())

	reply, err := m.Generate(context.Background(), "classify")
	require.NoError(t, err)
	assert.Equal(t, "invoice\nMonthly hosting invoice.", reply)
}

func TestGenerate_PropagatesTraceHeaders(t *testing.T) {
	tracer := mocktracer.New()
	opentracing.SetGlobalTracer(tracer)
	t.Cleanup(func() { opentracing.SetGlobalTracer(opentracing.NoopTracer{}) })

	var traceID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID = r.Header.Get("Mockpfx-Ids-Traceid")
		_ = json.NewEncoder(w).Encode(dto.ModelReply{Response: "other", Done: true})
	}))
	defer srv.Close()

	_, err := NewModel(srv.URL, "llama3.2").Generate(context.Background(), "classify")
	require.NoError(t, err)
	assert.NotEmpty(t, traceID)

	finished := tracer.FinishedSpans()
	require.Len(t, finished, 1)
	assert.Equal(t, "Ollama.Generate", finished[0].OperationName)
}

func TestGenerate_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewModel(srv.URL, "llama3.2").Generate(context.Background(), "classify")
	assert.ErrorContains(t, err, "503")
}
