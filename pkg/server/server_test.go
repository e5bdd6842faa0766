package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/jingkaihe/docgate/pkg/review"
	"github.com/jingkaihe/docgate/pkg/store"
	reviewtypes "github.com/jingkaihe/docgate/pkg/types/review"
)

const (
	goodDraft = "Acme Logistics will build a routing prototype."
	badDraft  = "The system will probably help many users."
)

// The goal section stays vague until the user clarifies it.
func testGenerator() review.Generator {
	return review.GeneratorFunc(func(_ context.Context, req review.GenerateRequest) (string, error) {
		if req.Template.Key() == "goal" && len(req.Clarifications) == 0 {
			return badDraft, nil
		}
		return goodDraft, nil
	})
}

type testEnv struct {
	store      store.Store
	controller *review.Controller
	handler    http.Handler
	ids        int
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := store.NewJSONStore(t.TempDir())
	require.NoError(t, err)

	env := &testEnv{store: st}
	env.controller = review.NewController(testGenerator(),
		review.WithClock(func() time.Time { return time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC) }),
		review.WithIDFunc(func() string {
			env.ids++
			return fmt.Sprintf("run-%d", env.ids)
		}),
		review.WithSaver(st),
	)

	srv, err := NewServer(&ServerConfig{Host: "localhost", Port: 8088}, st, env.controller)
	require.NoError(t, err)
	env.handler = srv.Handler()
	return env
}

// waitingRun creates a run whose goal section failed and is waiting for input
func (e *testEnv) waitingRun(t *testing.T) string {
	t.Helper()

	facts := reviewtypes.NewFactSet(reviewtypes.Fact{
		Key:    "client_name",
		Value:  "Acme Logistics",
		Source: reviewtypes.SourceRef{Document: "notes.md"},
	})
	state := e.controller.NewRun("hackathon-debrief", "en", []reviewtypes.SectionTemplate{
		{Name: "Pain Points", Threshold: 75},
		{Name: "Goal", Threshold: 70},
	}, facts)
	require.NoError(t, e.controller.Advance(context.Background(), state))
	require.Equal(t, reviewtypes.PhaseNeedsInput, state.Phase)
	return state.ID
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestServerConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  ServerConfig
		wantErr string
	}{
		{"valid", ServerConfig{Host: "localhost", Port: 8080}, ""},
		{"empty host", ServerConfig{Port: 8080}, "host cannot be empty"},
		{"port too low", ServerConfig{Host: "localhost", Port: 0}, "port must be between 1 and 65535, got 0"},
		{"port too high", ServerConfig{Host: "localhost", Port: 70000}, "port must be between 1 and 65535, got 70000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}

func TestListAndInspectRuns(t *testing.T) {
	env := newTestEnv(t)
	id := env.waitingRun(t)

	rec := env.do(t, http.MethodGet, "/api/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	listed := decode[map[string][]reviewtypes.Summary](t, rec)
	require.Len(t, listed["runs"], 1)
	assert.Equal(t, id, listed["runs"][0].ID)
	assert.Equal(t, 1, listed["runs"][0].Failed)

	rec = env.do(t, http.MethodGet, "/api/runs?phase=finalized", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"runs": []}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/runs/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	state := decode[reviewtypes.ReviewState](t, rec)
	assert.Equal(t, reviewtypes.PhaseNeedsInput, state.Phase)

	rec = env.do(t, http.MethodGet, "/api/runs/"+id+"/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[reviewtypes.ReviewSummary](t, rec)
	require.Len(t, summary.Rows, 2)
	assert.Equal(t, reviewtypes.StatusPassed, summary.Rows[0].Status)
	assert.Equal(t, reviewtypes.StatusFailed, summary.Rows[1].Status)
	assert.Equal(t, 36, summary.Rows[1].Composite)

	rec = env.do(t, http.MethodGet, "/api/runs/"+id+"/questions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var questions struct {
		Phase     reviewtypes.Phase         `json:"phase"`
		Questions []reviewtypes.GapQuestion `json:"questions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &questions))
	require.Len(t, questions.Questions, 1)
	assert.Equal(t, "goal", questions.Questions[0].SectionID)
}

func TestUnknownRun(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/api/runs/missing", "/api/runs/missing/summary", "/api/runs/missing/document"} {
		rec := env.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}

	rec := env.do(t, http.MethodPost, "/api/runs/missing/cancel", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPostResponseFinalizesRun(t *testing.T) {
	env := newTestEnv(t)
	id := env.waitingRun(t)

	rec := env.do(t, http.MethodGet, "/api/runs/"+id+"/document", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/runs/"+id+"/responses", reviewtypes.Response{
		Answers: map[string]string{"goal": "The goal is a routing prototype for Acme Logistics."},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	view := decode[RunView](t, rec)
	assert.Equal(t, reviewtypes.PhaseFinalized, view.Phase)
	assert.Equal(t, 2, view.Round)
	assert.Empty(t, view.Questions)
	require.Len(t, view.Accepted, 2)
	assert.Equal(t, goodDraft, view.Accepted[1].Text)

	stored, err := env.store.Load(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, reviewtypes.PhaseFinalized, stored.Phase)

	rec = env.do(t, http.MethodGet, "/api/runs/"+id+"/document?title=Debrief", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/markdown; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "# Debrief")
	assert.Contains(t, rec.Body.String(), "## 2. Goal")

	rec = env.do(t, http.MethodGet, "/api/runs/"+id+"/document?format=html", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `<h2 id="1-pain-points">`)

	rec = env.do(t, http.MethodGet, "/api/runs/"+id+"/document?format=pdf", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/runs/"+id+"/responses", reviewtypes.Response{Override: true})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPostResponseValidation(t *testing.T) {
	env := newTestEnv(t)
	id := env.waitingRun(t)

	rec := env.do(t, http.MethodPost, "/api/runs/"+id+"/responses", reviewtypes.Response{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/runs/"+id+"/responses", reviewtypes.Response{
		Answers: map[string]string{"budget": "10k"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown section")

	req := httptest.NewRequest(http.MethodPost, "/api/runs/"+id+"/responses", bytes.NewBufferString("{"))
	raw := httptest.NewRecorder()
	env.handler.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)

	stored, err := env.store.Load(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, reviewtypes.PhaseNeedsInput, stored.Phase)
}

func TestPostResponseAdvancesInterruptedRun(t *testing.T) {
	env := newTestEnv(t)
	state := env.controller.NewRun("hackathon-debrief", "en", []reviewtypes.SectionTemplate{
		{Name: "Pain Points", Threshold: 75},
		{Name: "Goal", Threshold: 70},
	}, reviewtypes.NewFactSet(reviewtypes.Fact{Key: "client_name", Value: "Acme Logistics"}))
	require.NoError(t, env.store.Save(context.Background(), state))

	rec := env.do(t, http.MethodPost, "/api/runs/"+state.ID+"/responses", reviewtypes.Response{})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	view := decode[RunView](t, rec)
	assert.Equal(t, reviewtypes.PhaseNeedsInput, view.Phase)
	require.Len(t, view.Questions, 1)
	assert.Equal(t, "goal", view.Questions[0].SectionID)

	stored, err := env.store.Load(context.Background(), state.ID)
	require.NoError(t, err)
	assert.Equal(t, reviewtypes.PhaseNeedsInput, stored.Phase)
}

func TestOverrideThroughAPI(t *testing.T) {
	env := newTestEnv(t)
	id := env.waitingRun(t)

	rec := env.do(t, http.MethodPost, "/api/runs/"+id+"/responses", reviewtypes.Response{OverrideSections: []string{"Goal"}})
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[RunView](t, rec)
	assert.Equal(t, reviewtypes.PhaseFinalized, view.Phase)
	assert.Equal(t, reviewtypes.StatusOverridden, view.Summary.Rows[1].Status)
	assert.Equal(t, 36, view.Summary.Rows[1].Composite)
}

func TestCancelAndDelete(t *testing.T) {
	env := newTestEnv(t)
	id := env.waitingRun(t)

	rec := env.do(t, http.MethodPost, "/api/runs/"+id+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[RunView](t, rec)
	assert.Equal(t, reviewtypes.PhaseCancelled, view.Phase)
	assert.Empty(t, view.Summary.Rows)

	rec = env.do(t, http.MethodPost, "/api/runs/"+id+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/runs/"+id+"/document", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/runs/"+id, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/runs/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVersionAndCORS(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/version", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"goVersion"`)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(store.ErrNotFound))
	assert.Equal(t, http.StatusBadRequest, statusFor(review.ErrEmptyResponse))
	assert.Equal(t, http.StatusConflict, statusFor(reviewtypes.ErrRunCancelled))
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
}

func TestRequestsAreTraced(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		_ = provider.Shutdown(context.Background())
	})

	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/runs/missing/summary", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "http.request", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.String("http.route", "/api/runs/{id}/summary"))
	assert.Contains(t, spans[0].Attributes(), attribute.Int("http.status_code", http.StatusNotFound))
}
