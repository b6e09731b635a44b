package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"practicum.dev/assistant-gateway/internal/apperr"
	"practicum.dev/assistant-gateway/internal/auth"
	"practicum.dev/assistant-gateway/internal/core"
	"practicum.dev/assistant-gateway/internal/store"
)

const testSecret = "test-secret"

type fakeModel struct {
	answer string
	err    error
}

func (m *fakeModel) Answer(context.Context, core.Prompt) (string, error) {
	return m.answer, m.err
}

type testServer struct {
	handler http.Handler
	store   *store.SQLiteStore
	model   *fakeModel
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	st, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	composer, err := core.NewComposer(core.DefaultSystemInstruction, 5)
	require.NoError(t, err)
	model := &fakeModel{answer: "Debes subir el formato en la sección de documentos."}
	svc := core.NewAssistantService(composer, model, st)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &testServer{
		handler: NewRouter(NewAPIHandler(svc, testSecret), logger),
		store:   st,
		model:   model,
	}
}

func (s *testServer) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func reviewerToken(t *testing.T) string {
	t.Helper()
	token, err := auth.GenerateJWT(testSecret, "coordinacion", time.Hour)
	require.NoError(t, err)
	return token
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(&v), rec.Body.String())
	return v
}

func TestAskThenFeedbackThenReview(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/ask", `{"question":"¿Cómo subo mi carta de aceptación?"}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	ask := decode[AskResponse](t, rec)
	assert.Equal(t, "Debes subir el formato en la sección de documentos.", ask.Answer)
	assert.Positive(t, ask.InteractionID)

	rec = s.do(t, http.MethodPost, "/feedback",
		`{"interactionId":`+jsonInt(ask.InteractionID)+`,"feedback":"positive"}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	fb := decode[FeedbackResponse](t, rec)
	assert.Equal(t, FeedbackResponse{InteractionID: ask.InteractionID, Feedback: store.FeedbackPositive, Status: "recorded"}, fb)

	rec = s.do(t, http.MethodGet, "/interactions?feedback=positive", "", reviewerToken(t))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	list := decode[[]store.Interaction](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, ask.InteractionID, list[0].ID)
	assert.Equal(t, "¿Cómo subo mi carta de aceptación?", list[0].Question)

	rec = s.do(t, http.MethodGet, "/interactions/"+jsonInt(ask.InteractionID), "", reviewerToken(t))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	one := decode[store.Interaction](t, rec)
	require.NotNil(t, one.Feedback)
	assert.Equal(t, store.FeedbackPositive, *one.Feedback)
}

func TestAskErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		modelErr   error
		wantStatus int
		wantKind   apperr.Kind
		wantStored int
	}{
		{"empty question", `{"question":"   "}`, nil, http.StatusBadRequest, apperr.KindInvalidInput, 0},
		{"missing body", ``, nil, http.StatusBadRequest, apperr.KindInvalidInput, 0},
		{"malformed json", `{"question":`, nil, http.StatusBadRequest, apperr.KindInvalidInput, 0},
		{"bad history role", `{"question":"q","history":[{"role":"system","content":"x"}]}`, nil,
			http.StatusBadRequest, apperr.KindInvalidInput, 0},
		{"prompt too large", `{"question":"q"}`, apperr.E(apperr.KindPromptTooLarge, "t", "prompt is too large", nil),
			http.StatusRequestEntityTooLarge, apperr.KindPromptTooLarge, 0},
		{"model unavailable", `{"question":"q"}`, apperr.E(apperr.KindModelUnavailable, "t", "model is unavailable", nil),
			http.StatusServiceUnavailable, apperr.KindModelUnavailable, 1},
		{"model error", `{"question":"q"}`, apperr.E(apperr.KindModelError, "t", "model failed", nil),
			http.StatusBadGateway, apperr.KindModelError, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			s.model.err = tt.modelErr

			rec := s.do(t, http.MethodPost, "/ask", tt.body, "")
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			resp := decode[errorResponse](t, rec)
			assert.Equal(t, tt.wantKind, resp.Error)
			assert.NotEmpty(t, resp.Message)
			assert.Empty(t, resp.Answer)

			stored, err := s.store.ListInteractions(context.Background(), store.Filter{})
			require.NoError(t, err)
			assert.Len(t, stored, tt.wantStored)
			if tt.wantStored == 1 {
				require.NotNil(t, resp.InteractionID)
				assert.Equal(t, stored[0].ID, *resp.InteractionID)
				assert.Equal(t, store.UnavailableAnswer, stored[0].Answer)
			}
		})
	}
}

func TestAskBodyTooLarge(t *testing.T) {
	s := newTestServer(t)
	body := `{"question":"` + strings.Repeat("a", maxBodyBytes) + `"}`

	rec := s.do(t, http.MethodPost, "/ask", body, "")
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

type storageFailingGateway struct{ Gateway }

func (storageFailingGateway) Ask(context.Context, core.AskInput) (*core.AskResult, error) {
	return &core.AskResult{State: core.StateFailed, Answer: "respuesta"},
		apperr.E(apperr.KindStorageError, "t", "could not save interaction", nil)
}

func TestAskStorageFailureStillReturnsAnswer(t *testing.T) {
	h := NewRouter(NewAPIHandler(storageFailingGateway{}, testSecret), slog.New(slog.NewTextHandler(io.Discard, nil)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{"question":"q"}`)))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decode[errorResponse](t, rec)
	assert.Equal(t, apperr.KindStorageError, resp.Error)
	assert.Equal(t, "respuesta", resp.Answer)
	assert.Nil(t, resp.InteractionID)
}

func TestFeedbackErrors(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/ask", `{"question":"q"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	id := jsonInt(decode[AskResponse](t, rec).InteractionID)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantKind   apperr.Kind
	}{
		{"invalid value", `{"interactionId":` + id + `,"feedback":"meh"}`, http.StatusBadRequest, apperr.KindInvalidFeedback},
		{"unknown id", `{"interactionId":999999,"feedback":"positive"}`, http.StatusNotFound, apperr.KindNotFound},
		{"missing id", `{"feedback":"positive"}`, http.StatusBadRequest, apperr.KindInvalidInput},
		{"first write", `{"interactionId":` + id + `,"feedback":"negative"}`, http.StatusOK, ""},
		{"second write", `{"interactionId":` + id + `,"feedback":"positive"}`, http.StatusConflict, apperr.KindFeedbackAlreadySet},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/feedback", tt.body, "")
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantKind != "" {
				assert.Equal(t, tt.wantKind, decode[errorResponse](t, rec).Error)
			}
		})
	}
}

func TestInteractionsRequireReviewerToken(t *testing.T) {
	s := newTestServer(t)

	wrongSecret, err := auth.GenerateJWT("other", "x", time.Hour)
	require.NoError(t, err)

	for _, token := range []string{"", "garbage", wrongSecret} {
		rec := s.do(t, http.MethodGet, "/interactions", "", token)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, apperr.KindUnauthorized, decode[errorResponse](t, rec).Error)
	}

	req := httptest.NewRequest(http.MethodGet, "/interactions", nil)
	req.Header.Set("Authorization", "Basic Zm9vOmJhcg==")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListInteractionsFilters(t *testing.T) {
	s := newTestServer(t)
	token := reviewerToken(t)

	rec := s.do(t, http.MethodGet, "/interactions", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	s.do(t, http.MethodPost, "/ask", `{"question":"uno"}`, "")
	s.model.err = apperr.E(apperr.KindModelUnavailable, "t", "down", nil)
	s.do(t, http.MethodPost, "/ask", `{"question":"dos"}`, "")

	rec = s.do(t, http.MethodGet, "/interactions?failed=true", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	failed := decode[[]store.Interaction](t, rec)
	require.Len(t, failed, 1)
	assert.Equal(t, "dos", failed[0].Question)

	rec = s.do(t, http.MethodGet, "/interactions?feedback=none&limit=1&offset=1", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[[]store.Interaction](t, rec)
	require.Len(t, page, 1)
	assert.Equal(t, "dos", page[0].Question)

	since := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)
	rec = s.do(t, http.MethodGet, "/interactions?since="+since, "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]store.Interaction](t, rec), 2)

	for _, q := range []string{"feedback=maybe", "failed=perhaps", "since=yesterday", "limit=ten", "offset=-1"} {
		rec = s.do(t, http.MethodGet, "/interactions?"+q, "", token)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestGetInteractionErrors(t *testing.T) {
	s := newTestServer(t)
	token := reviewerToken(t)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/interactions/abc", "", token).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/interactions/42", "", token).Code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, statusFor(apperr.KindStorageError))
	assert.Equal(t, http.StatusInternalServerError, statusFor(apperr.KindInternal))
	assert.Equal(t, http.StatusBadRequest, statusFor(apperr.KindInvalidFeedback))
}

func jsonInt(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
