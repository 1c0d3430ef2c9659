package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	memstore "github.com/satriahrh/kundli/server/adapters/memory"
	"github.com/satriahrh/kundli/server/adapters/persona"
	"github.com/satriahrh/kundli/server/internal/auth"
	"github.com/satriahrh/kundli/server/usecase"
)

type fakeText struct {
	got usecase.TextRequest
	err error
}

func (f *fakeText) Reply(ctx context.Context, req usecase.TextRequest) (usecase.TextReply, error) {
	f.got = req
	if f.err != nil {
		return usecase.TextReply{}, f.err
	}
	if req.Message == "" {
		return usecase.TextReply{}, usecase.ErrMissingMessage
	}
	return usecase.TextReply{Message: "Namaste", PersonaID: req.PersonaID, Phase: 1}, nil
}

type routesFixture struct {
	e      *echo.Echo
	issuer *auth.Issuer
	text   *fakeText
	convs  *memstore.ConversationStore
}

func setupRoutes(t *testing.T) *routesFixture {
	t.Helper()
	logger := zap.NewNop()
	f := &routesFixture{
		e:      echo.New(),
		issuer: auth.NewIssuer("test-secret", time.Hour),
		text:   &fakeText{},
		convs:  memstore.NewConversationStore(),
	}
	InitRoutes(f.e, Dependencies{
		Issuer:        f.issuer,
		Catalog:       persona.LoadFile("../../data/astrologers.json", logger),
		Text:          f.text,
		Conversations: f.convs,
		ServiceKey:    "svc-key",
		Logger:        logger,
	})
	return f
}

func (f *routesFixture) do(t *testing.T, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func (f *routesFixture) bearer(t *testing.T, userID string) map[string]string {
	t.Helper()
	token, _, err := f.issuer.GenerateUserToken(userID)
	if err != nil {
		t.Fatalf("Failed to mint token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestHealth(t *testing.T) {
	f := setupRoutes(t)
	rec := f.do(t, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("Unexpected health response %d %s", rec.Code, rec.Body.String())
	}
}

func TestMintToken(t *testing.T) {
	f := setupRoutes(t)

	tests := []struct {
		name   string
		body   string
		key    string
		status int
	}{
		{"valid", `{"user_id":"u1"}`, "svc-key", http.StatusOK},
		{"wrong key", `{"user_id":"u1"}`, "nope", http.StatusUnauthorized},
		{"no key", `{"user_id":"u1"}`, "", http.StatusUnauthorized},
		{"missing user", `{}`, "svc-key", http.StatusBadRequest},
		{"bad json", `{`, "svc-key", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/v1/auth/token", tt.body, map[string]string{serviceKeyHeader: tt.key})
			if rec.Code != tt.status {
				t.Fatalf("Expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
			if tt.status != http.StatusOK {
				return
			}
			var resp TokenResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("Failed to decode: %v", err)
			}
			claims, err := f.issuer.ValidateToken(resp.Token)
			if err != nil || claims.UserID != "u1" {
				t.Errorf("Issued token is not valid for u1: %v", err)
			}
		})
	}
}

func TestListPersonas(t *testing.T) {
	f := setupRoutes(t)
	rec := f.do(t, http.MethodGet, "/api/v1/personas", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var out []PersonaSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if len(out) == 0 {
		t.Fatal("Expected bundled personas")
	}
	for _, p := range out {
		if p.ID == "" || p.Name == "" {
			t.Errorf("Incomplete persona summary %+v", p)
		}
	}
}

func TestChat(t *testing.T) {
	f := setupRoutes(t)

	rec := f.do(t, http.MethodPost, "/api/v1/chat", `{"persona_id":"tina_kulkarni_vedic_marriage","message":"hi"}`, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without token, got %d", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/api/v1/chat", `{"persona_id":"tina_kulkarni_vedic_marriage","message":"hi"}`, f.bearer(t, "u1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if f.text.got.UserID != "u1" || f.text.got.PersonaID != "tina_kulkarni_vedic_marriage" {
		t.Errorf("Unexpected request forwarded %+v", f.text.got)
	}
	var reply usecase.TextReply
	json.Unmarshal(rec.Body.Bytes(), &reply)
	if reply.Message != "Namaste" {
		t.Errorf("Unexpected reply %+v", reply)
	}

	rec = f.do(t, http.MethodPost, "/api/v1/chat", `{"message":""}`, f.bearer(t, "u1"))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for empty message, got %d", rec.Code)
	}

	f.text.err = errors.New("provider down")
	rec = f.do(t, http.MethodPost, "/api/v1/chat", `{"message":"hi"}`, f.bearer(t, "u1"))
	if rec.Code != http.StatusBadGateway {
		t.Errorf("Expected 502 on provider failure, got %d", rec.Code)
	}
}

func TestReview(t *testing.T) {
	f := setupRoutes(t)
	id, err := f.convs.Open(context.Background(), "u1", "tina_kulkarni_vedic_marriage", "marriage")
	if err != nil {
		t.Fatalf("Failed to open conversation: %v", err)
	}

	tests := []struct {
		name   string
		user   string
		id     string
		body   string
		status int
	}{
		{"valid", "u1", id, `{"rating":5,"comment":"very accurate"}`, http.StatusCreated},
		{"rating out of range", "u1", id, `{"rating":9}`, http.StatusBadRequest},
		{"other user", "u2", id, `{"rating":4}`, http.StatusNotFound},
		{"unknown conversation", "u1", "missing", `{"rating":4}`, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/v1/conversations/"+tt.id+"/review", tt.body, f.bearer(t, tt.user))
			if rec.Code != tt.status {
				t.Errorf("Expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
		})
	}

	saved, ok := f.convs.Review(id)
	if !ok || saved.Rating != 5 || saved.Comment != "very accurate" {
		t.Errorf("Unexpected stored review %+v", saved)
	}
}
