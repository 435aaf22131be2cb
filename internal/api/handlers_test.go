package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/fitflow/fitflow-backend/internal/auth"
	"github.com/fitflow/fitflow-backend/internal/core"
	"github.com/fitflow/fitflow-backend/internal/gateway"
	"github.com/fitflow/fitflow-backend/internal/store"
)

type stubAIClient struct {
	recommendation map[string]any
	videos         []map[string]any
	err            error

	gotProfile any
	gotLogs    any
	gotQuery   string
}

func (c *stubAIClient) Recommend(ctx context.Context, profile any, recentLogs any) (map[string]any, error) {
	c.gotProfile, c.gotLogs = profile, recentLogs
	return c.recommendation, c.err
}

func (c *stubAIClient) RecommendVideos(ctx context.Context, query string) ([]map[string]any, error) {
	c.gotQuery = query
	return c.videos, c.err
}

func TestCORSCredentialsOnlyForExplicitOrigins(t *testing.T) {
	tests := []struct {
		name            string
		origins         []string
		wantCredentials string
	}{
		{"wildcard", []string{"*"}, ""},
		{"explicit list", []string{"https://app.example.com"}, "true"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewRouter(NewAPIHandler(nil, &stubAIClient{}), RouterConfig{CORSAllowedOrigins: tt.origins})
			req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
			req.Header.Set("Origin", "https://app.example.com")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Header().Get("Access-Control-Allow-Origin") == "" {
				t.Fatal("expected CORS headers for an allowed origin")
			}
			if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != tt.wantCredentials {
				t.Errorf("Access-Control-Allow-Credentials = %q, want %q", got, tt.wantCredentials)
			}
		})
	}
}

type apiResponse struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	RequestID string          `json:"requestId"`
}

func setupTestServer(t *testing.T, ai AIClient) http.Handler {
	t.Helper()
	db, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "fitness.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	tokens, err := auth.NewTokenManager("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenManager failed: %v", err)
	}
	accounts := core.NewAccountService(db, tokens, nil)
	return NewRouter(NewAPIHandler(accounts, ai), RouterConfig{CORSAllowedOrigins: []string{"*"}})
}

func doRequest(t *testing.T, h http.Handler, method, path, token string, body any) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp apiResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	return rec, resp
}

func registerUser(t *testing.T, h http.Handler, email string) string {
	t.Helper()
	rec, resp := doRequest(t, h, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "Test User", "email": email, "password": "secret1",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var session struct {
		Token string `json:"token"`
	}
	json.Unmarshal(resp.Data, &session)
	if session.Token == "" {
		t.Fatal("register returned no token")
	}
	return session.Token
}

func TestAuthFlow(t *testing.T) {
	h := setupTestServer(t, &stubAIClient{})

	token := registerUser(t, h, "ada@example.com")

	rec, resp := doRequest(t, h, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "Ada", "email": "ada@example.com", "password": "secret1",
	})
	if rec.Code != http.StatusConflict || resp.Message != "User already exists" {
		t.Errorf("duplicate register: got %d %q", rec.Code, resp.Message)
	}

	rec, _ = doRequest(t, h, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ada@example.com", "password": "secret1"})
	if rec.Code != http.StatusOK {
		t.Errorf("login: expected 200, got %d", rec.Code)
	}
	rec, resp = doRequest(t, h, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ada@example.com", "password": "nope"})
	if rec.Code != http.StatusUnauthorized || resp.Success {
		t.Errorf("bad login: expected 401, got %d", rec.Code)
	}

	rec, resp = doRequest(t, h, http.MethodGet, "/api/users/me", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("profile: expected 200, got %d", rec.Code)
	}
	if strings.Contains(string(resp.Data), "password") {
		t.Error("profile must not expose the password hash")
	}

	rec, _ = doRequest(t, h, http.MethodGet, "/api/users/me", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("missing token: expected 401, got %d", rec.Code)
	}
	rec, _ = doRequest(t, h, http.MethodGet, "/api/users/me", "garbage", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("invalid token: expected 401, got %d", rec.Code)
	}
}

func TestGoogleLoginNotConfigured(t *testing.T) {
	h := setupTestServer(t, &stubAIClient{})
	rec, resp := doRequest(t, h, http.MethodPost, "/api/auth/google", "", map[string]string{"credential": "a-long-google-credential"})
	if rec.Code != http.StatusInternalServerError || resp.Message != auth.ErrGoogleNotConfigured.Error() {
		t.Errorf("got %d %q", rec.Code, resp.Message)
	}
}

func TestValidation(t *testing.T) {
	h := setupTestServer(t, &stubAIClient{})
	token := registerUser(t, h, "val@example.com")

	tests := []struct {
		name    string
		path    string
		token   string
		body    any
		wantMsg string
	}{
		{"short name", "/api/auth/register", "", map[string]string{"name": "A", "email": "a@example.com", "password": "secret1"}, "name must be at least 2 characters long"},
		{"bad email", "/api/auth/register", "", map[string]string{"name": "Ab", "email": "nope", "password": "secret1"}, "Invalid email address"},
		{"short password", "/api/auth/register", "", map[string]string{"name": "Ab", "email": "a@example.com", "password": "123"}, "password must be at least 6 characters long"},
		{"short credential", "/api/auth/google", "", map[string]string{"credential": "x"}, "credential must be at least 10 characters long"},
		{"log without date", "/api/logs", token, map[string]any{"sleepHours": 8}, "date is required"},
		{"log with non-date", "/api/logs", token, map[string]any{"date": "yesterday"}, "date must be a date"},
		{"too much sleep", "/api/logs", token, map[string]any{"date": "2024-03-01", "sleepHours": 25}, "sleepHours must be less than or equal to 24"},
		{"workout without type", "/api/logs", token, map[string]any{"date": "2024-03-01", "workout": map[string]any{"duration": 30}}, "workout.type is required"},
		{"malformed body", "/api/auth/login", "", `{"email":`, "Invalid request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := doRequest(t, h, http.MethodPost, tt.path, tt.token, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
			if !strings.Contains(resp.Message, tt.wantMsg) {
				t.Errorf("message %q does not contain %q", resp.Message, tt.wantMsg)
			}
		})
	}
}

func TestProfileUpdateIsPartial(t *testing.T) {
	h := setupTestServer(t, &stubAIClient{})
	token := registerUser(t, h, "partial@example.com")

	rec, _ := doRequest(t, h, http.MethodPut, "/api/users/me", token, map[string]any{
		"weight": 80, "goals": map[string]any{"primary": "weight loss"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec, resp := doRequest(t, h, http.MethodPut, "/api/users/me", token, map[string]any{
		"preferences": map[string]any{"dietType": "vegetarian"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d", rec.Code)
	}
	var user store.User
	json.Unmarshal(resp.Data, &user)
	if user.Name != "Test User" || user.Goals.Primary != "weight loss" || user.Preferences.DietType != "vegetarian" {
		t.Errorf("partial update lost fields: %+v", user)
	}
	if user.Weight == nil || *user.Weight != 80 {
		t.Errorf("weight not kept: %v", user.Weight)
	}
}

func TestLogsCreateAndList(t *testing.T) {
	h := setupTestServer(t, &stubAIClient{})
	token := registerUser(t, h, "logs@example.com")

	for _, date := range []string{"2024-03-01", "2024-03-03"} {
		rec, _ := doRequest(t, h, http.MethodPost, "/api/logs", token, map[string]any{
			"date": date, "sleepHours": 7.5,
			"workout":   map[string]any{"type": "running", "duration": 30},
			"nutrition": map[string]any{"calories": 2000, "protein": 0},
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("create log: expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
	}

	rec, resp := doRequest(t, h, http.MethodGet, "/api/logs", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list logs: expected 200, got %d", rec.Code)
	}
	var logs []store.LogEntry
	json.Unmarshal(resp.Data, &logs)
	if len(logs) != 2 || logs[0].Date != "2024-03-03" {
		t.Fatalf("unexpected logs: %+v", logs)
	}
	if logs[0].Workout == nil || logs[0].Workout.Type != "running" {
		t.Errorf("workout not stored: %+v", logs[0].Workout)
	}
}

func TestRecommendUsesBodyOrStoredData(t *testing.T) {
	ai := &stubAIClient{recommendation: map[string]any{"workoutPlan": []any{"walk"}, "motivationalTip": "go"}}
	h := setupTestServer(t, ai)
	token := registerUser(t, h, "rec@example.com")

	doRequest(t, h, http.MethodPut, "/api/users/me", token, map[string]any{"goals": map[string]any{"primary": "cardio"}})
	doRequest(t, h, http.MethodPost, "/api/logs", token, map[string]any{"date": "2024-03-01"})

	t.Run("stored", func(t *testing.T) {
		rec, resp := doRequest(t, h, http.MethodPost, "/api/ai/recommend", token, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		profile, ok := ai.gotProfile.(*store.Profile)
		if !ok || profile.Goals.Primary != "cardio" {
			t.Errorf("expected stored profile, got %#v", ai.gotProfile)
		}
		if logs, ok := ai.gotLogs.([]store.LogEntry); !ok || len(logs) != 1 {
			t.Errorf("expected stored logs, got %#v", ai.gotLogs)
		}

		var data struct {
			Profile        store.Profile    `json:"profile"`
			Recommendation map[string]any   `json:"recommendation"`
			YouTubeVideos  []core.VideoCard `json:"youtubeVideos"`
		}
		json.Unmarshal(resp.Data, &data)
		if data.Profile.Goals.Primary != "cardio" || data.Recommendation["motivationalTip"] != "go" {
			t.Errorf("unexpected payload: %+v", data)
		}
		if data.YouTubeVideos == nil || len(data.YouTubeVideos) != 0 {
			t.Errorf("expected empty video list, got %v", data.YouTubeVideos)
		}
	})

	t.Run("body", func(t *testing.T) {
		rec, _ := doRequest(t, h, http.MethodPost, "/api/ai/recommend", token, map[string]any{
			"profile":    map[string]any{"goals": map[string]any{"primary": "muscle building"}},
			"recentLogs": []any{},
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if profile := ai.gotProfile.(*store.Profile); profile.Goals.Primary != "muscle building" {
			t.Errorf("expected body profile, got %+v", profile)
		}
		if logs := ai.gotLogs.([]store.LogEntry); len(logs) != 0 {
			t.Errorf("an explicit empty log list must be kept, got %v", logs)
		}
	})
}

func TestGatewayErrorsPassThrough(t *testing.T) {
	ai := &stubAIClient{err: &gateway.Error{StatusCode: http.StatusGatewayTimeout, Message: "AI service timed out. Try again in a moment."}}
	h := setupTestServer(t, ai)
	token := registerUser(t, h, "err@example.com")

	for _, path := range []string{"/api/ai/recommend", "/api/youtube/recommend"} {
		rec, resp := doRequest(t, h, http.MethodPost, path, token, map[string]any{})
		if rec.Code != http.StatusGatewayTimeout {
			t.Errorf("%s: expected 504, got %d", path, rec.Code)
		}
		if resp.Success || resp.Message != "AI service timed out. Try again in a moment." || resp.RequestID == "" {
			t.Errorf("%s: unexpected error body %+v", path, resp)
		}
		if rec.Header().Get(requestIDHeader) != resp.RequestID {
			t.Errorf("%s: request id header and body differ", path)
		}
	}
}

func TestRecommendVideosBuildsQuery(t *testing.T) {
	ai := &stubAIClient{videos: []map[string]any{{"videoId": "a"}}}
	h := setupTestServer(t, ai)
	token := registerUser(t, h, "vid@example.com")

	rec, resp := doRequest(t, h, http.MethodPost, "/api/youtube/recommend", token, map[string]string{"goal": "weight loss", "diet": "keto"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ai.gotQuery != "weight loss keto workout" {
		t.Errorf("unexpected query %q", ai.gotQuery)
	}
	if !strings.Contains(string(resp.Data), `"youtubeVideos"`) {
		t.Errorf("unexpected data %s", resp.Data)
	}
}

func TestHealthAndRequestID(t *testing.T) {
	h := setupTestServer(t, &stubAIClient{})
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("unexpected health response %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get(requestIDHeader) != "abc-123" {
		t.Errorf("upstream request id not echoed: %q", rec.Header().Get(requestIDHeader))
	}
}
