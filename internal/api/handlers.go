package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/fitflow/fitflow-backend/internal/auth"
	"github.com/fitflow/fitflow-backend/internal/core"
	"github.com/fitflow/fitflow-backend/internal/gateway"
	"github.com/fitflow/fitflow-backend/internal/store"
)

// AIClient is the public server's view of the AI service.
type AIClient interface {
	Recommend(ctx context.Context, profile any, recentLogs any) (map[string]any, error)
	RecommendVideos(ctx context.Context, query string) ([]map[string]any, error)
}

type APIHandler struct {
	accounts *core.AccountService
	ai       AIClient
}

func NewAPIHandler(accounts *core.AccountService, ai AIClient) *APIHandler {
	return &APIHandler{accounts: accounts, ai: ai}
}

type RegisterRequest struct {
	Name     string `json:"name" validate:"min=2"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"min=6"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password"`
}

type GoogleLoginRequest struct {
	Credential string `json:"credential" validate:"min=10"`
}

// sessionView is the public part of a session: the user is trimmed to id, name and email.
type sessionView struct {
	Token string   `json:"token"`
	User  userView `json:"user"`
}

type userView struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func newSessionView(s *core.Session) sessionView {
	return sessionView{Token: s.Token, User: userView{ID: s.User.ID, Name: s.User.Name, Email: s.User.Email}}
}

func (h *APIHandler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error(), "", nil)
		return
	}

	session, err := h.accounts.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, core.ErrUserExists) {
			respondError(w, r, http.StatusConflict, err.Error(), "", nil)
			return
		}
		respondError(w, r, http.StatusInternalServerError, "Failed to register user", "", err)
		return
	}
	respondSuccess(w, http.StatusCreated, "User registered successfully", newSessionView(session))
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error(), "", nil)
		return
	}

	session, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, core.ErrInvalidCredentials):
		respondError(w, r, http.StatusUnauthorized, err.Error(), "", nil)
		return
	case errors.Is(err, core.ErrUseGoogleSignIn):
		respondError(w, r, http.StatusBadRequest, err.Error(), "", nil)
		return
	case err != nil:
		respondError(w, r, http.StatusInternalServerError, "Failed to log in", "", err)
		return
	}
	respondSuccess(w, http.StatusOK, "Success", newSessionView(session))
}

func (h *APIHandler) GoogleLoginHandler(w http.ResponseWriter, r *http.Request) {
	var req GoogleLoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error(), "", nil)
		return
	}

	session, err := h.accounts.LoginWithGoogle(r.Context(), req.Credential)
	switch {
	case errors.Is(err, auth.ErrGoogleNotConfigured):
		respondError(w, r, http.StatusInternalServerError, err.Error(), "", err)
		return
	case errors.Is(err, auth.ErrInvalidGoogleToken), errors.Is(err, auth.ErrGoogleEmailUnverified):
		respondError(w, r, http.StatusUnauthorized, err.Error(), "", err)
		return
	case err != nil:
		respondError(w, r, http.StatusInternalServerError, "Google authentication failed", "", err)
		return
	}
	respondSuccess(w, http.StatusOK, "Google authentication successful", newSessionView(session))
}

func (h *APIHandler) GetProfileHandler(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, http.StatusOK, "Profile fetched", userFromContext(r.Context()))
}

// UpdateProfileRequest is a partial update: omitted fields keep their stored value.
type UpdateProfileRequest struct {
	Name        *string            `json:"name" validate:"omitempty,min=2"`
	Age         *float64           `json:"age" validate:"omitempty,gte=0,lte=150"`
	Height      *float64           `json:"height" validate:"omitempty,gte=0"`
	Weight      *float64           `json:"weight" validate:"omitempty,gte=0"`
	Goals       *store.Goals       `json:"goals"`
	Preferences *store.Preferences `json:"preferences"`
	AvatarURL   *string            `json:"avatarUrl"`
}

func (req UpdateProfileRequest) apply(user *store.User) (store.Profile, string) {
	profile, avatar := user.Profile, user.AvatarURL
	if req.Name != nil {
		profile.Name = *req.Name
	}
	if req.Age != nil {
		profile.Age = req.Age
	}
	if req.Height != nil {
		profile.Height = req.Height
	}
	if req.Weight != nil {
		profile.Weight = req.Weight
	}
	if req.Goals != nil {
		profile.Goals = *req.Goals
	}
	if req.Preferences != nil {
		profile.Preferences = *req.Preferences
	}
	if req.AvatarURL != nil {
		avatar = *req.AvatarURL
	}
	return profile, avatar
}

func (h *APIHandler) UpdateProfileHandler(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	var req UpdateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error(), "", nil)
		return
	}

	profile, avatar := req.apply(user)
	updated, err := h.accounts.UpdateProfile(r.Context(), user.ID, profile, avatar)
	if err != nil {
		if errors.Is(err, core.ErrUserNotFound) {
			respondError(w, r, http.StatusNotFound, err.Error(), "", nil)
			return
		}
		respondError(w, r, http.StatusInternalServerError, "Failed to update profile", "", err)
		return
	}
	respondSuccess(w, http.StatusOK, "Profile updated", updated)
}

type workoutRequest struct {
	Type     string   `json:"type" validate:"required"`
	Duration *float64 `json:"duration" validate:"required"`
}

type nutritionRequest struct {
	Calories *float64 `json:"calories" validate:"required"`
	Protein  *float64 `json:"protein" validate:"required"`
}

type CreateLogRequest struct {
	Date       string            `json:"date" validate:"required,logdate"`
	Weight     *float64          `json:"weight"`
	SleepHours *float64          `json:"sleepHours" validate:"omitempty,gte=0,lte=24"`
	Workout    *workoutRequest   `json:"workout"`
	Nutrition  *nutritionRequest `json:"nutrition"`
}

func (req CreateLogRequest) entry() store.LogEntry {
	entry := store.LogEntry{Date: req.Date, Weight: req.Weight, SleepHours: req.SleepHours}
	if req.Workout != nil {
		entry.Workout = &store.Workout{Type: req.Workout.Type, Duration: *req.Workout.Duration}
	}
	if req.Nutrition != nil {
		entry.Nutrition = &store.Nutrition{Calories: *req.Nutrition.Calories, Protein: *req.Nutrition.Protein}
	}
	return entry
}

func (h *APIHandler) CreateLogHandler(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	var req CreateLogRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error(), "", nil)
		return
	}

	entry, err := h.accounts.CreateLog(r.Context(), user.ID, req.entry())
	if err != nil {
		if errors.Is(err, store.ErrInvalidLogDate) {
			respondError(w, r, http.StatusBadRequest, err.Error(), "", nil)
			return
		}
		respondError(w, r, http.StatusInternalServerError, "Failed to create log", "", err)
		return
	}
	respondSuccess(w, http.StatusCreated, "Log created", entry)
}

func (h *APIHandler) ListLogsHandler(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	logs, err := h.accounts.ListLogs(r.Context(), user.ID, 0)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "Failed to fetch logs", "", err)
		return
	}
	respondSuccess(w, http.StatusOK, "Logs fetched", logs)
}

type RecommendRequest struct {
	Profile    *store.Profile  `json:"profile"`
	RecentLogs json.RawMessage `json:"recentLogs"`
}

// RecommendHandler prefers the profile and logs sent with the request and
// falls back to the stored ones.
func (h *APIHandler) RecommendHandler(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	var req RecommendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error(), "", nil)
		return
	}

	profile := req.Profile
	if profile == nil {
		stored := user.Profile
		profile = &stored
	}

	var logs []store.LogEntry
	if err := json.Unmarshal(req.RecentLogs, &logs); err != nil || logs == nil {
		stored, err := h.accounts.ListLogs(r.Context(), user.ID, core.RecentLogLimit)
		if err != nil {
			respondError(w, r, http.StatusInternalServerError, "Failed to fetch logs", "", err)
			return
		}
		logs = stored
	}

	aiData, err := h.ai.Recommend(r.Context(), profile, logs)
	if err != nil {
		respondGatewayError(w, r, err)
		return
	}

	var recommendation any = aiData
	if nested, ok := aiData["recommendation"]; ok && nested != nil {
		recommendation = nested
	}
	respondSuccess(w, http.StatusOK, "Success", map[string]any{
		"profile":        profile,
		"recommendation": recommendation,
		"youtubeVideos":  videoCards(aiData["youtubeVideos"]),
	})
}

// videoCards keeps only the client-facing video fields.
func videoCards(raw any) []core.VideoCard {
	cards := []core.VideoCard{}
	items, _ := raw.([]any)
	for _, item := range items {
		v, ok := item.(map[string]any)
		if !ok {
			continue
		}
		card := core.VideoCard{}
		card.VideoID, _ = v["videoId"].(string)
		card.Title, _ = v["title"].(string)
		card.Thumbnail, _ = v["thumbnail"].(string)
		card.URL, _ = v["url"].(string)
		cards = append(cards, card)
	}
	return cards
}

type VideoRecommendRequest struct {
	Goal string `json:"goal"`
	Diet string `json:"diet"`
}

func (h *APIHandler) RecommendVideosHandler(w http.ResponseWriter, r *http.Request) {
	var req VideoRecommendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error(), "", nil)
		return
	}

	videos, err := h.ai.RecommendVideos(r.Context(), core.BuildVideoQuery(req.Goal, req.Diet))
	if err != nil {
		respondGatewayError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, "Success", map[string]any{"youtubeVideos": videos})
}

func respondGatewayError(w http.ResponseWriter, r *http.Request, err error) {
	var gwErr *gateway.Error
	if errors.As(err, &gwErr) {
		respondError(w, r, gwErr.StatusCode, gwErr.Message, "", err)
		return
	}
	respondError(w, r, http.StatusInternalServerError, "AI service request failed.", "", err)
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"service":   "backend",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
