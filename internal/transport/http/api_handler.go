package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"trivia-service/internal/app"
	"trivia-service/internal/domain"
)

// APIHandler serves the catalog, score, account and profile endpoints.
type APIHandler struct {
	catalog  *app.CatalogService
	accounts *app.AccountService
	profiles *app.ProfileService
	log      logrus.FieldLogger
}

func NewAPIHandler(catalog *app.CatalogService, accounts *app.AccountService, profiles *app.ProfileService, log logrus.FieldLogger) *APIHandler {
	return &APIHandler{catalog: catalog, accounts: accounts, profiles: profiles, log: log}
}

// Routes mounts under /api.
func (h *APIHandler) Routes(debug bool) http.Handler {
	r := chi.NewRouter()

	r.Get("/trivia", h.Trivia)
	r.Get("/categories", h.Categories)
	r.Get("/category-count", h.CategoryCount)
	r.Get("/category-counts", h.CategoryCounts)

	r.Get("/scores", h.UserScores)
	r.Post("/scores", h.SaveScore)
	r.Get("/recent-scores", h.RecentScores)
	r.Get("/leaderboard", h.Leaderboard)

	r.Get("/user", h.User)
	r.Post("/users/register", h.Register)
	r.Post("/users/login", h.Login)
	r.Patch("/users/{userID}", h.UpdateUser)
	r.Get("/profile/{userID}/stats", h.ProfileStats)

	if debug {
		r.Post("/debug/clear-scores", h.ClearScores)
	}
	return r
}

func (h *APIHandler) Trivia(w http.ResponseWriter, r *http.Request) {
	cfg, err := gameConfigFromQuery(r)
	if err != nil {
		writeError(w, r, h.log, err, http.StatusBadRequest)
		return
	}
	questions, err := h.catalog.Questions(r.Context(), cfg)
	if err != nil {
		writeError(w, r, h.log, err, http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, questions)
}

func (h *APIHandler) Categories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.catalog.Categories(r.Context())
	if err != nil {
		writeError(w, r, h.log, err, http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trivia_categories": categories})
}

func (h *APIHandler) CategoryCount(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("categoryId")
	if raw == "" {
		writeMessage(w, http.StatusBadRequest, "categoryId is required")
		return
	}
	id, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, r, h.log, domain.ErrInvalidCategory, http.StatusBadRequest)
		return
	}
	count, err := h.catalog.CategoryCount(r.Context(), id)
	if err != nil {
		writeError(w, r, h.log, err, http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, count)
}

func (h *APIHandler) CategoryCounts(w http.ResponseWriter, r *http.Request) {
	categories, err := h.catalog.CategoryCounts(r.Context())
	if err != nil {
		writeError(w, r, h.log, err, http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": categories})
}

func (h *APIHandler) UserScores(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeMessage(w, http.StatusBadRequest, "userId is required")
		return
	}
	scores, err := h.profiles.UserScores(r.Context(), userID)
	if err != nil {
		writeError(w, r, h.log, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"scores": scores})
}

type saveScoreRequest struct {
	UserID         string `json:"user_id"`
	Category       string `json:"category"`
	Difficulty     string `json:"difficulty"`
	Score          int    `json:"score"`
	TotalQuestions int    `json:"total_questions"`
	TimeTaken      int    `json:"time_taken"`
}

func (h *APIHandler) SaveScore(w http.ResponseWriter, r *http.Request) {
	var body saveScoreRequest
	if err := decodeBody(r, &body); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	saved, err := h.profiles.SaveScore(r.Context(), domain.ScoreRecord{
		UserID:         body.UserID,
		Category:       body.Category,
		Difficulty:     body.Difficulty,
		Score:          body.Score,
		TotalQuestions: body.TotalQuestions,
		TimeTaken:      body.TimeTaken,
	})
	if err != nil {
		writeError(w, r, h.log, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"score": saved})
}

func (h *APIHandler) RecentScores(w http.ResponseWriter, r *http.Request) {
	scores, err := h.profiles.RecentScores(r.Context(), queryInt(r, "limit", app.DefaultRecentLimit))
	if err != nil {
		writeError(w, r, h.log, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"scores": scores})
}

func (h *APIHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := h.profiles.Leaderboard(r.Context(), queryInt(r, "limit", app.DefaultLeaderboardLimit))
	if err != nil {
		writeError(w, r, h.log, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"leaderboard": entries})
}

func (h *APIHandler) User(w http.ResponseWriter, r *http.Request) {
	user, err := h.accounts.User(r.Context(), r.URL.Query().Get("id"))
	if err != nil {
		writeError(w, r, h.log, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

type credentialsRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

func (h *APIHandler) Register(w http.ResponseWriter, r *http.Request) {
	var body credentialsRequest
	if err := decodeBody(r, &body); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	user, err := h.accounts.Register(r.Context(), body.Username, body.Password, body.DisplayName)
	if err != nil {
		writeError(w, r, h.log, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": user})
}

func (h *APIHandler) Login(w http.ResponseWriter, r *http.Request) {
	var body credentialsRequest
	if err := decodeBody(r, &body); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	user, err := h.accounts.Login(r.Context(), body.Username, body.Password)
	if err != nil {
		writeError(w, r, h.log, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (h *APIHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DisplayName string `json:"display_name"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	user, err := h.accounts.UpdateDisplayName(r.Context(), chi.URLParam(r, "userID"), body.DisplayName)
	if err != nil {
		writeError(w, r, h.log, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (h *APIHandler) ProfileStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.profiles.Stats(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, r, h.log, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *APIHandler) ClearScores(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.profiles.ClearScores(r.Context())
	if err != nil {
		writeError(w, r, h.log, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

func gameConfigFromQuery(r *http.Request) (domain.GameConfig, error) {
	q := r.URL.Query()
	return domain.ParseGameConfig(q.Get("amount"), q.Get("category"), q.Get("difficulty"), q.Get("type"))
}

func queryInt(r *http.Request, name string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get(name)))
	if err != nil {
		return fallback
	}
	return n
}
