package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"trivia-service/internal/app"
	"trivia-service/internal/domain"
)

// GameHandler exposes the game state machine over REST for clients that poll instead of
// holding a websocket.
type GameHandler struct {
	games    *app.GameService
	accounts *app.AccountService
	log      logrus.FieldLogger
}

func NewGameHandler(games *app.GameService, accounts *app.AccountService, log logrus.FieldLogger) *GameHandler {
	return &GameHandler{games: games, accounts: accounts, log: log}
}

func (h *GameHandler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Post("/", h.Start)
	r.Get("/{gameID}", h.Get)
	r.Delete("/{gameID}", h.Leave)
	r.Post("/{gameID}/answer", h.Answer)
	r.Post("/{gameID}/skip", h.Skip)
	r.Post("/{gameID}/next", h.Next)
	r.Post("/{gameID}/restart", h.Restart)
	return r
}

type startGameRequest struct {
	Amount     flexString `json:"amount"`
	Category   flexString `json:"category"`
	Difficulty string     `json:"difficulty"`
	Type       string     `json:"type"`
	UserID     string     `json:"userId"`
}

func (h *GameHandler) Start(w http.ResponseWriter, r *http.Request) {
	var body startGameRequest
	if r.ContentLength != 0 {
		if err := decodeBody(r, &body); err != nil {
			writeMessage(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	cfg, err := domain.ParseGameConfig(string(body.Amount), string(body.Category), body.Difficulty, body.Type)
	if err != nil {
		writeError(w, r, h.log, err, http.StatusBadRequest)
		return
	}
	identity, err := h.accounts.Identity(r.Context(), body.UserID)
	if err != nil {
		writeError(w, r, h.log, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, h.games.Start(r.Context(), cfg, identity))
}

func (h *GameHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r)(h.games.Snapshot(r.Context(), chi.URLParam(r, "gameID")))
}

func (h *GameHandler) Answer(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Answer string `json:"answer"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.respond(w, r)(h.games.SubmitAnswer(r.Context(), chi.URLParam(r, "gameID"), body.Answer))
}

func (h *GameHandler) Skip(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r)(h.games.SubmitAnswer(r.Context(), chi.URLParam(r, "gameID"), ""))
}

func (h *GameHandler) Next(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r)(h.games.Advance(r.Context(), chi.URLParam(r, "gameID")))
}

func (h *GameHandler) Restart(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r)(h.games.Restart(r.Context(), chi.URLParam(r, "gameID")))
}

func (h *GameHandler) Leave(w http.ResponseWriter, r *http.Request) {
	h.games.Leave(r.Context(), chi.URLParam(r, "gameID"))
	w.WriteHeader(http.StatusNoContent)
}

func (h *GameHandler) respond(w http.ResponseWriter, r *http.Request) func(domain.SessionSnapshot, error) {
	return func(snap domain.SessionSnapshot, err error) {
		if err != nil {
			writeError(w, r, h.log, err, http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}
