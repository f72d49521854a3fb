package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"trivia-service/internal/domain"
	"trivia-service/internal/logging"
)

type errorPayload struct {
	Message string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorPayload{Message: message})
}

// writeError maps domain errors onto status codes. Anything unrecognized is answered with
// fallback, which is 500 for local failures and 502 for upstream ones.
func writeError(w http.ResponseWriter, r *http.Request, log logrus.FieldLogger, err error, fallback int) {
	status := statusFor(err, fallback)
	entry := logging.FromContext(r.Context(), log).WithError(err).WithField("status", status)
	if status >= http.StatusInternalServerError {
		entry.Error("request failed")
		writeMessage(w, status, publicMessage(status))
		return
	}
	entry.Debug("request rejected")
	writeMessage(w, status, err.Error())
}

func statusFor(err error, fallback int) int {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidGameConfig),
		errors.Is(err, domain.ErrInvalidCategory),
		errors.Is(err, domain.ErrInvalidUser),
		errors.Is(err, domain.ErrInvalidScore):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrUsernameTaken):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNoQuestions), errors.Is(err, domain.ErrMalformedQuestion):
		return http.StatusBadGateway
	}
	return fallback
}

func publicMessage(status int) string {
	if status == http.StatusBadGateway {
		return "trivia provider unavailable"
	}
	return "internal server error"
}

func decodeBody(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}

// flexString accepts either a JSON string or a number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n float64
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(strconv.FormatFloat(n, 'f', -1, 64))
	return nil
}
