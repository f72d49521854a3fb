package http

import (
	"net/http"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"trivia-service/internal/app"
	"trivia-service/internal/domain"
	"trivia-service/internal/logging"
)

// WSHandler plays one game per websocket connection. The game is abandoned when the
// connection closes.
type WSHandler struct {
	games    *app.GameService
	accounts *app.AccountService
	log      logrus.FieldLogger
	upgrader websocket.Upgrader
}

func NewWSHandler(games *app.GameService, accounts *app.AccountService, log logrus.FieldLogger) *WSHandler {
	return &WSHandler{
		games:    games,
		accounts: accounts,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	Answer string `json:"answer"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type messagePayload struct {
	Message string `json:"message"`
}

func stateMessage(snap domain.SessionSnapshot) outboundMessage[any] {
	return outboundMessage[any]{Type: "state", Payload: snap}
}

func errorMessage(message string) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: messagePayload{Message: message}}
}

// ServeWS upgrades the request, starts a game from the query parameters and streams its
// snapshots until either side hangs up.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context(), h.log)

	cfg, err := gameConfigFromQuery(r)
	if err != nil {
		writeError(w, r, h.log, err, http.StatusBadRequest)
		return
	}
	identity, err := h.accounts.Identity(r.Context(), r.URL.Query().Get("userId"))
	if err != nil {
		writeError(w, r, h.log, err, http.StatusInternalServerError)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("ws upgrade failed")
		return
	}
	defer conn.Close()

	started := h.games.Start(r.Context(), cfg, identity)
	gameID := started.GameID
	log = log.WithField("gameId", gameID)

	updates, cancel, err := h.games.Subscribe(r.Context(), gameID)
	if err != nil {
		_ = conn.WriteJSON(errorMessage(err.Error()))
		return
	}
	defer cancel()
	defer h.games.Leave(r.Context(), gameID)

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// Only the writer touches the connection for writes.
	go func() {
		defer close(writerDone)
		for msg := range send {
			body, err := json.Marshal(msg)
			if err != nil {
				log.WithError(err).Error("ws encode failed")
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
				log.WithError(err).Debug("ws write failed")
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case snap, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- stateMessage(snap):
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	reply := func(msg outboundMessage[any]) {
		select {
		case send <- msg:
		case <-writerDone:
		}
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var inbound inboundMessage
		if err := json.Unmarshal(data, &inbound); err != nil {
			reply(errorMessage("invalid message"))
			continue
		}

		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				reply(errorMessage("invalid answer payload"))
				continue
			}
			_, err = h.games.SubmitAnswer(r.Context(), gameID, payload.Answer)
		case "skip":
			_, err = h.games.SubmitAnswer(r.Context(), gameID, "")
		case "next":
			_, err = h.games.Advance(r.Context(), gameID)
		case "restart":
			_, err = h.games.Restart(r.Context(), gameID)
		default:
			reply(errorMessage("unsupported message type"))
			continue
		}
		if err != nil {
			reply(errorMessage(err.Error()))
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}
