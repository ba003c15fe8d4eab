package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"

	"trivia-engine/internal/app"
	"trivia-engine/internal/domain"
)

type WSHandler struct {
	service  *app.SessionService
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.SessionService, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHandler{
		service: service,
		logger:  logger,
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
	OptionID string `json:"optionId"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type syncPayload struct {
	SessionID  string `json:"sessionId"`
	FinalScore int    `json:"finalScore"`
	Warning    string `json:"warning,omitempty"`
}

// optionView hides correctness from players.
type optionView struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type questionView struct {
	ID        string       `json:"id"`
	Statement string       `json:"statement"`
	Score     int          `json:"score"`
	Options   []optionView `json:"options"`
}

type snapshotView struct {
	SessionID       string        `json:"sessionId,omitempty"`
	Status          domain.Status `json:"status"`
	Reason          domain.Reason `json:"reason,omitempty"`
	CurrentQuestion *questionView `json:"currentQuestion"`
	TimeRemaining   int           `json:"timeRemaining"`
	Score           int           `json:"score"`
	QuestionIndex   int           `json:"questionIndex"`
	TotalQuestions  int           `json:"totalQuestions"`
}

func newSnapshotView(s domain.Snapshot) snapshotView {
	view := snapshotView{
		SessionID:      s.SessionID,
		Status:         s.Status,
		Reason:         s.Reason,
		TimeRemaining:  s.TimeRemaining,
		Score:          s.Score,
		QuestionIndex:  s.QuestionIndex,
		TotalQuestions: s.TotalQuestions,
	}
	if q := s.CurrentQuestion; q != nil {
		options := make([]optionView, 0, len(q.Options))
		for _, o := range q.Options {
			options = append(options, optionView{ID: o.ID, Text: o.Text})
		}
		view.CurrentQuestion = &questionView{ID: q.ID, Statement: q.Statement, Score: q.BaseScore, Options: options}
	}
	return view
}

func errorMessage(err error) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
}

// ServeWS upgrades HTTP requests to websockets and runs one session per connection.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	categoryID := r.URL.Query().Get("categoryId")
	difficultyID, err := strconv.Atoi(r.URL.Query().Get("difficultyId"))
	if userID == "" || categoryID == "" || err != nil {
		http.Error(w, "missing userId, categoryId, or difficultyId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws: upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	engineID, started, err := h.service.Start(r.Context(), userID, categoryID, difficultyID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[any]{Type: "snapshot", Payload: newSnapshotView(started)})
		_ = conn.WriteJSON(errorMessage(err))
		return
	}
	defer h.service.Abandon(engineID)

	updates, cancel, err := h.service.Subscribe(engineID)
	if err != nil {
		_ = conn.WriteJSON(errorMessage(err))
		return
	}
	defer cancel()
	results, err := h.service.Sync(engineID)
	if err != nil {
		_ = conn.WriteJSON(errorMessage(err))
		return
	}

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("ws: write failed", "engine_id", engineID, "error", err)
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for updates != nil || results != nil {
			var msg outboundMessage[any]
			select {
			case update, ok := <-updates:
				if !ok {
					updates = nil
					continue
				}
				msg = outboundMessage[any]{Type: "snapshot", Payload: newSnapshotView(update)}
			case res, ok := <-results:
				if !ok {
					results = nil
					continue
				}
				msg = outboundMessage[any]{Type: "sync", Payload: syncPayload{
					SessionID:  res.SessionID,
					FinalScore: res.FinalScore,
					Warning:    res.Warning(),
				}}
			case <-closeSignals:
				return
			}
			select {
			case send <- msg:
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
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				reply(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}})
				continue
			}
			// the resulting snapshot reaches the client through the subscription
			if _, err := h.service.SubmitAnswer(r.Context(), engineID, payload.OptionID); err != nil {
				if !errors.Is(err, domain.ErrOptionNotFound) {
					h.logger.Warn("ws: submit failed", "engine_id", engineID, "error", err)
				}
				reply(errorMessage(err))
			}
		default:
			reply(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}})
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}
