package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"prediction-league-service/internal/app"
	"prediction-league-service/internal/domain"
)

// WSHandler answers leaderboard queries and entry submissions over a websocket. It
// only replies to requests; nothing is pushed unprompted.
type WSHandler struct {
	contests *app.ContestService
	leagues  *app.LeagueService
	upgrader websocket.Upgrader
}

func NewWSHandler(contests *app.ContestService, leagues *app.LeagueService) *WSHandler {
	return &WSHandler{
		contests: contests,
		leagues:  leagues,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId"`
	Payload   json.RawMessage `json:"payload"`
}

type contestPayload struct {
	ContestID string `json:"contestId"`
}

type leaguePayload struct {
	LeagueID string `json:"leagueId"`
}

type entryScorePayload struct {
	ContestID string `json:"contestId"`
	UserID    string `json:"userId"`
}

type submitPayload struct {
	ContestID string          `json:"contestId"`
	Answers   map[string]bool `json:"answers"`
}

type outboundMessage struct {
	Type      string      `json:"type"`
	RequestID string      `json:"requestId,omitempty"`
	Payload   interface{} `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the request. userId and name query parameters identify the caller
// for submissions; read-only commands work anonymously.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	actor := domain.User{ID: r.URL.Query().Get("userId"), DisplayName: r.URL.Query().Get("name")}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage, 16)
	writerDone := make(chan struct{})

	// Single writer; gorilla connections do not support concurrent writes.
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				slog.Warn("ws write error", "error", err)
				return
			}
		}
	}()

	send <- outboundMessage{Type: "ready", Payload: map[string]string{"userId": actor.ID}}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		reply := h.dispatch(r.Context(), actor, inbound)
		reply.RequestID = inbound.RequestID
		select {
		case send <- reply:
		case <-writerDone:
		}
	}

	close(send)
	<-writerDone
}

func (h *WSHandler) dispatch(ctx context.Context, actor domain.User, in inboundMessage) outboundMessage {
	switch in.Type {
	case "contestLeaderboard":
		var p contestPayload
		if err := json.Unmarshal(in.Payload, &p); err != nil || p.ContestID == "" {
			return errorMessage("contestId is required")
		}
		lb, err := h.contests.Leaderboard(ctx, p.ContestID)
		return result("contestLeaderboard", lb, err)
	case "leagueStandings":
		var p leaguePayload
		if err := json.Unmarshal(in.Payload, &p); err != nil || p.LeagueID == "" {
			return errorMessage("leagueId is required")
		}
		lb, err := h.leagues.Standings(ctx, actor, p.LeagueID)
		return result("leagueStandings", lb, err)
	case "entryScore":
		var p entryScorePayload
		if err := json.Unmarshal(in.Payload, &p); err != nil || p.ContestID == "" {
			return errorMessage("contestId is required")
		}
		if p.UserID == "" {
			p.UserID = actor.ID
		}
		score, err := h.contests.EntryScore(ctx, actor, p.ContestID, p.UserID)
		return result("entryScore", score, err)
	case "submitEntry":
		if actor.ID == "" {
			return errorMessage("userId is required to submit")
		}
		var p submitPayload
		if err := json.Unmarshal(in.Payload, &p); err != nil || p.ContestID == "" {
			return errorMessage("contestId is required")
		}
		entry, err := h.contests.SubmitEntry(ctx, actor, p.ContestID, p.Answers)
		return result("entry", entry, err)
	default:
		return errorMessage("unsupported message type")
	}
}

func result(typ string, payload interface{}, err error) outboundMessage {
	if err != nil {
		if statusFor(err) == http.StatusInternalServerError {
			slog.Error("ws command failed", "type", typ, "error", err)
			return errorMessage("internal error")
		}
		return errorMessage(err.Error())
	}
	return outboundMessage{Type: typ, Payload: payload}
}

func errorMessage(msg string) outboundMessage {
	return outboundMessage{Type: "error", Payload: errorPayload{Message: msg}}
}
