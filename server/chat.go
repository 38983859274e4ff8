package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/becomeliminal/nim-recall/core"
	"github.com/becomeliminal/nim-recall/pipeline"
)

type chatRequest struct {
	ConversationID string         `json:"conversation_id"`
	Message        string         `json:"message"`
	History        []core.Message `json:"history"`
}

type chatResponse struct {
	TurnID         string   `json:"turn_id"`
	ConversationID string   `json:"conversation_id,omitempty"`
	Response       string   `json:"response"`
	Context        string   `json:"context"`
	QualityScore   float64  `json:"quality_score"`
	MemoryIDs      []string `json:"memory_ids"`
	Step           string   `json:"step"`
	Errors         []string `json:"errors,omitempty"`
}

func responseOf(t *pipeline.Turn) chatResponse {
	resp := chatResponse{
		TurnID:         t.ID,
		ConversationID: t.ConversationID,
		Response:       t.Response,
		Context:        t.Context,
		QualityScore:   t.QualityScore,
		MemoryIDs:      t.MemoryIDs,
		Step:           t.Step,
	}
	for _, err := range t.Errors {
		resp.Errors = append(resp.Errors, err.Error())
	}
	return resp
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	turn, err := s.pipeline.Run(r.Context(), &pipeline.Input{
		ConversationID: req.ConversationID,
		UserMessage:    req.Message,
		History:        req.History,
	})
	if errors.Is(err, pipeline.ErrEmptyMessage) {
		respondError(w, http.StatusBadRequest, "empty_message", err.Error())
		return
	}
	if err != nil {
		respondJSON(w, http.StatusInternalServerError, map[string]string{
			"error":    err.Error(),
			"code":     "pipeline_failed",
			"response": pipeline.FailureResponse,
		})
		return
	}
	respondJSON(w, http.StatusOK, responseOf(turn))
}

func (s *Server) handleSteps(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"steps": s.pipeline.Steps()})
}

// Client frames carry {"type":"message"}; server frames are chunk, done
// or error.
type wsInbound struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
	Text           string `json:"text"`
}

type wsOutbound struct {
	Type           string        `json:"type"`
	ConversationID string        `json:"conversation_id,omitempty"`
	Text           string        `json:"text,omitempty"`
	Code           string        `json:"code,omitempty"`
	Detail         string        `json:"detail,omitempty"`
	Turn           *chatResponse `json:"turn,omitempty"`
}

const (
	wsReadTimeout  = 120 * time.Second
	wsWriteTimeout = 10 * time.Second
)

func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	outbound := make(chan wsOutbound, 64)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-outbound:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteJSON(msg); err != nil {
					cancel()
					return
				}
				s.metrics.WSMessages.WithLabelValues("outbound", msg.Type).Inc()
			}
		}
	}()

	send := func(msg wsOutbound) {
		select {
		case <-ctx.Done():
		case outbound <- msg:
		}
	}

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	for ctx.Err() == nil {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		if msgType != websocket.TextMessage {
			continue
		}

		var in wsInbound
		if err := json.Unmarshal(data, &in); err != nil {
			send(wsOutbound{Type: "error", Code: "invalid_client_message", Detail: err.Error()})
			continue
		}
		s.metrics.WSMessages.WithLabelValues("inbound", in.Type).Inc()
		if in.Type != "message" {
			send(wsOutbound{Type: "error", Code: "unsupported_type", Detail: "unsupported message type " + in.Type})
			continue
		}

		turn, err := s.pipeline.Run(ctx, &pipeline.Input{
			ConversationID: in.ConversationID,
			UserMessage:    in.Text,
			StreamCallback: func(chunk string) {
				send(wsOutbound{Type: "chunk", ConversationID: in.ConversationID, Text: chunk})
			},
		})
		if err != nil {
			send(wsOutbound{Type: "error", ConversationID: in.ConversationID, Code: "turn_failed", Detail: err.Error()})
			continue
		}
		resp := responseOf(turn)
		send(wsOutbound{Type: "done", ConversationID: in.ConversationID, Text: turn.Response, Turn: &resp})
	}

	cancel()
	<-writerDone
}
