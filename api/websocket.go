package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tanpawarit/Chative-Support-Orchestrator/agent/agents/orchestrator"
)

type wsFrame struct {
	Type      string              `json:"type"`
	SessionID string              `json:"session_id,omitempty"`
	UserID    string              `json:"user_id,omitempty"`
	Message   string              `json:"message,omitempty"`
	Reply     *orchestrator.Reply `json:"reply,omitempty"`
	Error     string              `json:"error,omitempty"`
}

// serveWS runs one conversation per connection. The session id comes from the query string,
// or is minted and announced in a "session" frame.
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.cfg.AllowedOrigins})
	if err != nil {
		log.Warn().Err(err).Msg("websocket accept failed")
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "conversation ended"); closeErr != nil {
			log.Debug().Err(closeErr).Msg("websocket close")
		}
	}()

	ctx := r.Context()
	if sessionID == "" {
		sessionID = uuid.NewString()
		if err := wsjson.Write(ctx, ws, wsFrame{Type: "session", SessionID: sessionID}); err != nil {
			return
		}
	}

	for {
		var in wsFrame
		if err := wsjson.Read(ctx, ws, &in); err != nil {
			if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway &&
				!errors.Is(err, context.Canceled) {
				log.Debug().Err(err).Str("session_id", sessionID).Msg("websocket read ended")
			}
			return
		}

		reply, err := s.convs.Handle(ctx, orchestrator.Request{
			SessionID: sessionID,
			UserID:    firstNonEmpty(in.UserID, userID),
			Text:      in.Message,
		})
		out := wsFrame{Type: "reply", SessionID: sessionID, Reply: &reply}
		if err != nil && reply.Text == "" {
			msg := err.Error()
			if statusFor(err) == http.StatusServiceUnavailable {
				msg = "service temporarily unavailable"
			}
			out = wsFrame{Type: "error", SessionID: sessionID, Error: msg}
		}
		if err := wsjson.Write(ctx, ws, out); err != nil {
			log.Debug().Err(err).Str("session_id", sessionID).Msg("websocket write failed")
			return
		}
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
