package orchestratornode

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Support-Orchestrator/agent/contract"
	statex "github.com/tanpawarit/Chative-Support-Orchestrator/agent/state"
)

// LoadOrCreateState attaches the stored session, or a fresh one, and records the user message.
func LoadOrCreateState(
	ctx context.Context,
	in *GraphState,
	store statex.Store,
	historyLimit int,
) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	st, err := loadOrCreateState(ctx, store, in.SessionID, in.UserID, in.Now)
	if err != nil {
		return nil, err
	}
	if err := st.Validate(historyLimit); err != nil {
		log.Warn().Err(err).Str("session_id", in.SessionID).Msg("stored session invalid, repairing")
		st.Repair(historyLimit)
	}
	if st.UserID == "" && in.UserID != "" {
		st.UserID = in.UserID
	}
	if in.UserID == "" {
		in.UserID = st.UserID
	}

	st.AppendMessage(statex.Message{
		Content:   in.Text,
		Sender:    statex.SenderUser,
		Timestamp: in.Now,
	}, historyLimit)
	in.Session = st
	return in, nil
}

func loadOrCreateState(
	ctx context.Context,
	store statex.Store,
	sessionID string,
	userID string,
	now time.Time,
) (*statex.Session, error) {
	st, err := store.Load(ctx, sessionID)
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, statex.ErrStateNotFound) {
		return nil, err
	}

	return statex.NewSession(sessionID, userID, now), nil
}
