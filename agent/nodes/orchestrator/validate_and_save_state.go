package orchestratornode

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Support-Orchestrator/agent/contract"
	statex "github.com/tanpawarit/Chative-Support-Orchestrator/agent/state"
)

// ValidateAndSaveState persists the session. An inconsistent session is repaired, never dropped.
func ValidateAndSaveState(
	ctx context.Context,
	in *GraphState,
	store statex.Store,
	historyLimit int,
) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: graph session is nil", contractx.ErrValidation)
	}

	in.Session.Touch(in.Now)
	if err := in.Session.Validate(historyLimit); err != nil {
		log.Error().Err(err).Str("session_id", in.SessionID).Msg("state validation failed, repairing before save")
		in.Session.Repair(historyLimit)
	}
	if err := store.Save(ctx, in.Session); err != nil {
		return nil, err
	}

	return in, nil
}
