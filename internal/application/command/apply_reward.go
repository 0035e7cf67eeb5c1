package command

import (
	"context"
	"strings"

	"github.com/alem-hub/stellar-map/internal/domain/completion"
	"github.com/alem-hub/stellar-map/internal/domain/shared"
	"github.com/alem-hub/stellar-map/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// APPLY REWARD COMMAND
// Applies the reward of a completion that was recorded without it. Runs once
// per call and is never retried, so one call can add experience at most once.
// ══════════════════════════════════════════════════════════════════════════════

// ApplyRewardCommand names a completion still owed its reward.
type ApplyRewardCommand struct {
	LearnerID     string
	NodeID        string
	CorrelationID string
}

// ApplyRewardResult contains the outcome.
type ApplyRewardResult struct {
	LearnerID string `json:"learner_id"`
	NodeID    string `json:"node_id"`
	Reward    int64  `json:"reward"`
	NewTotal  int64  `json:"new_total"`
}

// ApplyRewardHandler handles ApplyRewardCommand.
type ApplyRewardHandler struct {
	ledger    *completion.Ledger
	publisher shared.EventPublisher
	log       *logger.Logger
}

// NewApplyRewardHandler creates the handler. publisher may be nil.
func NewApplyRewardHandler(ledger *completion.Ledger, publisher shared.EventPublisher, log *logger.Logger) *ApplyRewardHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &ApplyRewardHandler{
		ledger:    ledger,
		publisher: publisher,
		log:       log.With(logger.Component("apply_reward")),
	}
}

// Handle applies the owed reward and publishes RewardApplied.
func (h *ApplyRewardHandler) Handle(ctx context.Context, cmd ApplyRewardCommand) (*ApplyRewardResult, error) {
	if strings.TrimSpace(cmd.LearnerID) == "" || strings.TrimSpace(cmd.NodeID) == "" {
		return nil, shared.NewDomainError("command", "ApplyReward", shared.ErrEmptyValue, "learner_id and node_id are required")
	}

	rec, total, err := h.ledger.ApplyOwedReward(ctx, cmd.LearnerID, cmd.NodeID)
	if err != nil {
		return nil, err
	}

	h.log.Info("owed reward applied",
		logger.LearnerID(rec.LearnerID),
		logger.NodeID(rec.NodeID),
		logger.XPAmount(rec.Reward),
		logger.Int64("new_total", total),
	)

	if h.publisher != nil {
		e := shared.NewRewardAppliedEvent(rec.LearnerID, rec.NodeID, rec.Reward, total)
		e.BaseEvent = e.BaseEvent.WithCorrelationID(cmd.CorrelationID)
		if err := h.publisher.Publish(e); err != nil {
			h.log.Warn("event publish failed", logger.String("event_type", string(e.EventType())), logger.Err(err))
		}
	}

	return &ApplyRewardResult{
		LearnerID: rec.LearnerID,
		NodeID:    rec.NodeID,
		Reward:    rec.Reward,
		NewTotal:  total,
	}, nil
}
