package eventhandler

import (
	"sort"
	"sync"
	"time"

	"github.com/alem-hub/stellar-map/internal/domain/shared"
	"github.com/alem-hub/stellar-map/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON REWARD FAILED HANDLER
// A completion whose record was stored but whose reward could not be applied
// is never retried automatically. This handler keeps them for an operator
// and forgets each one when a RewardApplied event reports it paid.
// ═══════════════════════════════════════════════════════════════════════════

// PendingReward is a stored completion that is still owed its reward.
type PendingReward struct {
	LearnerID string    `json:"learner_id"`
	NodeID    string    `json:"node_id"`
	Reward    int64     `json:"reward"`
	Reason    string    `json:"reason"`
	SeenAt    time.Time `json:"seen_at"`
}

// OnRewardFailedHandler collects RewardFailed events and drops entries on
// RewardApplied.
type OnRewardFailedHandler struct {
	mu      sync.Mutex
	pending map[string]PendingReward
	log     *logger.Logger
	now     func() time.Time
}

// NewOnRewardFailedHandler creates the handler.
func NewOnRewardFailedHandler(log *logger.Logger) *OnRewardFailedHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &OnRewardFailedHandler{
		pending: make(map[string]PendingReward),
		log:     log.With(logger.Component("on_reward_failed")),
		now:     time.Now,
	}
}

// Handle implements shared.EventHandler.
func (h *OnRewardFailedHandler) Handle(event shared.Event) error {
	switch event.EventType() {
	case shared.EventRewardFailed:
	case shared.EventRewardApplied:
		nodeID := payloadString(event.Payload(), "node_id")
		if h.Resolve(event.AggregateID(), nodeID) {
			h.log.Info("owed reward resolved",
				logger.LearnerID(event.AggregateID()),
				logger.NodeID(nodeID),
				logger.Int("pending", h.count()),
			)
		}
		return nil
	default:
		return nil
	}
	payload := event.Payload()
	p := PendingReward{
		LearnerID: event.AggregateID(),
		NodeID:    payloadString(payload, "node_id"),
		Reward:    payloadInt(payload, "reward"),
		Reason:    payloadString(payload, "reason"),
		SeenAt:    h.now(),
	}

	h.mu.Lock()
	h.pending[p.LearnerID+":"+p.NodeID] = p
	count := len(h.pending)
	h.mu.Unlock()

	h.log.Warn("completion recorded without reward",
		logger.LearnerID(p.LearnerID),
		logger.NodeID(p.NodeID),
		logger.XPAmount(p.Reward),
		logger.String("reason", p.Reason),
		logger.Int("pending", count),
	)
	return nil
}

// Pending returns the owed rewards ordered by learner and node.
func (h *OnRewardFailedHandler) Pending() []PendingReward {
	h.mu.Lock()
	out := make([]PendingReward, 0, len(h.pending))
	for _, p := range h.pending {
		out = append(out, p)
	}
	h.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].LearnerID != out[j].LearnerID {
			return out[i].LearnerID < out[j].LearnerID
		}
		return out[i].NodeID < out[j].NodeID
	})
	return out
}

func (h *OnRewardFailedHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pending)
}

// Resolve forgets a pending reward once it has been applied by hand.
func (h *OnRewardFailedHandler) Resolve(learnerID, nodeID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := learnerID + ":" + nodeID
	_, ok := h.pending[key]
	delete(h.pending, key)
	return ok
}
