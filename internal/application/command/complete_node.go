// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/alem-hub/stellar-map/internal/domain/completion"
	"github.com/alem-hub/stellar-map/internal/domain/hierarchy"
	"github.com/alem-hub/stellar-map/internal/domain/shared"
	"github.com/alem-hub/stellar-map/internal/infrastructure/observability"
	"github.com/alem-hub/stellar-map/pkg/logger"
	"github.com/alem-hub/stellar-map/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETE NODE COMMAND
// Records that a learner finished a node and grants its reward exactly once.
// Transient store failures before the record is written are retried; once
// the record exists the outcome is final.
// ══════════════════════════════════════════════════════════════════════════════

// CompleteNodeCommand contains the data to complete a node.
type CompleteNodeCommand struct {
	// LearnerID identifies the learner.
	LearnerID string

	// NodeID identifies the completed node.
	NodeID string

	// Reward is the experience granted on first completion. Zero means the
	// node's own xp_reward, else the handler's default reward.
	Reward int64

	// CorrelationID is attached to published events.
	CorrelationID string
}

// Validate validates the command.
func (c CompleteNodeCommand) Validate() error {
	if strings.TrimSpace(c.LearnerID) == "" {
		return shared.NewDomainError("command", "CompleteNode", shared.ErrEmptyValue, "learner_id is required")
	}
	if strings.TrimSpace(c.NodeID) == "" {
		return shared.NewDomainError("command", "CompleteNode", shared.ErrEmptyValue, "node_id is required")
	}
	if c.Reward < 0 {
		return shared.ErrInvalidReward
	}
	return nil
}

// CompleteNodeResult contains the outcome.
type CompleteNodeResult struct {
	LearnerID     string    `json:"learner_id"`
	NodeID        string    `json:"node_id"`
	Granted       bool      `json:"granted"`
	Reward        int64     `json:"reward"`
	RewardApplied bool      `json:"reward_applied"`
	NewTotal      int64     `json:"new_total"`
	CompletedAt   time.Time `json:"completed_at"`
}

// CompleteOptions controls how a reward is chosen when the command
// carries none.
type CompleteOptions struct {
	// Nodes supplies the stored xp_reward. Nil skips the lookup.
	Nodes hierarchy.NodeFinder

	// DefaultReward is used for nodes without their own reward. Zero means
	// hierarchy.DefaultReward.
	DefaultReward int64
}

// CompleteNodeHandler handles CompleteNodeCommand.
type CompleteNodeHandler struct {
	ledger    *completion.Ledger
	cache     completion.Cache
	publisher shared.EventPublisher
	retrier   *retry.Retrier
	opts      CompleteOptions
	log       *logger.Logger
}

// NewCompleteNodeHandler creates a new CompleteNodeHandler. cache and
// publisher may be nil.
func NewCompleteNodeHandler(
	ledger *completion.Ledger,
	cache completion.Cache,
	publisher shared.EventPublisher,
	retrier *retry.Retrier,
	log *logger.Logger,
	opts CompleteOptions,
) *CompleteNodeHandler {
	if retrier == nil {
		retrier = retry.StoreRetrier()
	}
	if log == nil {
		log = logger.Nop()
	}
	if opts.DefaultReward <= 0 {
		opts.DefaultReward = hierarchy.DefaultReward
	}
	return &CompleteNodeHandler{
		ledger:    ledger,
		cache:     cache,
		publisher: publisher,
		retrier:   retrier,
		opts:      opts,
		log:       log.With(logger.Component("complete_node")),
	}
}

// Handle executes the command.
//
// When the record was written but the reward could not be applied, the
// result is returned together with an error wrapping shared.ErrRewardFailed.
func (h *CompleteNodeHandler) Handle(ctx context.Context, cmd CompleteNodeCommand) (result *CompleteNodeResult, err error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	ctx, span := observability.StartSpan(ctx, "stellar.complete_node",
		attribute.String("learner_id", cmd.LearnerID),
		attribute.String("node_id", cmd.NodeID),
	)
	defer func() { observability.EndSpan(span, err) }()

	reward, err := h.reward(ctx, cmd)
	if err != nil {
		return nil, err
	}

	var res completion.Result
	err = h.retrier.Do(ctx, func(ctx context.Context) error {
		r, err := h.ledger.Complete(ctx, cmd.LearnerID, cmd.NodeID, reward)
		res = r
		switch {
		case err == nil:
			return nil
		case r.Granted:
			return retry.Permanent(err)
		case shared.IsExternalService(err):
			return retry.Retryable(err)
		default:
			return err
		}
	})
	if err != nil && !res.Granted {
		return nil, err
	}

	result = &CompleteNodeResult{
		LearnerID:     cmd.LearnerID,
		NodeID:        cmd.NodeID,
		Granted:       res.Granted,
		Reward:        res.Record.Reward,
		RewardApplied: res.RewardApplied,
		NewTotal:      res.NewTotal,
		CompletedAt:   res.Record.CompletedAt,
	}
	span.SetAttributes(attribute.Bool("granted", res.Granted))

	if res.Granted {
		h.markCompleted(ctx, cmd.LearnerID, cmd.NodeID)
	}
	h.publish(cmd, res, err)

	if err != nil {
		h.log.Error("reward not applied",
			logger.LearnerID(cmd.LearnerID),
			logger.NodeID(cmd.NodeID),
			logger.XPAmount(reward),
			logger.Err(err),
		)
		return result, err
	}

	if res.Granted {
		h.log.Info("node completed",
			logger.LearnerID(cmd.LearnerID),
			logger.NodeID(cmd.NodeID),
			logger.XPAmount(reward),
			logger.Int64("new_total", res.NewTotal),
		)
	}
	return result, nil
}

// reward resolves the amount granted on first completion: the explicit
// reward, else the node's stored xp_reward, else the default.
func (h *CompleteNodeHandler) reward(ctx context.Context, cmd CompleteNodeCommand) (int64, error) {
	if cmd.Reward > 0 {
		return cmd.Reward, nil
	}
	if h.opts.Nodes == nil {
		return h.opts.DefaultReward, nil
	}

	var node hierarchy.RawNode
	err := h.retrier.Do(ctx, func(ctx context.Context) error {
		n, err := h.opts.Nodes.FindNode(ctx, cmd.NodeID)
		node = n
		if shared.IsExternalService(err) {
			return retry.Retryable(err)
		}
		return err
	})
	switch {
	case err == nil:
		return node.Reward(h.opts.DefaultReward), nil
	case shared.IsNotFound(err):
		h.log.Debug("node not in catalog, using default reward",
			logger.NodeID(cmd.NodeID),
			logger.XPAmount(h.opts.DefaultReward),
		)
		return h.opts.DefaultReward, nil
	default:
		return 0, err
	}
}

func (h *CompleteNodeHandler) markCompleted(ctx context.Context, learnerID, nodeID string) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Add(ctx, learnerID, nodeID); err != nil {
		h.log.Warn("completion cache update failed", logger.LearnerID(learnerID), logger.Err(err))
	}
}

func (h *CompleteNodeHandler) publish(cmd CompleteNodeCommand, res completion.Result, rewardErr error) {
	if h.publisher == nil {
		return
	}

	var event shared.Event
	switch {
	case rewardErr != nil:
		e := shared.NewRewardFailedEvent(cmd.LearnerID, cmd.NodeID, res.Record.Reward, rewardErr.Error())
		e.BaseEvent = e.BaseEvent.WithCorrelationID(cmd.CorrelationID)
		event = e
	case res.Granted:
		e := shared.NewCompletionGrantedEvent(cmd.LearnerID, cmd.NodeID, res.Record.Reward, res.RewardApplied, res.NewTotal)
		e.BaseEvent = e.BaseEvent.WithCorrelationID(cmd.CorrelationID)
		event = e
	default:
		e := shared.NewCompletionRepeatEvent(cmd.LearnerID, cmd.NodeID)
		e.BaseEvent = e.BaseEvent.WithCorrelationID(cmd.CorrelationID)
		event = e
	}

	if err := h.publisher.Publish(event); err != nil {
		h.log.Warn("event publish failed",
			logger.String("event_type", string(event.EventType())),
			logger.Err(err),
		)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// BATCH
// ══════════════════════════════════════════════════════════════════════════════

// CompleteNodesCommand completes several nodes, for example when replaying
// an offline session.
type CompleteNodesCommand struct {
	Completions   []CompleteNodeCommand
	CorrelationID string
}

// CompleteNodesResult contains results for a batch.
type CompleteNodesResult struct {
	TotalCount   int                   `json:"total_count"`
	GrantedCount int                   `json:"granted_count"`
	RepeatCount  int                   `json:"repeat_count"`
	FailedCount  int                   `json:"failed_count"`
	Results      []*CompleteNodeResult `json:"results"`
	Errors       map[string]error      `json:"-"`
}

// CompleteNodesHandler handles CompleteNodesCommand.
type CompleteNodesHandler struct {
	handler *CompleteNodeHandler
}

// NewCompleteNodesHandler creates a new batch handler.
func NewCompleteNodesHandler(handler *CompleteNodeHandler) *CompleteNodesHandler {
	return &CompleteNodesHandler{handler: handler}
}

// Handle completes each entry in order. A failing entry does not stop the
// batch; its error is keyed by "index:node_id".
func (h *CompleteNodesHandler) Handle(ctx context.Context, cmd CompleteNodesCommand) (*CompleteNodesResult, error) {
	result := &CompleteNodesResult{
		TotalCount: len(cmd.Completions),
		Results:    make([]*CompleteNodeResult, 0, len(cmd.Completions)),
		Errors:     make(map[string]error),
	}

	for i, c := range cmd.Completions {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if c.CorrelationID == "" {
			c.CorrelationID = cmd.CorrelationID
		}

		res, err := h.handler.Handle(ctx, c)
		if res != nil {
			result.Results = append(result.Results, res)
		}
		if err != nil && !errors.Is(err, shared.ErrRewardFailed) {
			result.FailedCount++
			result.Errors[fmt.Sprintf("%d:%s", i, c.NodeID)] = err
			continue
		}
		if err != nil {
			result.Errors[fmt.Sprintf("%d:%s", i, c.NodeID)] = err
		}
		if res.Granted {
			result.GrantedCount++
		} else {
			result.RepeatCount++
		}
	}

	return result, nil
}
