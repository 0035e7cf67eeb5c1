// Package eventhandler contains reactions to Stellar Map domain events.
package eventhandler

import (
	"context"
	"time"

	"github.com/alem-hub/stellar-map/internal/domain/shared"
	"github.com/alem-hub/stellar-map/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON NODES IMPORTED HANDLER
// Refills the hierarchy cache after an import inserted nodes.
// ═══════════════════════════════════════════════════════════════════════════

// RunFunc runs one unit of background work.
type RunFunc func(ctx context.Context) error

// OnNodesImportedHandler warms the cache when an import inserted nodes.
type OnNodesImportedHandler struct {
	warm    RunFunc
	timeout time.Duration
	log     *logger.Logger
}

// NewOnNodesImportedHandler creates the handler. A zero timeout means no
// deadline beyond the warm function's own.
func NewOnNodesImportedHandler(warm RunFunc, timeout time.Duration, log *logger.Logger) *OnNodesImportedHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &OnNodesImportedHandler{
		warm:    warm,
		timeout: timeout,
		log:     log.With(logger.Component("on_nodes_imported")),
	}
}

// Handle implements shared.EventHandler.
func (h *OnNodesImportedHandler) Handle(event shared.Event) error {
	if event.EventType() != shared.EventNodesImported {
		return nil
	}
	inserted := payloadInt(event.Payload(), "inserted")
	if inserted == 0 {
		h.log.Debug("import inserted nothing, skipping warm-up", logger.String("source", event.AggregateID()))
		return nil
	}

	ctx := context.Background()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	start := time.Now()
	if err := h.warm(ctx); err != nil {
		h.log.Error("cache warm-up after import failed",
			logger.String("source", event.AggregateID()),
			logger.Err(err),
		)
		return err
	}
	h.log.Info("cache warmed after import",
		logger.String("source", event.AggregateID()),
		logger.Int64("inserted", inserted),
		logger.Latency(time.Since(start)),
	)
	return nil
}

// payloadInt reads a numeric payload value. Events relayed through Redis
// carry JSON numbers as float64.
func payloadInt(payload map[string]interface{}, key string) int64 {
	switch v := payload[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	default:
		return 0
	}
}

func payloadString(payload map[string]interface{}, key string) string {
	s, _ := payload[key].(string)
	return s
}
