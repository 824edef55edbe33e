package worker

import (
	"go.uber.org/zap"

	"github.com/spec-kit/repairdesk/internal/events"
)

// StartAuditWorker subscribes every audit sink to all lifecycle events. Nil
// sinks are skipped so optional outputs can be passed unconditionally.
func StartAuditWorker(dispatcher events.Dispatcher, logger *zap.Logger, sinks ...events.EventHandler) {
	if dispatcher == nil {
		return
	}
	registered := 0
	for _, sink := range sinks {
		if sink == nil {
			continue
		}
		events.SubscribeAll(dispatcher, sink)
		registered++
	}
	logger.Info("audit sinks registered", zap.Int("count", registered))
}
