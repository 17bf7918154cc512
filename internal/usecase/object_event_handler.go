package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"CoinPull/internal/domain/models"
	applogger "CoinPull/pkg/logger"
	"CoinPull/pkg/util"
)

// ObjectRunner processes named Bronze objects.
type ObjectRunner interface {
	RunObjects(ctx context.Context, keys []string) (RunReport, error)
}

// ObjectEventHandler runs Silver and Gold for each object-finalized event.
type ObjectEventHandler struct {
	topic  string
	runner ObjectRunner
	l      *applogger.Logger
}

func NewObjectEventHandler(topic string, runner ObjectRunner, l *applogger.Logger) *ObjectEventHandler {
	if l == nil {
		l = applogger.Nop()
	}
	return &ObjectEventHandler{topic: topic, runner: runner, l: l}
}

func (h *ObjectEventHandler) Topic() string { return h.topic }

// Handle returns a permanent error for undecodable events and data errors so
// the consumer dead-letters them without retrying.
func (h *ObjectEventHandler) Handle(ctx context.Context, data []byte) error {
	var ev models.ObjectEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return util.Permanent(fmt.Errorf("decode object event: %w", err))
	}
	if ev.Name == "" {
		return util.Permanent(errors.New("object event without name"))
	}
	if !ev.IsSnapshot() {
		h.l.Debug("ignoring non-snapshot object", applogger.String("object", ev.Name))
		return nil
	}
	rep, err := h.runner.RunObjects(ctx, []string{ev.Name})
	if err != nil {
		if !models.IsRetryable(err) {
			return util.Permanent(err)
		}
		return err
	}
	if len(rep.Silver.Skipped) > 0 {
		h.l.Warn("object skipped", applogger.String("object", ev.Name), applogger.String("run_id", rep.RunID))
	}
	return nil
}
