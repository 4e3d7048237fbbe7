package emit

import (
	"context"

	"go.uber.org/zap"
)

// ZapEmitter writes events through a *zap.Logger, one structured log entry
// per event, at Info level (Error if Meta["error"] is set).
type ZapEmitter struct {
	logger *zap.Logger
}

// NewZapEmitter returns an Emitter backed by logger.
func NewZapEmitter(logger *zap.Logger) *ZapEmitter {
	return &ZapEmitter{logger: logger}
}

func (z *ZapEmitter) Emit(event Event) {
	fields := []zap.Field{
		zap.String("run_id", event.RunID),
		zap.Int("step", event.Step),
	}
	if event.NodeID != "" {
		fields = append(fields, zap.String("node_id", event.NodeID))
	}
	if event.Channel != "" {
		fields = append(fields, zap.String("channel", event.Channel))
	}
	if len(event.Meta) > 0 {
		fields = append(fields, zap.Any("meta", event.Meta))
	}

	if errVal, ok := event.Meta["error"]; ok {
		fields = append(fields, zap.Any("error_detail", errVal))
		z.logger.Error(event.Msg, fields...)
		return
	}
	z.logger.Info(event.Msg, fields...)
}

func (z *ZapEmitter) EmitBatch(_ context.Context, events []Event) error {
	for _, e := range events {
		z.Emit(e)
	}
	return nil
}

// Flush drains the underlying zap core's buffer.
func (z *ZapEmitter) Flush(_ context.Context) error {
	return z.logger.Sync()
}
