package logging

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// GenerationMetrics summarizes one metered generation request for the log.
type GenerationMetrics struct {
	Kind      string // "batch", "text" or "edit"
	Model     string
	Items     int
	Completed int
	Cost      int64
	Refunded  bool
	Outcome   string // "success" or the error kind
	Duration  time.Duration
}

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (m GenerationMetrics) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("kind", m.Kind)
	if m.Model != "" {
		enc.AddString("model", m.Model)
	}
	enc.AddInt("items", m.Items)
	enc.AddInt("completed", m.Completed)
	enc.AddInt64("cost", m.Cost)
	enc.AddBool("refunded", m.Refunded)
	enc.AddString("outcome", m.Outcome)
	enc.AddInt64("duration_ms", m.Duration.Milliseconds())
	return nil
}

// GenerationFields wraps metrics as a nested "generation" object.
//
//	logger.Info("batch finished", logging.GenerationFields(m))
func GenerationFields(m GenerationMetrics) zap.Field {
	return zap.Object("generation", m)
}

// UserField tags an entry with the caller's identity.
func UserField(userID string) zap.Field {
	return zap.String("user_id", userID)
}

// LedgerFields describes a balance movement.
func LedgerFields(delta, balance int64, reason string) []zap.Field {
	return []zap.Field{
		zap.Int64("delta", delta),
		zap.Int64("balance", balance),
		zap.String("reason", reason),
	}
}

// TimingFields records start, end and the elapsed duration between them.
func TimingFields(startTime, endTime time.Time) []zap.Field {
	return []zap.Field{
		zap.Time("start_time", startTime),
		zap.Time("end_time", endTime),
		zap.Duration("duration", endTime.Sub(startTime)),
	}
}
