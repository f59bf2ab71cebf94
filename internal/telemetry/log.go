package telemetry

import (
	"go.uber.org/zap"

	"github.com/and161185/storefront-sync/internal/model"
)

// LogSink writes one structured line per finished run.
type LogSink struct{ Log *zap.Logger }

func (l LogSink) SyncFinished(ev Event) {
	fields := []zap.Field{
		zap.String("account", ev.AccountID),
		zap.String("outcome", string(ev.Outcome)),
		zap.Int("items", ev.ItemCount),
		zap.Int64("duration_ms", ev.DurationMs),
		zap.String("pricing", string(ev.PricingMethod)),
		zap.Int("unmatched", ev.Unmatched),
	}
	if ev.Outcome == model.StatusOnline {
		l.Log.Info("sync completed", fields...)
		return
	}
	l.Log.Warn("sync failed", append(fields, zap.String("reason", ev.Reason))...)
}
