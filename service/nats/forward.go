package nats

import (
	"context"
	"log/slog"

	"github.com/mqqz/whaleflow-sub000/service/metrics"
	"github.com/mqqz/whaleflow-sub000/service/record"
)

// Forward drains flushed records from ch into pub until ctx is canceled or
// ch closes. Publish failures are logged and skipped so one bad record never
// stalls the stream.
func Forward(ctx context.Context, pub Publisher, ch <-chan *record.Record, m *metrics.Metrics, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-ch:
			if !ok {
				return
			}
			if err := pub.PublishRecord(ctx, rec); err != nil {
				m.RecordNATSPublish(rec.Network, "error")
				logger.Error("failed to publish flow record",
					"id", rec.ID,
					"network", rec.Network,
					"error", err,
				)
				continue
			}
			m.RecordNATSPublish(rec.Network, "success")
		}
	}
}
