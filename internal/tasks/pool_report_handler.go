package tasks

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/makkenzo/prospect-enrichment-api/internal/handler/dto"
	"github.com/makkenzo/prospect-enrichment-api/internal/metrics"
	"go.uber.org/zap"
)

type PoolStatsProvider interface {
	PoolStats(ctx context.Context) (*dto.PoolStatsResponse, error)
}

type PoolReportHandler struct {
	stats   PoolStatsProvider
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewPoolReportHandler(stats PoolStatsProvider, m *metrics.Metrics, logger *zap.Logger) *PoolReportHandler {
	return &PoolReportHandler{
		stats:   stats,
		metrics: m,
		logger:  logger.Named("PoolReportHandler"),
	}
}

func (h *PoolReportHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	if t.Type() != TypeAPIKeyPoolReport {
		return fmt.Errorf("unexpected task type: %s: %w", t.Type(), asynq.SkipRetry)
	}

	stats, err := h.stats.PoolStats(ctx)
	if err != nil {
		h.logger.Error("Failed to collect key pool stats", zap.Error(err))
		return fmt.Errorf("collect pool stats: %w", err)
	}

	gauges := make(map[string]map[string]float64, len(stats.Categories))
	for _, c := range stats.Categories {
		states := map[string]float64{
			"eligible": float64(c.Eligible),
			"inactive": float64(c.Inactive),
		}
		for status, n := range c.ByStatus {
			states["status_"+status] = float64(n)
		}
		gauges[c.Category] = states

		fields := []zap.Field{
			zap.String("category", c.Category),
			zap.Int64("total", c.Total),
			zap.Int64("eligible", c.Eligible),
			zap.Int64("inactive", c.Inactive),
		}
		if c.Eligible == 0 {
			h.logger.Warn("No eligible keys left in category", fields...)
		} else {
			h.logger.Info("Key pool report", fields...)
		}
	}
	h.metrics.SetPoolKeys(gauges)
	return nil
}
