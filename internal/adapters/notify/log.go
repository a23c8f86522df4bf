package notify

import (
	"context"
	"log/slog"

	"github.com/poyrazK/cloudFleet/internal/core/domain"
)

// LogNotifier writes dispatch reports to the structured log. It stands in for
// a chat or webhook sink when none is configured; delivery failures therefore
// cannot exist and the Notify contract stays fire-and-forget.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, channelID int64, report *domain.DispatchResult) {
	n.logger.InfoContext(ctx, "dispatch report",
		"channel_id", channelID,
		"job_id", report.JobID,
		"nodes_attempted", report.NodesAttempted,
		"nodes_succeeded", report.NodesSucceeded,
		"nodes_failed", report.NodesFailed,
		"total_capacity_units", report.TotalCapacityUnits,
	)
}
