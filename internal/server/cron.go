package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/promptly/internal/observability/logger"
	"go.uber.org/zap"
)

// ResetDueCredits runs one bulk reset. Per-account failures are reported in
// the summary; the response is still 200 so the trigger is not retried
// wholesale.
func (s *Server) ResetDueCredits(c *gin.Context) {
	ctx := c.Request.Context()

	summary, err := s.scheduler.ResetDueCredits(ctx)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	failed := summary.FailedIDs()
	if len(failed) > 0 {
		logger.WithContext(ctx, s.log).Warn("credit reset finished with failures",
			zap.Int("selected", summary.Selected),
			zap.Int("failed", summary.Failed),
			zap.Error(summary.Err()),
		)
	}

	failedIDs := make([]string, 0, len(failed))
	for _, id := range failed {
		failedIDs = append(failedIDs, id.String())
	}

	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"cutoff":      summary.Cutoff,
			"selected":    summary.Selected,
			"succeeded":   summary.Succeeded,
			"skipped":     summary.Skipped,
			"failed":      summary.Failed,
			"failed_ids":  failedIDs,
			"started_at":  summary.StartedAt,
			"finished_at": summary.FinishedAt,
		},
	})
}
