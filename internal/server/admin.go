package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	accountdomain "github.com/smallbiznis/promptly/internal/account/domain"
	"github.com/smallbiznis/promptly/internal/observability/logger"
	"go.uber.org/zap"
)

func parseAccountID(c *gin.Context) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil || id <= 0 {
		return 0, accountdomain.ErrInvalidID
	}
	return id, nil
}

func (s *Server) AdminResetAccount(c *gin.Context) {
	id, err := parseAccountID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	balance, err := s.creditSvc.ResetOne(ctx, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	logger.WithContext(ctx, s.log).Info("account credits reset by admin",
		zap.String("target_account_id", id.String()),
		zap.Int64("credits", balance.Credits),
	)
	c.JSON(http.StatusOK, gin.H{"data": balance})
}

func (s *Server) AdminAccountBalance(c *gin.Context) {
	id, err := parseAccountID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	balance, err := s.creditSvc.GetBalance(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": balance})
}
