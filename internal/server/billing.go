package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type checkoutRequest struct {
	Plan string `json:"plan"`
}

// CreateCheckout opens a hosted checkout for the caller. The session carries
// the account id so the completion webhook can link the customer.
func (s *Server) CreateCheckout(c *gin.Context) {
	account, ok := accountFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.Plan) == "" {
		AbortWithError(c, newValidationError("plan", "required", "plan is required"))
		return
	}

	session, err := s.checkoutSvc.CreateCheckout(c.Request.Context(), account.ID.String(), req.Plan)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": session})
}
