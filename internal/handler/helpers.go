package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/smartattend/integrity-api/internal/middleware"
	"github.com/smartattend/integrity-api/internal/models"
	appErrors "github.com/smartattend/integrity-api/pkg/errors"
)

// claimsFromContext returns the principal attached by the JWT middleware,
// or nil when the route ran unauthenticated.
func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// parseTimeParam reads an optional RFC3339 query parameter. A missing
// parameter yields (nil, nil).
func parseTimeParam(c *gin.Context, name string) (*time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid "+name+" parameter")
	}
	return &parsed, nil
}

// pageParams reads the shared page/pageSize query parameters. Unparsable
// values come back as zero; the service layer clamps them.
func pageParams(c *gin.Context) (page, size int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ = strconv.Atoi(c.DefaultQuery("pageSize", "20"))
	return page, size
}
