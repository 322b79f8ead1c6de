package server

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/datalake/internal/datalake/domain"
	"github.com/smallbiznis/datalake/pkg/textutil"
)

func parseIDParam(c *gin.Context, name string) (int64, error) {
	raw := strings.TrimSpace(c.Param(name))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, newValidationError(name, "invalid_"+name, "invalid "+name)
	}
	return id, nil
}

// parseDateQuery reads an optional dd/mm/yyyy query value.
func parseDateQuery(c *gin.Context, name string) (time.Time, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := textutil.ParseDate(raw)
	if err != nil {
		return time.Time{}, newValidationError(name, "invalid_"+name, "expected dd/mm/yyyy")
	}
	return t, nil
}

// parseDateRange reads the optional from/to bounds and rejects an inverted range.
func parseDateRange(c *gin.Context) (from, to time.Time, err error) {
	if from, err = parseDateQuery(c, "from"); err != nil {
		return
	}
	if to, err = parseDateQuery(c, "to"); err != nil {
		return
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		err = domain.ErrInvalidRange
	}
	return
}
