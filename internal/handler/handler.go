package handler

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "github.com/jwalitptl/hospital-api/pkg/errors"
)

// ParseID reads a UUID path parameter.
func ParseID(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperrors.NewBadRequest(fmt.Sprintf("invalid %s", name), err)
	}
	return id, nil
}

// QueryID reads an optional UUID query parameter.
func QueryID(c *gin.Context, name string) (uuid.UUID, error) {
	raw := c.Query(name)
	if raw == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperrors.NewBadRequest(fmt.Sprintf("invalid %s", name), err)
	}
	return id, nil
}

// QueryTime reads an optional RFC3339 query parameter.
func QueryTime(c *gin.Context, name string) (time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, apperrors.NewBadRequest(fmt.Sprintf("invalid %s, expected RFC3339", name), err)
	}
	return t, nil
}
