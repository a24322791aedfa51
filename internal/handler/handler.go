// Package handler holds the HTTP helpers shared by the resource handlers in
// its subpackages.
package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/shadowing-api/internal/middleware"
	"github.com/jwalitptl/shadowing-api/internal/model"
	"github.com/jwalitptl/shadowing-api/pkg/errors"
)

// Caller returns the authenticated identity or an UNAUTHORIZED error.
func Caller(c *gin.Context) (model.Identity, error) {
	identity, ok := middleware.GetIdentity(c)
	if !ok {
		return model.Identity{}, errors.Unauthorized("missing identity", nil)
	}
	return identity, nil
}

// UUIDParam parses the named path parameter.
func UUIDParam(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, errors.Validation("invalid "+name, err)
	}
	return id, nil
}
