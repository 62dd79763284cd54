package apihandlers

import (
	"errors"
	"net/http"

	jwthandling "github.com/dsi-icl/acacia-sub002/pkg/jwt-handling"
	"github.com/dsi-icl/acacia-sub002/pkg/study"
	studyTypes "github.com/dsi-icl/acacia-sub002/pkg/study/types"
	"github.com/gin-gonic/gin"
)

// requesterFromContext builds the requester identity from the validated JWT
// claims stored by the auth middleware.
func requesterFromContext(c *gin.Context) studyTypes.Requester {
	token := c.MustGet("validatedToken").(*jwthandling.ManagementUserClaims)
	return studyTypes.Requester{
		ID:      token.ID,
		IsAdmin: token.IsAdmin,
	}
}

// statusForError maps the study service error taxonomy to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, study.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, study.ErrPermissionDenied):
		return http.StatusUnauthorized
	case errors.Is(err, study.ErrMalformedInput):
		return http.StatusBadRequest
	case errors.Is(err, study.ErrIntegrityConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	c.JSON(statusForError(err), gin.H{"error": err.Error()})
}
