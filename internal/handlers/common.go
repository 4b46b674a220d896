package handlers

import (
	"errors"
	"net/http"
	"time"

	"teamchat/internal/models"
	"teamchat/internal/services"
	"teamchat/internal/utils"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// respondServiceError maps the service error taxonomy onto HTTP
// statuses. Unknown errors become 500 without leaking internals.
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		utils.NotFoundResponse(c, "Resource not found")
	case errors.Is(err, services.ErrPermissionDenied):
		// The service names the blocked action; surfacing it tells the
		// caller which capability they lack.
		utils.ForbiddenResponse(c, err.Error())
	case errors.Is(err, services.ErrValidation):
		utils.ErrorResponse(c, http.StatusBadRequest, err.Error())
	default:
		utils.InternalErrorResponse(c, "Something went wrong")
	}
}

// currentUser rebuilds the caller's identity snapshot from the claims
// the auth middleware stored on the context.
func currentUser(c *gin.Context) (models.UserSnapshot, bool) {
	userID, err := primitive.ObjectIDFromHex(c.GetString("user_id"))
	if err != nil {
		utils.UnauthorizedResponse(c, "Invalid user identity")
		return models.UserSnapshot{}, false
	}
	return models.UserSnapshot{
		UserID: userID,
		Name:   c.GetString("user_name"),
		Email:  c.GetString("user_email"),
	}, true
}

// parseTimestamp parses an RFC 3339 timestamp from a request body.
func parseTimestamp(value string) (time.Time, error) {
	return time.Parse(time.RFC3339, value)
}

// pathObjectID parses an ObjectID path parameter.
func pathObjectID(c *gin.Context, name string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param(name))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid "+name)
		return primitive.NilObjectID, false
	}
	return id, true
}
