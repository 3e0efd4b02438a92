package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/cruisemall/affiliate/internal/apperrors"
	"github.com/cruisemall/affiliate/internal/logging"
	"github.com/cruisemall/affiliate/internal/middleware"
	"github.com/cruisemall/affiliate/internal/security"
)

// statusFor maps a service error to its HTTP status
func statusFor(err error) int {
	var (
		nf *apperrors.NotFoundError
		is *apperrors.InvalidStateError
		as *apperrors.AlreadySettledError
		ad *apperrors.AlreadyDecidedError
		az *apperrors.AuthorizationError
		ie *apperrors.InvalidEntryError
	)
	switch {
	case errors.As(err, &nf):
		return http.StatusNotFound
	case errors.As(err, &is), errors.As(err, &as), errors.As(err, &ad):
		return http.StatusConflict
	case errors.As(err, &az):
		return http.StatusForbidden
	case errors.As(err, &ie):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err with its mapped status. Unknown errors are logged
// and hidden from the client.
func respondError(c *gin.Context, logger logging.Logger, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.WithError(err).WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
		}).Error("request failed")
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// currentActor returns the authenticated actor or writes a 401
func currentActor(c *gin.Context) (security.Actor, bool) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return security.Actor{}, false
	}
	return actor, true
}

// uuidParam parses a path parameter as a UUID or writes a 400
func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

func entryIDParam(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

// bindOptionalJSON binds a request body that may be omitted. An empty body
// leaves req zero-valued; a malformed one writes a 400.
func bindOptionalJSON(c *gin.Context, req interface{}) bool {
	if c.Request.Body == nil || c.Request.Body == http.NoBody {
		return true
	}
	if err := c.ShouldBindJSON(req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}
