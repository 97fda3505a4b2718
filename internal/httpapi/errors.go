package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agentfleet/agentfleetd/internal/common/logger"
	"github.com/agentfleet/agentfleetd/internal/errs"
)

// respondError maps an *errs.Error's Kind to a status code and a
// {error:{code,message,details?}} body. Anything that is not an *errs.Error
// is logged with an errorId and reported as a generic INTERNAL_ERROR,
// matching the propagation policy: operational errors are caught here,
// everything else is recorded and hidden from the caller.
func respondError(c *gin.Context, log *logger.Logger, err error) {
	kind := errs.KindOf(err)

	status := http.StatusInternalServerError
	switch kind {
	case errs.Validation:
		status = http.StatusBadRequest
	case errs.NotFound:
		status = http.StatusNotFound
	case errs.Conflict:
		status = http.StatusConflict
	case errs.ProcessError, errs.StorageError:
		status = http.StatusInternalServerError
	}

	body := gin.H{"code": kind.Code(), "message": err.Error()}
	var typed *errs.Error
	if errors.As(err, &typed) && typed.Details != nil {
		body["details"] = typed.Details
	}
	if kind == errs.Unhandled {
		errorID := uuid.New().String()
		if log != nil {
			log.Error("unhandled request error", zap.String("errorId", errorID), zap.Error(err))
		}
		body = gin.H{"code": "INTERNAL_ERROR", "message": "internal error", "errorId": errorID}
	}

	c.JSON(status, gin.H{"error": body})
}
