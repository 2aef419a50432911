package httpapi

import (
	"errors"
	"net/http"

	"ledger-config/internal/entity"
	"ledger-config/internal/process"
	"ledger-config/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Envelope is the body shape of every response.
type Envelope struct {
	Success bool   `json:"success"`
	Msg     string `json:"msg"`
	Data    any    `json:"data,omitempty"`
	Errors  any    `json:"errors,omitempty"`
}

func OK(c *gin.Context, msg string, data any) {
	c.JSON(http.StatusOK, Envelope{Success: true, Msg: msg, Data: data})
}

func Fail(c *gin.Context, status int, msg string, errs any) {
	c.AbortWithStatusJSON(status, Envelope{Success: false, Msg: msg, Errors: errs})
}

// WriteError maps pipeline and store failures onto status codes.
func WriteError(c *gin.Context, err error) {
	var (
		verr *entity.ValidationError
		rerr *entity.ReferenceError
		cerr *entity.ConflictError
	)
	switch {
	case errors.Is(err, entity.ErrActorRequired):
		Fail(c, http.StatusUnauthorized, "authenticated actor required", nil)
	case errors.As(err, &verr):
		Fail(c, http.StatusBadRequest, "validation failed", verr.Fields)
	case errors.As(err, &rerr):
		Fail(c, http.StatusBadRequest, rerr.Error(), map[string]string{rerr.Field: "invalid reference " + rerr.ID})
	case errors.As(err, &cerr):
		details := gin.H{"key": cerr.Key.Map()}
		if cerr.ExistingID != "" {
			details["existingId"] = cerr.ExistingID
			details["existing"] = cerr.Existing
		}
		Fail(c, http.StatusConflict, cerr.Error(), details)
	case errors.Is(err, entity.ErrNotFound), errors.Is(err, process.ErrNotFound):
		Fail(c, http.StatusNotFound, "record not found", nil)
	default:
		logger.FromGin(c).Error("request failed", "err", err)
		_ = c.Error(err)
		Fail(c, http.StatusInternalServerError, "internal server error", nil)
	}
}
