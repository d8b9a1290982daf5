package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/skyarena/server/internal/engine"
	"github.com/skyarena/server/internal/relocation"
	"github.com/skyarena/server/internal/world"
)

// Error codes carried in every error body. Clients map them back to the
// sentinel errors below.
const (
	CodeBadRequest     = "bad_request"
	CodeValidation     = "validation"
	CodeInvalidAction  = "invalid_action"
	CodeNotFound       = "not_found"
	CodeNoDeparture    = "no_departure"
	CodeDuplicateID    = "duplicate_id"
	CodeAlreadyRunning = "already_running"
	CodeNotRunning     = "not_running"
	CodeEngineStopped  = "engine_stopped"
	CodeInFlight       = "in_flight"
	CodeInvalidLease   = "invalid_lease"
	CodeLeaseExpired   = "lease_expired"
	CodeInternal       = "internal"
)

// ErrorResponse is the JSON body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errorTable = []struct {
	err    error
	status int
	code   string
}{
	{world.ErrValidation, http.StatusBadRequest, CodeValidation},
	{world.ErrInvalidAction, http.StatusBadRequest, CodeInvalidAction},
	{world.ErrNotFound, http.StatusNotFound, CodeNotFound},
	{engine.ErrNoDeparture, http.StatusNotFound, CodeNoDeparture},
	{world.ErrDuplicateID, http.StatusConflict, CodeDuplicateID},
	{engine.ErrAlreadyRunning, http.StatusConflict, CodeAlreadyRunning},
	{engine.ErrNotRunning, http.StatusConflict, CodeNotRunning},
	{engine.ErrEngineStopped, http.StatusConflict, CodeEngineStopped},
	{engine.ErrCharacterInFlight, http.StatusConflict, CodeInFlight},
	{relocation.ErrLeaseExpired, http.StatusForbidden, CodeLeaseExpired},
	{relocation.ErrInvalidLease, http.StatusForbidden, CodeInvalidLease},
}

// Classify returns the HTTP status and code for an engine error.
func Classify(err error) (int, string) {
	for _, e := range errorTable {
		if errors.Is(err, e.err) {
			return e.status, e.code
		}
	}
	return http.StatusInternalServerError, CodeInternal
}

// SentinelFor is the inverse of Classify. It returns nil for unknown codes.
func SentinelFor(code string) error {
	for _, e := range errorTable {
		if e.code == code {
			return e.err
		}
	}
	return nil
}

func writeError(c *gin.Context, err error) {
	status, code := Classify(err)
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg, Code: CodeBadRequest})
}
