package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/civicworks/fundflow-backend/internal/apperr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// RespondAppError maps the service error taxonomy onto HTTP statuses.
func RespondAppError(c *gin.Context, err error) {
	var (
		validationErr   *apperr.ValidationError
		invalidStateErr *apperr.InvalidStateError
		preconditionErr *apperr.PreconditionError
		ledgerMissing   *apperr.NotFoundOnLedgerError
		connectivityErr *apperr.ConnectivityError
		oracleErr       *apperr.OracleUnavailableError
	)
	switch {
	case errors.As(err, &validationErr):
		RespondError(c, http.StatusBadRequest, "validation_failed", err)
	case errors.Is(err, apperr.ErrNotFound):
		RespondError(c, http.StatusNotFound, "not_found", err)
	case errors.As(err, &ledgerMissing):
		RespondError(c, http.StatusNotFound, "not_found_on_ledger", err)
	case errors.As(err, &invalidStateErr):
		RespondError(c, http.StatusConflict, "invalid_state", err)
	case errors.As(err, &preconditionErr):
		RespondError(c, http.StatusConflict, "precondition_failed", err)
	case errors.As(err, &connectivityErr):
		RespondError(c, http.StatusBadGateway, "ledger_unreachable", err)
	case errors.As(err, &oracleErr):
		RespondError(c, http.StatusBadGateway, "oracle_unavailable", err)
	default:
		RespondError(c, http.StatusInternalServerError, "internal", err)
	}
}
