package handlers

import (
	"errors"
	"net/http"

	"github.com/upb/bedrock-failover-router/services"
	"github.com/upb/bedrock-failover-router/utils"
	"go.uber.org/zap"
)

// ErrorStatus maps a service error to a status code, a public message and
// optional details. Only validation errors carry details to the caller.
func ErrorStatus(err error) (int, string, map[string]interface{}) {
	var domainErr *services.DomainError
	if !errors.As(err, &domainErr) {
		return http.StatusInternalServerError, "An unexpected error occurred", nil
	}

	switch domainErr.Type {
	case services.ErrorTypeValidation:
		details := domainErr.Details
		if len(details) == 0 {
			details = nil
		}
		return http.StatusBadRequest, domainErr.PublicMessage(), details
	case services.ErrorTypeExhausted:
		return http.StatusInternalServerError, domainErr.PublicMessage(), nil
	case services.ErrorTypeExternal:
		return http.StatusInternalServerError, domainErr.PublicMessage(), nil
	case services.ErrorTypeUnavailable:
		return http.StatusServiceUnavailable, domainErr.PublicMessage(), nil
	default:
		return http.StatusInternalServerError, "An internal error occurred", nil
	}
}

// logServiceError logs err at a level matching its type
func logServiceError(logger *zap.Logger, err error) {
	fields := []zap.Field{
		zap.Error(err),
		zap.String("error_type", string(services.GetErrorType(err))),
	}
	if details := services.GetErrorDetails(err); len(details) > 0 {
		fields = append(fields, zap.Any("details", details))
	}

	switch {
	case services.IsValidationError(err):
		logger.Debug("request rejected", fields...)
	case services.IsExhaustedError(err), services.IsUnavailableError(err):
		logger.Warn("request not served", fields...)
	default:
		logger.Error("request failed", fields...)
	}
}

// HandleServiceError maps domain errors to HTTP responses
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	logServiceError(logger, err)

	status, message, details := ErrorStatus(err)
	if werr := utils.WriteError(w, status, message, details); werr != nil {
		logger.Error("failed to write error response", zap.Error(werr))
	}
}
