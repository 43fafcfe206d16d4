package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/upb/bedrock-failover-router/internal/shared"
	"github.com/upb/bedrock-failover-router/services"
	"github.com/upb/bedrock-failover-router/services/inference"
	"github.com/upb/bedrock-failover-router/utils"
	"go.uber.org/zap"
)

// maxBodyBytes bounds an invoke request body
const maxBodyBytes = 1 << 20

// InferenceService defines the interface for inference operations
type InferenceService interface {
	Invoke(ctx context.Context, req *inference.InvokeRequest) (*inference.InvokeResponse, error)
}

// Response is a transport-neutral reply: a status code and a JSON body
type Response struct {
	StatusCode int
	Body       []byte
}

// InferenceHandler handles invoke requests for both HTTP and Lambda
type InferenceHandler struct {
	service InferenceService
	logger  *zap.Logger
}

// NewInferenceHandler creates a new InferenceHandler
func NewInferenceHandler(service InferenceService, logger *zap.Logger) *InferenceHandler {
	return &InferenceHandler{
		service: service,
		logger:  logger,
	}
}

// Process decodes body, invokes the service and renders the reply envelope.
// It never returns an error; every failure becomes a status and body.
func (h *InferenceHandler) Process(ctx context.Context, body []byte) Response {
	logger := shared.RequestLogger(ctx, h.logger)

	req, err := decodeInvokeRequest(body)
	if err != nil {
		logger.Debug("invalid request body", zap.Error(err))
		return errorResponse(logger, services.ErrInvalidRequestBody)
	}

	resp, err := h.service.Invoke(ctx, req)
	if err != nil {
		return errorResponse(logger, err)
	}

	data, err := json.Marshal(resp)
	if err != nil {
		return errorResponse(logger, services.WrapInternal("failed to encode response", err))
	}
	return Response{StatusCode: http.StatusOK, Body: data}
}

// HandleInvoke handles POST / and POST /api/v1/invoke
func (h *InferenceHandler) HandleInvoke(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			_ = utils.WriteError(w, http.StatusRequestEntityTooLarge, "Request body too large", nil)
			return
		}
		HandleServiceError(w, services.ErrInvalidRequestBody, h.logger)
		return
	}

	resp := h.Process(r.Context(), body)
	if err := utils.WriteRaw(w, resp.StatusCode, resp.Body); err != nil {
		h.logger.Error("failed to write invoke response", zap.Error(err))
	}
}

// decodeInvokeRequest parses body. An empty body is an empty request, which
// the service rejects as a missing prompt.
func decodeInvokeRequest(body []byte) (*inference.InvokeRequest, error) {
	req := &inference.InvokeRequest{}
	if len(bytes.TrimSpace(body)) == 0 {
		return req, nil
	}
	if err := json.Unmarshal(body, req); err != nil {
		return nil, err
	}
	return req, nil
}

func errorResponse(logger *zap.Logger, err error) Response {
	logServiceError(logger, err)
	status, message, details := ErrorStatus(err)
	return Response{StatusCode: status, Body: utils.MarshalError(message, details)}
}
