// Command lambda serves the Bedrock failover router behind API Gateway.
package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/upb/bedrock-failover-router/app"
	"github.com/upb/bedrock-failover-router/config"
	"github.com/upb/bedrock-failover-router/handlers"
	"github.com/upb/bedrock-failover-router/internal/observability"
	"github.com/upb/bedrock-failover-router/internal/shared"
	"github.com/upb/bedrock-failover-router/services"
	"github.com/upb/bedrock-failover-router/utils"
	"go.uber.org/zap"
)

// processor is the transport-neutral invoke entry point
type processor interface {
	Process(ctx context.Context, body []byte) handlers.Response
}

type lambdaHandler struct {
	processor processor
	logger    *zap.Logger
}

// Handle adapts one API Gateway proxy event to the invoke flow. Panics
// become a 500 so the caller always receives the JSON error envelope.
func (h *lambdaHandler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (resp events.APIGatewayProxyResponse, err error) {
	ctx = shared.WithRequestID(ctx, requestID(ctx, req))
	logger := shared.RequestLogger(ctx, h.logger)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic while handling invocation", zap.Any("panic", r), zap.Stack("stack"))
			status, message, _ := handlers.ErrorStatus(services.ErrInternal)
			resp = response(status, utils.MarshalError(message, nil))
			err = nil
		}
	}()

	body := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, decErr := base64.StdEncoding.DecodeString(req.Body)
		if decErr != nil {
			logger.Debug("invalid base64 body", zap.Error(decErr))
			status, message, _ := handlers.ErrorStatus(services.ErrInvalidRequestBody)
			return response(status, utils.MarshalError(message, nil)), nil
		}
		body = decoded
	}

	out := h.processor.Process(ctx, body)
	logger.Info("invocation completed", zap.Int("status", out.StatusCode))
	return response(out.StatusCode, out.Body), nil
}

func requestID(ctx context.Context, req events.APIGatewayProxyRequest) string {
	if req.RequestContext.RequestID != "" {
		return req.RequestContext.RequestID
	}
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		return lc.AwsRequestID
	}
	return ""
}

func response(status int, body []byte) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}
}

func run(ctx context.Context) (*lambdaHandler, error) {
	cfg, err := config.New(ctx)
	if err != nil {
		return nil, err
	}

	logger, err := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		return nil, err
	}

	deps, err := app.NewDependencies(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize dependencies: %w", err)
	}

	return &lambdaHandler{processor: deps.InferenceHandler, logger: logger}, nil
}

func main() {
	h, err := run(context.Background())
	if err != nil {
		log.Fatalf("cold start failed: %v", err)
	}
	lambda.Start(h.Handle)
}
