// Package bedrock adapts the Bedrock Runtime Converse API to providers.Client.
package bedrock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
	"github.com/upb/bedrock-failover-router/services/providers"
	"github.com/upb/bedrock-failover-router/utils"
	"go.uber.org/zap"
)

const providerName = "bedrock"

// Upstream error codes classified as throttling
const (
	CodeThrottling           = "ThrottlingException"
	CodeServiceQuotaExceeded = "ServiceQuotaExceededException"
)

// converseAPI is the slice of the SDK client the adapter uses
type converseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Config holds SDK settings shared by every region's client
type Config struct {
	// SDKMaxAttempts bounds the SDK's own retries. 1 leaves retrying to the router.
	SDKMaxAttempts int

	// EndpointURL overrides the service endpoint, e.g. for a local stub
	EndpointURL string
}

// Adapter is a providers.Client for one region
type Adapter struct {
	region string
	api    converseAPI
}

// NewAdapter wraps an SDK client bound to region
func NewAdapter(region string, api converseAPI) *Adapter {
	return &Adapter{region: region, api: api}
}

// NewClientFactory loads the default AWS configuration once and returns a
// factory that derives a per-region client from it.
func NewClientFactory(ctx context.Context, cfg Config, logger *zap.Logger) (providers.ClientFactory, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.SDKMaxAttempts > 0 {
		opts = append(opts, awsconfig.WithRetryMaxAttempts(cfg.SDKMaxAttempts))
	}

	base, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	return func(ctx context.Context, region string) (providers.Client, error) {
		if !utils.IsValidRegion(region) {
			return nil, &providers.ConnectionError{Region: region, Err: errors.New("invalid region identifier")}
		}

		regional := base.Copy()
		regional.Region = region

		client := bedrockruntime.NewFromConfig(regional, func(o *bedrockruntime.Options) {
			if cfg.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.EndpointURL)
			}
		})

		logger.Debug("bedrock runtime client configured",
			zap.String("region", region),
			zap.Int("sdk_max_attempts", cfg.SDKMaxAttempts))

		return NewAdapter(region, client), nil
	}, nil
}

// Region returns the region this adapter is bound to
func (a *Adapter) Region() string {
	return a.region
}

// Converse performs one Converse call
func (a *Adapter) Converse(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	startTime := time.Now()

	out, err := a.api.Converse(ctx, a.buildInput(req))
	if err != nil {
		return nil, a.classifyError(err)
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return nil, providers.NewProviderError(providerName, a.region, "UnexpectedOutput",
			fmt.Sprintf("unexpected converse output %T", out.Output), 0, false, nil)
	}

	resp := &providers.ChatResponse{
		Message:    convertMessage(msg.Value),
		StopReason: string(out.StopReason),
		Latency:    time.Since(startTime),
	}
	if out.Usage != nil {
		resp.Usage = providers.Usage{
			InputTokens:  int(aws.ToInt32(out.Usage.InputTokens)),
			OutputTokens: int(aws.ToInt32(out.Usage.OutputTokens)),
			TotalTokens:  int(aws.ToInt32(out.Usage.TotalTokens)),
		}
	}

	return resp, nil
}

// buildInput converts the request to the SDK shape
func (a *Adapter) buildInput(req *providers.ChatRequest) *bedrockruntime.ConverseInput {
	messages := make([]types.Message, len(req.Messages))
	for i, m := range req.Messages {
		blocks := make([]types.ContentBlock, len(m.Content))
		for j, c := range m.Content {
			blocks[j] = &types.ContentBlockMemberText{Value: c.Text}
		}
		messages[i] = types.Message{
			Role:    types.ConversationRole(m.Role),
			Content: blocks,
		}
	}

	return &bedrockruntime.ConverseInput{
		ModelId:  aws.String(req.ModelID),
		Messages: messages,
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(int32(req.MaxTokens)),
			Temperature: aws.Float32(float32(req.Temperature)),
		},
	}
}

// convertMessage keeps the text blocks of an SDK message
func convertMessage(m types.Message) providers.Message {
	out := providers.Message{Role: string(m.Role), Content: []providers.ContentBlock{}}
	for _, block := range m.Content {
		if text, ok := block.(*types.ContentBlockMemberText); ok {
			out.Content = append(out.Content, providers.ContentBlock{Text: text.Value})
		}
	}
	return out
}

// classifyError maps an SDK failure to a ProviderError
func (a *Adapter) classifyError(err error) error {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return providers.NewProviderError(providerName, a.region, "", err.Error(), 0, false, err)
	}

	status := 0
	var withStatus interface{ HTTPStatusCode() int }
	if errors.As(err, &withStatus) {
		status = withStatus.HTTPStatusCode()
	}

	code := apiErr.ErrorCode()
	return providers.NewProviderError(providerName, a.region, code, apiErr.ErrorMessage(), status, isThrottlingCode(code), err)
}

func isThrottlingCode(code string) bool {
	return code == CodeThrottling || code == CodeServiceQuotaExceeded
}
