package bedrock

import (
	"context"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/aigohq/aigo/providers/ai"
	"github.com/aigohq/aigo/providers/ai/aierr"
)

const defaultModel = "anthropic.claude-3-5-sonnet-20241022-v2:0"

// RuntimeClient is the subset of *bedrockruntime.Client the provider needs.
// ConverseStream returns the narrower StreamOutput interface rather than the
// SDK's concrete *bedrockruntime.ConverseStreamOutput so tests can substitute
// a fake event reader without constructing real smithy eventstream plumbing.
type RuntimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
	ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (StreamOutput, error)
}

// StreamOutput abstracts the event reader returned by ConverseStream.
// *bedrockruntime.ConverseStreamEventStream already satisfies StreamReader
// directly, so sdkStreamOutput.GetStream returns it unchanged.
type StreamOutput interface {
	GetStream() StreamReader
}

// StreamReader is the subset of *bedrockruntime.ConverseStreamEventStream
// consumed while draining a Converse stream.
type StreamReader interface {
	Events() <-chan brtypes.ConverseStreamOutput
	Close() error
	Err() error
}

// sdkRuntime adapts a real *bedrockruntime.Client to RuntimeClient.
type sdkRuntime struct {
	client *bedrockruntime.Client
}

func (s sdkRuntime) Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	return s.client.Converse(ctx, params, optFns...)
}

func (s sdkRuntime) ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (StreamOutput, error) {
	out, err := s.client.ConverseStream(ctx, params, optFns...)
	if err != nil {
		return nil, err
	}
	return sdkStreamOutput{out}, nil
}

type sdkStreamOutput struct {
	out *bedrockruntime.ConverseStreamOutput
}

func (s sdkStreamOutput) GetStream() StreamReader { return s.out.GetStream() }

// BedrockProvider implements ai.Provider and ai.StreamProvider over the
// Converse/ConverseStream APIs.
type BedrockProvider struct {
	runtime      RuntimeClient
	defaultModel string
	initErr      error
}

// New resolves AWS credentials from the default chain (environment, shared
// config, instance role) using the region named by AWS_REGION/
// AWS_DEFAULT_REGION, and returns a provider backed by the real Bedrock
// runtime client. Credential resolution failures are deferred to the first
// SendMessage/StreamMessage call, surfaced as aierr.AuthMissingCredentials,
// matching the rest of the provider family's "New never returns an error"
// construction style.
func New() *BedrockProvider {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		return &BedrockProvider{defaultModel: defaultModel, initErr: aierr.AuthMissingCredentials(err)}
	}
	return &BedrockProvider{
		runtime:      sdkRuntime{client: bedrockruntime.NewFromConfig(cfg)},
		defaultModel: defaultModel,
	}
}

// WithAssumeRole reconfigures the provider to assume roleARN via STS before
// issuing Bedrock calls, the credential path SPEC_FULL.md's
// auth.assume_role_failed error code exists for.
func (p *BedrockProvider) WithAssumeRole(roleARN string) *BedrockProvider {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		p.initErr = aierr.AuthAssumeRoleFailed(err)
		return p
	}
	stsClient := sts.NewFromConfig(cfg)
	provider := stscreds.NewAssumeRoleProvider(stsClient, roleARN)
	cfg.Credentials = aws.NewCredentialsCache(provider)
	p.runtime = sdkRuntime{client: bedrockruntime.NewFromConfig(cfg)}
	p.initErr = nil
	return p
}

// WithRuntimeClient injects a RuntimeClient directly, bypassing credential
// resolution entirely. Used by tests and by callers that already hold a
// configured *bedrockruntime.Client.
func (p *BedrockProvider) WithRuntimeClient(runtime RuntimeClient) *BedrockProvider {
	p.runtime = runtime
	p.initErr = nil
	return p
}

// WithDefaultModel overrides the model ID used when a request does not name
// one explicitly.
func (p *BedrockProvider) WithDefaultModel(model string) *BedrockProvider {
	p.defaultModel = model
	return p
}

// WithAPIKey is a no-op: Bedrock authenticates via the AWS credential
// chain (see New, WithAssumeRole), never a bearer API key. Present only to
// satisfy ai.Provider.
func (p *BedrockProvider) WithAPIKey(string) ai.Provider { return p }

// WithBaseURL is a no-op: the AWS SDK resolves the Bedrock runtime endpoint
// from the configured region. Present only to satisfy ai.Provider.
func (p *BedrockProvider) WithBaseURL(string) ai.Provider { return p }

// WithHttpClient is a no-op: the AWS SDK manages its own transport. Present
// only to satisfy ai.Provider.
func (p *BedrockProvider) WithHttpClient(*http.Client) ai.Provider { return p }

// IsStopMessage reports whether response represents a natural end of turn
// rather than a tool-call request awaiting a follow-up.
func (p *BedrockProvider) IsStopMessage(response *ai.ChatResponse) bool {
	return response != nil && len(response.ToolCalls) == 0
}
