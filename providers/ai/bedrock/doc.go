// Package bedrock implements the ai.Provider and ai.StreamProvider
// interfaces on top of the AWS Bedrock Converse API, covering the
// Converse-compatible model families (Anthropic Claude, Amazon Nova, Meta
// Llama, and OpenAI-OSS) behind one request/response shape.
//
// Authentication follows the AWS SDK's default credential chain (env vars,
// shared config, EC2/ECS roles, or an assumed role via WithAssumeRole)
// rather than a bearer API key: WithAPIKey is a no-op kept only to satisfy
// ai.Provider.
package bedrock
