// Package llm provides an OpenRouter-style chat client for reasoning-backed
// workflow selection.
//
// The intelligent selector uses it to score a storyboard scene against a
// fixed five-point interpolation rubric; preflight uses it to verify the
// configured key and model before a run starts.
//
// # Configuration
//
// Requires api_key and model; base_url, referer, title, and timeout are
// optional. When unconfigured, callers fall back to rule-based selection.
//
// # Entry Points
//
// NewClient: construct a client from Config.
// Client.CompleteJSON: send system/user prompts, receive a JSON payload.
// Client.EvaluateRubric: score a scene description against the rubric.
// Client.HealthCheck: verify API key and model availability.
//
// # Retry Behaviour
//
// Requests retry on HTTP 408/429/5xx and network timeouts with exponential
// backoff (base 1s, max 10s, up to 5 attempts). Retry-After headers are
// honored when present. Context cancellation aborts retries immediately.
//
// # Fallback
//
// Any error that survives the retry budget is reported to the caller, which
// falls back to rule-based selection rather than failing the job; a scene is
// never lost because the reasoning collaborator was down.
package llm
