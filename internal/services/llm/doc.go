// Package llm is a small client for OpenAI-compatible chat-completion
// endpoints (OpenRouter by default) used in JSON response mode.
//
// Requests that fail with HTTP 408, 429 or 5xx, network timeouts, or an
// empty answer are retried with exponential backoff (1s base, 10s cap,
// three attempts by default). Retry-After is honored up to the cap.
// Context cancellation stops retries immediately.
//
// DecodeJSON tolerates the usual formatting noise around model output:
// code fences and prose before or after the JSON document.
package llm
