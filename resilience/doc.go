// Package resilience retries idempotent backend requests with exponential
// backoff.
//
// Backends run as sidecars that may still be starting when the first load
// is requested. Requests that only read state, such as listing models or
// fetching a tokenizer, are wrapped in Retry:
//
//	tags, err := resilience.Retry(ctx, resilience.DefaultPolicy(), func() (*Tags, error) {
//	    return client.tags(ctx)
//	})
//
// Streaming requests are never retried; a partially consumed stream cannot
// be replayed.
package resilience
