// Package proxy holds the operations the worker process performs on behalf of the
// controller: single request execution, project runs read from a store, and raw
// HTTP sends.
//
// Outbound calls share one Client with a per-host circuit breaker, an optional
// rate limit and an optional HTTP proxy. User requests are sent exactly once;
// only store API calls are retried.
package proxy
