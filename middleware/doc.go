// Package middleware exposes net/http middleware built on top of the
// sessionkit Engine: bearer token authentication, admission rate limiting,
// and CSRF enforcement.
//
// # Guards
//
//   - [Guard] — verifies the Authorization bearer token and injects the
//     validated identity into the request context.
//   - [RateLimit] — fixed-window admission control with block state; counts
//     failures, clears on success.
//   - [CSRF] — double-submit enforcement for state-changing methods, token
//     minting on safe ones.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication logic itself; all decisions are delegated to the
// Engine and its limiters.
package middleware
