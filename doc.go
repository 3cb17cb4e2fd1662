// Package sessionkit is a session and request security engine for web
// applications: short-lived JWT access tokens, rotating single-use refresh
// tokens with reuse detection, login/refresh rate limiting, and stateless
// CSRF tokens, behind one Engine facade.
//
// The Engine is built once through the Builder, holds no per-request state,
// and is safe for concurrent use. Persistence is pluggable through the
// refresh token store interface; Redis, Postgres, and Bolt implementations
// ship in their own packages.
package sessionkit
