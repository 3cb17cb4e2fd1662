// Package jwt implements the stateless token service: HS256 signing and
// verification of short-lived access tokens and long-lived refresh tokens.
//
// Verification returns a tagged tri-state [Result] instead of a bare error so
// callers can distinguish a garbled token from an expired one from a
// wrong-secret one. All three reject, but they are logged and remediated
// differently upstream.
//
// # What this package must NOT do
//
//   - Perform any I/O or store lookups.
//   - Hold mutable state: a Manager is a secret pair plus the wall clock.
package jwt
