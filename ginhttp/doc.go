// Package ginhttp adapts the sessionkit Engine to gin: ready-made login,
// refresh, logout, and logout-everywhere handlers plus a RequireAuth
// middleware.
//
// The refresh token travels exclusively in an HttpOnly cookie scoped to the
// auth route group; response bodies only ever carry the access token.
package ginhttp
