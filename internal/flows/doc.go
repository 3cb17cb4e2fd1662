// Package flows contains the request-lifecycle orchestration for login,
// refresh rotation, and logout, expressed without root package dependencies.
//
// Each flow takes a Deps struct of injected functions and interfaces and
// returns a result struct carrying a failure kind. The root Engine builds the
// Deps once at construction and maps failure kinds onto its public sentinel
// errors, so the security state machine here stays free of HTTP and
// presentation concerns.
package flows
