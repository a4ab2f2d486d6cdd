// Package gateway holds the typed HTTP clients for the two external APIs the
// daemon reconciles against: the content source (posts) and the identity
// source (accounts).
//
// Both clients surface a two-kind error taxonomy (transport vs
// invalid_response). Callers treat either kind as "fetch failed, abort this
// tick"; the distinction exists for observability.
package gateway
