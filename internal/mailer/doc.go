// Package mailer owns the outbound SMTP session.
//
// The protocol is strictly sequential and single-connection per Send call:
// connect, optional STARTTLS upgrade, authenticate, submit each message to
// each recipient individually, then a best-effort quit whose failure is
// swallowed. Faults are translated into one tagged Error (connect / login /
// send / timeout / other) so the caller can branch on kind.
package mailer
