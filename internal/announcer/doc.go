// Package announcer implements the reconciliation cycle: poll the content
// source for pending posts, mail a notification per post to every admin, and
// flag announced posts so they are not announced twice.
//
// Delivery is at-least-once per post: once the mail session accepted a send
// attempt the post is flagged, and a failed flag update only means the post
// is re-announced on a later tick, never silently dropped.
package announcer
