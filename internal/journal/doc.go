// Package journal records per-tick reconciliation outcomes for operator
// visibility.
//
// The journal is write-mostly observability data: reconciliation decisions
// never depend on it, so losing or disabling it affects nothing but
// diagnostics. Backends: append-only JSON Lines (default) or SQLite behind
// the "sqlite" build tag.
package journal
