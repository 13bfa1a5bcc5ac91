// Package ledger keeps an in-memory, TTL-bounded record of batch
// operations so dashboards can poll an operation's outcome after the
// fact and the API can detect conflicting toggles while a batch is
// still processing.
package ledger
