// Package lending implements book checkout and return.
//
// # Components
//
//   - Controller: the holder transitions. Checkout of one or many items is a
//     single conditional UPDATE whose predicate requires the holder to be
//     NULL, so two concurrent requests can never both hold the same item.
//     Return is a conditional UPDATE requiring the holder to be the caller.
//   - Worker: checks out one item as a queue task. Per-item failures become
//     not_processed results; only store failures escape as errors.
//   - Dispatcher: deduplicates and validates the requested ids, then either
//     runs one bulk update (fewer than DispatchThreshold valid ids) or submits
//     one task per candidate to a queue.Executor and awaits them under a
//     bounded timeout.
//   - Aggregate: folds per-item outcomes into the Partition response, which
//     accounts for every requested id exactly once.
//   - Service and Handler: resolve the user, then expose POST /checkout/:user_id
//     and POST /return/:book_id.
//
// # Errors
//
// ErrNotFound and ErrOwnershipMismatch are expected outcomes (404, 409).
// ErrInvariantViolation and ErrStoreUnavailable abort the request (500).
// *DispatchTimeoutError carries the partial partition and the pending ids (504).
package lending
