// Package store provides the durable state substrate for tiplink.
//
// A Store exposes four kinds of state to the contract, all keyed by a
// namespace string:
//   - Scalars: single values (roles, minimum stake, dispatch cursor)
//   - Maps: keyed values (registry directions, tip accumulators)
//   - Sets: unsigned integer members (pending and approved request ids)
//   - Logs: append-only, 0-indexed entries (requests, transfer outbox)
//
// # Atomic Steps
//
// Every contract operation runs inside Update. The callback sees its own
// writes immediately; other callers see all of them or none. A callback that
// returns an error leaves the store unchanged. View runs a read-only step.
//
// # Backends
//
//   - SQLite (Open): the default durable backend, WAL mode, one connection
//   - Memory (NewMemory): copy-on-write state for tests and dry runs
//   - Redis (NewRedis): hashes, sets and lists committed with MULTI/EXEC;
//     assumes a single writing process per key prefix
//
// Log entries are never rewritten or removed. Map iteration and set member
// listing are ordered (binary key order, ascending members) so that results
// are identical across backends.
package store
