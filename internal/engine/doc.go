// Package engine is the public operation surface of tiplink.
//
// Every mutating operation runs as one store step under a single process-wide
// lock: it reads its working set, checks its preconditions and writes its
// effects, or fails with no effect at all. No two operations interleave.
//
// Outbound transfers are recorded in the outbox inside the same step. After
// the step commits the engine notifies the dispatcher, which delivers them
// asynchronously. The engine never waits for, or reacts to, a delivery.
//
// Reads run as read-only store steps and never take the lock.
package engine
