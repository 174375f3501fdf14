// Package transfer implements the outbound value-transfer boundary.
//
// Contract operations never move value themselves. They append a Transfer to
// the outbox log inside their own store step through a Scheduler. After the
// step commits, the Dispatcher reads the outbox in order and hands each entry
// to a Transferer, recording the outcome next to the entry.
//
// Delivery is fire-and-forget from the contract's point of view: a failed
// transfer is recorded as failed and never compensates the committed state.
// Entries delivered just before a crash may be delivered again after restart;
// receivers deduplicate on the transfer digest.
package transfer
