// Package harness runs YAML scenarios against a fresh engine and compares
// the resulting trace with golden files.
//
// A scenario bootstraps roles from its genesis block, then executes steps
// in order. Each step is either an operation (submit, approve, send_tip,
// ...) with an optional expectation, or a check against current state.
// After every committed operation the harness drains the transfer outbox
// through a recording transferer, so the outbox in the final snapshot
// shows delivery states the same way a one-shot CLI run would.
//
// Runs are deterministic: the store is in memory and transfer ids come
// from testutil.SequenceIDs, so the same scenario always yields the same
// snapshot bytes.
//
// Example scenario:
//
//	name: link_approved
//	genesis:
//	  owner: owner.near
//	  oracle: oracle.near
//	  minimum_stake: "10"
//	steps:
//	  - op: submit
//	    caller: alice.near
//	    deposit: "10"
//	    external: tw/alice
//	    expect:
//	      result: {id: 0}
//	  - op: approve
//	    caller: oracle.near
//	    request: 0
//	  - check:
//	      type: link
//	      internal: alice.near
//	      external: tw/alice
package harness
