// Package ir defines the shared record types of tiplink.
//
// This package contains type definitions, amount arithmetic, the contract
// error taxonomy and canonical encodings. All other internal packages import
// ir; ir imports nothing internal.
//
// Key design constraints:
//   - Accounts are opaque strings compared by exact equality
//   - Amounts are unsigned 128-bit integers, never floats
//   - All JSON tags use snake_case
//   - Request ids are log positions, never wall-clock derived
package ir
