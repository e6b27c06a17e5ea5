// Package store provides the bounded in-memory containers that hold the
// monitoring engine's state.
//
// The main components are:
//
//   - [Bounded]: capacity-capped sequence with Prepend (newest-first, evicts
//     the tail) and Append (oldest-first, evicts the head)
//   - [Keyed]: insertion-ordered map with replace-in-place upserts
//   - [Value]: single value replaced wholesale
//
// Every container serialises its writers with its own lock and hands readers
// copied snapshots, so a reader never observes a container mid-mutation.
// There are no cross-container transactions.
package store
