// Package ordering assigns slide positions and turns drag results into minimal position writes.
//
// An [Allocator] picks a position strictly between two neighbors without touching siblings.
// When no such value exists it returns [shared.ErrPositionExhausted]. [Allocator.Spread] respaces a
// run of slides between two anchors, and [Allocator.Renumber] resets a whole (wine, section) scope.
//
// A [Reconciler] compares a client's desired order against canonical positions, keeps the largest
// set of slides that are already in order and allocates new positions only for the rest. A crowded
// gap widens into the smallest local window that fits before the scope is renumbered.
package ordering
