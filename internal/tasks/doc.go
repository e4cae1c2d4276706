// Package tasks implements the tasting service layer on top of the repositories.
//
// # Core Operations
//
// [TastingEngine] owns every write that touches slide order, sessions or responses:
//
//  1. Ordering: [TastingEngine.MoveSlide], [TastingEngine.ReorderSlides] and
//     [TastingEngine.ReconcileOrder] serialize on a per-wine lock and apply their writes in one
//     transaction. A (wine, section, position) collision surfaces as DUPLICATE_POSITION.
//  2. Sequences: [TastingEngine.PackageSlides] and [TastingEngine.Outline] read the aggregated order
//     through an invalidatable cache. Every ordering or selection write invalidates the package.
//  3. Sessions: create, join, complete, progress pointers, wine selections and responses.
//     Completed sessions reject progress and responses with SESSION_CLOSED.
//  4. Maintenance: [TastingEngine.ImportPackage] and [TastingEngine.RepairPositions].
//
// # Progress Reporting
//
// Long-running operations take a progress channel. Updates use select with default to prevent blocking.
//
// # Background Sync
//
// [SyncWorker] drives [responses.Recorder.Sync] on a ticker and whenever connectivity comes back.
//
// # Notifications
//
// The optional [Notifier] (the server's websocket hub) receives order_changed, selection_changed and
// host_step events keyed by session id.
package tasks
