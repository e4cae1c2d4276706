// Package server exposes the tasting core over HTTP and websockets.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation registers method patterns ("PUT /slides/{id}/position") on an
// [http.ServeMux], so a wrong method gets 405 from the mux and path values are available through
// [http.Request.PathValue].
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
// [TastingHandler] serves the JSON API this way.
//
// # Errors
//
// Failures are written as {"error": {"code", "message", "metadata"}} with the status from
// [shared.Code.HTTPStatus], e.g. 409 for DUPLICATE_POSITION and 422 for SESSION_CLOSED.
//
// # Session Hub
//
// [Hub] keeps the websocket clients of each session and implements [tasks.Notifier]. Events are
// order_changed, selection_changed, host_step and session_completed; clients re-fetch canonical
// state on order and selection changes instead of merging optimistic copies.
package server
