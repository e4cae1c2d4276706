// Package services implements HTTP clients for the tasting API.
//
// # Raw Client
//
// [APIService] performs raw GET, POST and PUT requests and returns an [APIResponse] with status,
// headers and body. It is used by `tasting api` style debugging and by the typed client.
//
// # Tasting Client
//
// [TastingClient] wraps [APIService] with typed calls for the participant side:
//   - [TastingClient.Ping] checks /health and backs connectivity checks of the sync pass
//   - [TastingClient.PackageSlides] fetches the aggregated sequence and rebuilds it locally
//   - [TastingClient.JoinSession] and [TastingClient.ParticipantState] resume a participant
//   - [TastingClient.SubmitResponse] delivers one answer; it satisfies [responses.Sink]
//
// # Error Handling
//
// Error bodies of the form {"error": {"code", "message"}} are decoded into [*shared.Error] so
// callers match them by code with [errors.Is]. Transport failures wrap [shared.ErrServiceUnavailable].
package services
