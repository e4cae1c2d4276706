// Package models defines domain entities and persistence interfaces for the tasting service.
//
// The package contains three categories of types:
//
// 1. Authoring entities: Database-backed content owned by a package
//   - [Package] : Named, coded collection of wines
//   - [Wine] : One tasting subject with a presentation position
//   - [Slide] : One unit of content or interaction inside a wine section
//
// 2. Runtime entities: Live playthrough state
//   - [Session] : One live instance of a package
//   - [WineSelection] : Per-session inclusion and ordering override for a wine
//   - [Participant] : One user in a session with a durable [ProgressPointer]
//   - [Response] : An answer keyed by (participant, slide)
//
// 3. Slide payloads: A tagged union keyed by (type, question kind), see [Payload] and [DecodePayload].
//
// All persistent entities implement the Model interface providing ID generation, timestamps and validation.
// The Repository[T] interface defines standard CRUD operations for database access.
package models
