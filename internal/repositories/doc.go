// Package repositories implements SQLite persistence for all domain entities.
//
// Each repository handles CRUD operations against the schema in internal/shared/sql.
//
// Key Implementations:
//   - [PackageRepository] : Package persistence with code-based lookups
//   - [WineRepository] : Wines ordered by package position
//   - [SlideRepository] : Slides with per-(wine, section) unique positions, usable inside a transaction
//   - [SessionRepository] : Live sessions with short-code lookups
//   - [SelectionRepository] : Per-session wine inclusion and ordering overrides
//   - [ParticipantRepository] : Participants and their durable progress pointer
//   - [ResponseRepository] : Answers with upsert semantics on (participant, slide)
//   - [QueueRepository] : Client-side queue of responses awaiting sync
//   - [ProgressRepository] : Client-side copy of the participant's progress pointer
//
// Sequence numbers provide stable, human-readable ordering (e.g., package #4, session #15) independent of UUIDs and creation timestamps.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories
