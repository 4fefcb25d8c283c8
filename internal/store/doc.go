// Package store persists sessions and their event log in SQLite.
//
// Each session is one row whose story, scenes, settings, and reference
// image are stored as JSON columns; the session value is always written
// whole. The event_log table is append-only and ordered by its
// autoincrement sequence. Schema changes ship as embedded migrations.
package store
