// Package domain models community-reported Pokémon nest sightings and the
// canonical per-rotation residency record derived from them.
//
// # Rotations
//
// Nests shift on a fixed cadence. Each shift opens a RotationPeriod identified
// by a monotonic number and an effective instant (UTC). At most one rotation
// may start per calendar day. A report belongs to the latest rotation whose
// effective instant is at or before the report timestamp.
//
// Nest-shift instants follow the game's schedule:
//
//	Thursday shifts happen at 00:00 UTC.
//	Event-driven shifts on any other day happen at 13:00 America/Los_Angeles.
//
// # Ledger and report log
//
// The ledger (LedgerEntry, historically "NSLA") holds exactly one row per
// (rotation, park): the current resident species, whether it has been
// confirmed, and who last modified it. Every submission that passes validation
// appends one RawReport to the audit log carrying the outcome code it was
// classified with.
//
// Outcome codes are stable integers shared with import adapters:
//
//	0 duplicate      1 first report   2 confirmation   4 conflict
//	6 deletion       7 override       9 error
//
// # Trust tiers
//
// Submitters are human, system, survey-bot or scanner-bot. Bots are
// "restricted": their reports go through the two-witness conflict rules.
// Humans and the system account always win immediately.
//
// # Species input conventions
//
// Manual entry accepts two suffixes on the species text:
//
//	"Pikachu|1"   force confirmation (honoured for unrestricted submitters)
//	"Tyrogue*"    search every species, not only the nestable set
//
// Permanent nests store their species as "Name" or "Name|dex".
package domain
