// Package domain models NASA NeoWs close-approach data and the pure
// transformations applied to it between ingestion and the published tables.
//
// # Data Source
//
// Close approaches come from the NeoWs feed endpoint
// (https://api.nasa.gov/neo/rest/v1/feed). A feed query takes an inclusive
// start_date/end_date window of at most seven days and returns every
// near-Earth object with a close approach inside that window, grouped by date:
//
//	{"near_earth_objects": {"2024-01-01": [neo, ...], "2024-01-02": [...]}}
//
// Each neo carries its static attributes (id, name, absolute magnitude,
// estimated diameter bounds, hazard and sentry flags) plus a
// close_approach_data list. The feed returns one close-approach entry per
// neo per listed date.
//
// # NeoWs Data Conventions
//
// Numeric encodings:
//
//	Velocity and miss distance are decimal strings ("12345.6789").
//	Diameter bounds and absolute magnitude are JSON numbers.
//	epoch_date_close_approach is Unix epoch milliseconds.
//	Unparseable or non-finite values are stored as absent (nil), never zero.
//
// Dates:
//
//	close_approach_date is "YYYY-MM-DD" (UTC).
//	close_approach_date_full is "YYYY-Mon-DD HH:MM" (e.g. "2024-Jan-01 13:45").
//	ISO dates compare lexicographically, which the table builder relies on.
//
// Orbiting body:
//
//	The body the approach is measured against ("Earth", "Mars", "Juptr", ...).
//	The literal filter "all" keeps every body.
//
// # Chunks
//
// A requested date range is split into chunks of at most [MaxFeedWindowDays]
// days by [PlanChunks]. A chunk's identity is its date range plus orbiting
// body filter; the chunk cache is keyed by that identity. See [Chunk.Key].
//
// # Tables
//
// [BuildTables] turns merged raw records into two tables:
//
//	Objects:    one row per object id. When the same object appears on several
//	            dates, attributes come from the most recently dated record.
//	Approaches: one row per (object id, close-approach date, orbiting body).
//
// Log features use natural logarithms clamped at [Epsilon] so zero or missing
// inputs still produce finite values.
package domain
