// Package domain models crowd-sourced parking-enforcement ("TAPS") sightings
// and the analytics derived from them.
//
// # Data Source
//
// Sightings originate from citation records exported out of the document store
// by an offline script. The export writes one quoted, comma-terminated line per
// citation, e.g.
//
//	"24pk501373,104 EAST REMOTE,0251,9/3/2024",
//
// The service ingests the full corpus at start-up and again whenever the feed is
// re-fetched. Each pass replaces the in-memory collection; records are never
// merged into a previous pass.
//
// # Raw Line Conventions
//
// Field order:
//
//	citationNumber,locationLabel,timeToken,dateToken
//
// Missing citation numbers or labels become "Unavailable". Any other field
// count rejects the line.
//
// Time tokens:
//
//	HHmm or Hmm in 24-hour notation, e.g. "1430" = 14:30, "930" = 09:30.
//	H:MM AM|PM or HH:MM AM|PM, e.g. "2:30 PM" = 14:30, "12:05 AM" = 00:05.
//
// Date tokens:
//
//	M/D/YYYY with one- or two-digit month and day, e.g. "3/5/2024".
//
// The date and time are composed into a UTC instant without any timezone
// arithmetic. The stored instant is therefore "UTC-denormalized": the clock
// reading of the citation, labelled UTC.
//
// # Display Offset
//
// Every presentation path (list, map pins, prediction hour comparison) applies
// [DisplayOffset] before deriving a human-facing hour or date. Views must use
// [DisplayTime] or [DisplayHour] rather than shifting times themselves.
//
// # Location Labels
//
// Labels are free text taken verbatim from citations ("164 JOHN R. LEWIS COLLEGE",
// "PORTER-KRESGE ROAD"). They are not normalized to a canonical set. Coordinates
// are resolved on demand by [Resolver], whose priority list is matched by
// substring containment, first match wins.
package domain
