// Package classify decides which fingerprint matches of a media record become
// duplicate-of edges and which become variant-of edges.
//
// Candidates scored below the variant threshold, or any candidate of a
// category that does not consider variants, are proposed as duplicates. The
// rest are proposed as variants. Each proposal set passes the same gate
// before its edges are added to the record:
//
//   - the set is non-empty
//   - it carries at least one original the record does not already point to
//   - no candidate already points back at the record with an edge of the same kind
//
// The last rule keeps the decision local to the record: whichever of two
// records is classified first wins, and the other skips the reverse edge.
// Accepting duplicates marks the record ignored unless it was published on
// its own. Classification never fails; fetch and decode failures are handled
// while fingerprinting and show up as record state instead.
package classify
