// Package state persists the last successfully processed page snapshot.
//
// The record is the comparison baseline for transition detection, so it must
// never be observed torn: both drivers replace it atomically. Loading fails
// soft — a missing or corrupt record yields the documented defaults, because
// the page state is always re-derivable from the next fetch.
package state
