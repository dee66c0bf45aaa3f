// Package snapshot persists the resting book so a restart only replays
// the journal written after it. A snapshot is taken under the service
// lock and records the journal and id positions it corresponds to.
package snapshot
