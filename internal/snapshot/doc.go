// Package snapshot holds the merged device state produced by a poll cycle.
//
// A device serves three JSON resources that change at different rates:
//   - data (data.jsn): live measurements, fetched every cycle
//   - info (mypv_dev.jsn): static identity, fetched until the first success
//   - setup (setup.jsn): configuration, refreshed on a slower cadence
//
// The Cache keeps one immutable Snapshot per device. A writer builds the next
// snapshot with a Batch, applying each fetch result independently (a failed
// fetch leaves the previous value in place), and publishes all of it with a
// single atomic swap:
//
//	batch := cache.Begin(time.Now())
//	batch.ApplyData(data, dataErr)
//	batch.ApplySetup(setup, setupErr)
//	snap := batch.Commit()
//
// Readers call Load from any goroutine and never block.
//
// # Typed Access
//
// Resource values are decoded with json.Number and read through get-or-absent
// accessors (Int, Float, Bool, String) that report a missing or mistyped key
// as absent instead of panicking.
package snapshot
