// Package waterledger implements a tamper-evident ledger for drinking-water
// quality measurements and water-distribution events.
//
// Verifier identities append immutable QualityRecords; distributor identities
// append DistributionRecords that must reference a quality record whose stored
// safety verdict is safe. A distribution is closed by a one-time delivery
// confirmation from the distributor who recorded it. A single owner identity,
// fixed at genesis, administers both role sets.
//
// Three implementations of the Store interface are provided:
//   - MemoryStore: in-process, for testing and development.
//   - SQLiteStore: embedded durability for single-node deployments.
//   - PostgresStore: durable, for production use.
//
// All mutations go through the Ledger facade, which serialises them, enforces
// authorization and validation, and emits a post-commit Event for each
// successful mutation. A failed operation leaves no trace: no state change,
// no consumed ID, no event.
package waterledger
