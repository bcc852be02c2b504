// Package localstore implements the client-side, offline-capable, authoritative
// cache that sits between an application and a remote document database.
//
// It buffers unacknowledged writes (mutationqueue.Queue), reconciles them with
// the server's canonical snapshots (remotedoc.Cache), serves queries from the
// local overlay (localdocuments.View), tracks resume state for live listeners
// (targetcache.Cache), and reclaims storage no longer referenced (gc.Collector).
// The store package assembles these into the LocalStore façade.
//
// Two storage regimes share identical observable semantics for everything
// except garbage collection: an in-memory regime with eager reclamation, and
// a persistent regime (Cassandra + Redis, see cassandra/ and redis/) with deferred
// reclamation. See the persistence package for the Transaction abstraction
// that makes every public mutating LocalStore operation atomic.
//
// Timeout model
//
// The remotedoc.Cache, mutationqueue.Queue and targetcache.Cache interfaces
// take no context, so persistence operations are not bounded by a caller
// deadline. Locks use an operation-specific maximum duration as their TTL
// (cassandra's documentTable.Add holds its per-key write lock for
// writeLockDuration), so they are released even if their holder never
// unlocks them.
//
// Admin surface
//
// cmd/localstore-admin wires the persistent regime's collaborators
// (cassandra, redis, aws_s3) into a LocalStore and serves read-only
// diagnostics (queue depth, reference counts, target membership) over the
// admin package's HTTP API, gated by auth's Okta bearer-token verification.
package localstore
