// Package domain defines the core domain models for the TokMesh session client.
//
// Domain models are pure value objects without any IO dependencies or
// framework coupling. This package contains:
//
//   - SessionRecord: the durable session tuple shared between processes
//   - SessionPayload: the session handed over by the identity service
//   - SessionConflict: the outcome of comparing two stored records
//   - MonitoringStatus: read-only snapshot of the session monitor
//   - Errors: domain-specific error definitions
//
// Records are replaced wholesale on every mutation and are always handed
// out as clones.
package domain
