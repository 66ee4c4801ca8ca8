package crdt

// Engine is the narrow capability contract the session core needs from a
// CRDT implementation. The server never interprets update blobs; it only
// relies on ApplyUpdate being commutative and idempotent, so updates may be
// applied out of order or more than once without changing the result.
type Engine interface {
	NewDoc() Doc
}

// Doc is one in-memory document replica.
type Doc interface {
	// ApplyUpdate merges an opaque update blob (or a snapshot produced by
	// EncodeSnapshot) into the document. Re-applying a seen update is a no-op.
	ApplyUpdate(update []byte) error
	// EncodeSnapshot serializes the full document state as a single blob that
	// ApplyUpdate on any replica accepts. The encoding is deterministic: two
	// replicas holding the same state produce identical snapshots.
	EncodeSnapshot() []byte
	// StateVector summarizes which updates this replica has seen.
	StateVector() []byte
	// DiffSince returns the updates not covered by the given state vector,
	// packed as a single applyable blob, and whether there were any.
	DiffSince(vector []byte) ([]byte, bool)
}
