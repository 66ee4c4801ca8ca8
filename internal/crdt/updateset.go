package crdt

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"
)

// Container prefixes. A snapshot packs deduplicated updates, a vector packs
// the digests of the updates a replica has seen. Anything without a prefix
// is a single opaque client update.
var (
	snapshotMagic = []byte("USET1")
	vectorMagic   = []byte("UVEC1")
)

// UpdateSetEngine is the default Engine: a grow-only set of opaque update
// blobs keyed by SHA-256 digest. Merging is set union, which makes it
// commutative and idempotent by construction. A Yjs-compatible engine plugs
// in behind the same interface without touching the session core.
type UpdateSetEngine struct{}

func NewUpdateSetEngine() *UpdateSetEngine {
	return &UpdateSetEngine{}
}

func (e *UpdateSetEngine) NewDoc() Doc {
	return &updateSetDoc{updates: make(map[[32]byte][]byte)}
}

// updateSetDoc is not safe for concurrent use; the owning room serializes
// access.
type updateSetDoc struct {
	updates map[[32]byte][]byte
}

func (d *updateSetDoc) ApplyUpdate(update []byte) error {
	if len(update) == 0 {
		return nil
	}
	if bytes.HasPrefix(update, snapshotMagic) {
		return d.applySnapshot(update)
	}
	d.add(update)
	return nil
}

func (d *updateSetDoc) add(update []byte) {
	digest := sha256.Sum256(update)
	if _, seen := d.updates[digest]; seen {
		return
	}
	blob := make([]byte, len(update))
	copy(blob, update)
	d.updates[digest] = blob
}

func (d *updateSetDoc) applySnapshot(snapshot []byte) error {
	updates, err := decodeSnapshot(snapshot)
	if err != nil {
		return err
	}
	for _, u := range updates {
		d.add(u)
	}
	return nil
}

func (d *updateSetDoc) EncodeSnapshot() []byte {
	return encodeSnapshot(d.sortedDigests(), d.updates)
}

func (d *updateSetDoc) StateVector() []byte {
	digests := d.sortedDigests()
	buf := bytes.NewBuffer(nil)
	buf.Write(vectorMagic)
	writeUvarint(buf, uint64(len(digests)))
	for _, dg := range digests {
		buf.Write(dg[:])
	}
	return buf.Bytes()
}

func (d *updateSetDoc) DiffSince(vector []byte) ([]byte, bool) {
	seen := decodeVector(vector)
	var missing [][32]byte
	for _, dg := range d.sortedDigests() {
		if _, ok := seen[dg]; !ok {
			missing = append(missing, dg)
		}
	}
	if len(missing) == 0 {
		return nil, false
	}
	return encodeSnapshot(missing, d.updates), true
}

func (d *updateSetDoc) sortedDigests() [][32]byte {
	digests := make([][32]byte, 0, len(d.updates))
	for dg := range d.updates {
		digests = append(digests, dg)
	}
	sort.Slice(digests, func(i, j int) bool {
		return bytes.Compare(digests[i][:], digests[j][:]) < 0
	})
	return digests
}

func encodeSnapshot(digests [][32]byte, updates map[[32]byte][]byte) []byte {
	buf := bytes.NewBuffer(nil)
	buf.Write(snapshotMagic)
	writeUvarint(buf, uint64(len(digests)))
	for _, dg := range digests {
		u := updates[dg]
		writeUvarint(buf, uint64(len(u)))
		buf.Write(u)
	}
	return buf.Bytes()
}

func decodeSnapshot(snapshot []byte) ([][]byte, error) {
	r := bytes.NewReader(snapshot[len(snapshotMagic):])
	count, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("malformed snapshot header: %w", err)
	}
	// Every entry needs at least its length varint, so the declared count is
	// bounded by the remaining bytes. Rejecting here keeps a hostile count
	// from driving the preallocation below.
	if count > uint64(r.Len()) {
		return nil, fmt.Errorf("snapshot count %d exceeds payload size %d", count, r.Len())
	}
	updates := make([][]byte, 0, count)
	for i := uint64(0); i < count; i++ {
		n, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("malformed snapshot entry %d: %w", i, err)
		}
		u := make([]byte, n)
		if _, err := readFull(r, u); err != nil {
			return nil, fmt.Errorf("truncated snapshot entry %d: %w", i, err)
		}
		updates = append(updates, u)
	}
	return updates, nil
}

// decodeVector tolerates unknown or malformed vectors by treating them as
// empty, which makes the diff conservative (everything is returned).
func decodeVector(vector []byte) map[[32]byte]struct{} {
	seen := make(map[[32]byte]struct{})
	if !bytes.HasPrefix(vector, vectorMagic) {
		return seen
	}
	r := bytes.NewReader(vector[len(vectorMagic):])
	count, err := binary.ReadUvarint(r)
	if err != nil {
		return seen
	}
	for i := uint64(0); i < count; i++ {
		var dg [32]byte
		if _, err := readFull(r, dg[:]); err != nil {
			return seen
		}
		seen[dg] = struct{}{}
	}
	return seen
}

func writeUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func readFull(r *bytes.Reader, p []byte) (int, error) {
	n, err := r.Read(p)
	if err == nil && n < len(p) {
		return n, fmt.Errorf("short read: %d of %d bytes", n, len(p))
	}
	return n, err
}
