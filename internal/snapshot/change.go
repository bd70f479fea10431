package snapshot

type ChangeKind string

const (
	LocalAdd     ChangeKind = "localAdd"
	RemoteAdd    ChangeKind = "remoteAdd"
	LocalUpdate  ChangeKind = "localUpdate"
	RemoteUpdate ChangeKind = "remoteUpdate"
	LocalDelete  ChangeKind = "localDelete"
	RemoteDelete ChangeKind = "remoteDelete"
)

func (k ChangeKind) String() string {
	return string(k)
}

// ChangeRecord describes how one path diverged between the local and remote
// snapshots relative to their common ancestor. Empty hashes and zero
// timestamps mean the side has no entry.
type ChangeRecord struct {
	Path            string     `json:"path"`
	Kind            ChangeKind `json:"kind"`
	LocalHash       string     `json:"localHash,omitempty"`
	RemoteHash      string     `json:"remoteHash,omitempty"`
	AncestorHash    string     `json:"ancestorHash,omitempty"`
	AncestorDeleted bool       `json:"ancestorDeleted,omitempty"`
	LocalTimestamp  int64      `json:"localTimestamp,omitempty"`
	RemoteTimestamp int64      `json:"remoteTimestamp,omitempty"`
	LocalDeleted    bool       `json:"localDeleted,omitempty"`
	RemoteDeleted   bool       `json:"remoteDeleted,omitempty"`
}

// LocalChanged is true when the local side differs from the ancestor.
// Two tombstones are equal whatever hash they carry.
func (r ChangeRecord) LocalChanged() bool {
	return r.sideChanged(r.LocalHash, r.LocalDeleted)
}

func (r ChangeRecord) RemoteChanged() bool {
	return r.sideChanged(r.RemoteHash, r.RemoteDeleted)
}

func (r ChangeRecord) sideChanged(hash string, deleted bool) bool {
	if deleted {
		return !r.AncestorDeleted
	}
	// AncestorHash is empty for a tombstoned ancestor, so a live side
	// always differs from it.
	return hash != r.AncestorHash
}

// IsConflict is true when both sides moved away from the ancestor.
func (r ChangeRecord) IsConflict() bool {
	return r.LocalChanged() && r.RemoteChanged()
}
