package model

// BackupAppend replicates one primary append to a backup member. The
// payload is the client payload as stored by the primary; the backup
// stamps its own expiration deadline on apply.
type BackupAppend struct {
	Ringbuffer string `codec:"ringbuffer"`
	Sequence   int64  `codec:"sequence"`
	Payload    []byte `codec:"payload"`
}

// BackupAppendResult reports whether an append landed. NeedsSync is set
// when the backup detected an ordering gap and wants a full container sync
// instead of further appends.
type BackupAppendResult struct {
	Applied   bool `codec:"applied"`
	NeedsSync bool `codec:"needs_sync"`
}

// SyncRequest carries a complete container transfer stream. The checksum
// covers the payload bytes.
type SyncRequest struct {
	Ringbuffer string `codec:"ringbuffer"`
	Payload    []byte `codec:"payload"`
	Checksum   uint32 `codec:"checksum"`
}

// SyncResult acknowledges a full container sync.
type SyncResult struct {
	Applied bool `codec:"applied"`
}
