package replication

import (
	"go.uber.org/zap"

	"github.com/loopgrid/ringd/internal/errors"
	"github.com/loopgrid/ringd/internal/metrics"
	"github.com/loopgrid/ringd/internal/model"
	"github.com/loopgrid/ringd/internal/ringbuffer"
	"github.com/loopgrid/ringd/internal/serialization"
	"github.com/loopgrid/ringd/internal/util"
)

// Registry is the applier's view of the node's containers. Execute runs fn
// while holding the named container's operation lock; unknown names are
// rejected.
type Registry interface {
	Execute(name string, fn func(*ringbuffer.Container) error) error
}

// Applier applies replicated operations on a backup member.
type Applier struct {
	registry Registry
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewApplier creates the backup-side applier.
func NewApplier(registry Registry, logger *zap.Logger, m *metrics.Metrics) *Applier {
	return &Applier{registry: registry, logger: logger, metrics: m}
}

// ApplyAppend applies one replicated append. The append lands only when it
// is the immediate successor of the backup's tail; any other sequence
// leaves the backup untouched and asks the primary for a full sync.
func (a *Applier) ApplyAppend(req model.BackupAppend) (model.BackupAppendResult, error) {
	var result model.BackupAppendResult
	err := a.registry.Execute(req.Ringbuffer, func(c *ringbuffer.Container) error {
		next := c.TailSequence() + 1
		if req.Sequence != next {
			a.logger.Warn("Backup append out of order, requesting sync",
				zap.String("ringbuffer", req.Ringbuffer),
				zap.Int64("sequence", req.Sequence),
				zap.Int64("expected", next))
			a.metrics.RecordBackupOutOfOrder()
			result = model.BackupAppendResult{Applied: false, NeedsSync: true}
			return nil
		}

		seq, err := c.Add(serialization.Data(req.Payload))
		if err != nil {
			return err
		}
		if seq != req.Sequence {
			// Cannot happen once the tail check passed; guard anyway.
			return errors.InternalError("backup append landed at an unexpected sequence", nil).
				WithDetail("ringbuffer", req.Ringbuffer).
				WithDetail("sequence", req.Sequence).
				WithDetail("applied_sequence", seq)
		}
		a.metrics.RecordBackupApply()
		result = model.BackupAppendResult{Applied: true}
		return nil
	})
	if err != nil {
		return model.BackupAppendResult{}, err
	}
	return result, nil
}

// ApplySync installs a full container transfer stream, replacing the
// backup's state. The checksum is validated before any decoding; a corrupt
// or mismatched stream leaves the backup unchanged.
func (a *Applier) ApplySync(req model.SyncRequest) (model.SyncResult, error) {
	if actual := util.ComputeChecksum(req.Payload); actual != req.Checksum {
		return model.SyncResult{}, errors.ChecksumFailed(req.Checksum, actual).
			WithDetail("ringbuffer", req.Ringbuffer)
	}

	err := a.registry.Execute(req.Ringbuffer, func(c *ringbuffer.Container) error {
		if err := c.ReadFrom(serialization.NewReader(req.Payload)); err != nil {
			return err
		}
		a.logger.Info("Installed container sync",
			zap.String("ringbuffer", req.Ringbuffer),
			zap.Int64("head_sequence", c.HeadSequence()),
			zap.Int64("tail_sequence", c.TailSequence()))
		return nil
	})
	if err != nil {
		return model.SyncResult{}, err
	}
	return model.SyncResult{Applied: true}, nil
}
