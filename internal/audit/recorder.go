package audit

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"

	"github.com/Benseddik-Fethi/petcare-app/internal/domain"
	"github.com/Benseddik-Fethi/petcare-app/internal/repository"
)

// Recorder appends security events to the audit log. It is write-only from
// the callers' perspective: a failed append is logged and swallowed so that
// bookkeeping never fails the authentication flow that produced it.
type Recorder struct {
	repo   repository.AuditLogRepository
	node   *snowflake.Node
	logger *zap.Logger
}

// NewRecorder wires the recorder.
func NewRecorder(repo repository.AuditLogRepository, node *snowflake.Node, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.L()
	}
	return &Recorder{repo: repo, node: node, logger: logger}
}

// Record assigns an id and appends the entry.
func (r *Recorder) Record(ctx context.Context, entry domain.AuditLog) {
	if r == nil || r.repo == nil {
		return
	}
	entry.ID = r.node.Generate().Int64()
	if err := r.repo.Append(ctx, entry); err != nil {
		r.logger.Warn("audit append failed",
			zap.String("event", entry.Event),
			zap.Error(err),
		)
	}
}
