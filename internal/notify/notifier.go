package notify

import (
	"context"

	"go.uber.org/zap"
)

// Notifier delivers user-facing messages. Delivery is fire-and-forget: the
// auth flows never wait on it and never roll back on its failure.
type Notifier interface {
	SendVerificationEmail(ctx context.Context, email, name, link string)
	SendWelcomeEmail(ctx context.Context, email, name string)
	SendPasswordResetEmail(ctx context.Context, email, name, link string)
	SendPasswordChangedEmail(ctx context.Context, email, name string)
}

// LogNotifier records outgoing notifications in the application log. It
// stands in for the real mail gateway in development and tests.
type LogNotifier struct {
	logger *zap.Logger
}

var _ Notifier = (*LogNotifier)(nil)

// NewLogNotifier builds a notifier that logs instead of sending.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.L()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendVerificationEmail(ctx context.Context, email, name, link string) {
	n.logger.Info("notify: verification email", zap.String("email", email), zap.String("link", link))
}

func (n *LogNotifier) SendWelcomeEmail(ctx context.Context, email, name string) {
	n.logger.Info("notify: welcome email", zap.String("email", email))
}

func (n *LogNotifier) SendPasswordResetEmail(ctx context.Context, email, name, link string) {
	n.logger.Info("notify: password reset email", zap.String("email", email), zap.String("link", link))
}

func (n *LogNotifier) SendPasswordChangedEmail(ctx context.Context, email, name string) {
	n.logger.Info("notify: password changed email", zap.String("email", email))
}
