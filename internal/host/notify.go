package host

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
)

// LogNotifier records notifications in the log. It is the default when
// no desktop integration is configured.
type LogNotifier struct {
	logger *zap.Logger
	seq    atomic.Int64
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, note Notification) (string, error) {
	id := fmt.Sprintf("focuser-%d", n.seq.Add(1))
	n.logger.Info("notification",
		zap.String("id", id),
		zap.String("title", note.Title),
		zap.String("message", note.Message),
		zap.Strings("buttons", note.Buttons))
	return id, nil
}
