package bridge

import (
	"go.uber.org/zap"

	"github.com/GriffinCanCode/termie/internal/infrastructure/monitoring"
)

// Sink is the write view of a pty session. Write must deliver the whole
// payload or fail.
type Sink interface {
	Write(p []byte) error
}

// Writer is the single owner of a session's write side.
type Writer struct {
	sink    Sink
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// NewWriter creates a writer.
func NewWriter(sink Sink, logger *zap.Logger, metrics *monitoring.Metrics) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{sink: sink, logger: logger, metrics: metrics}
}

// Send writes p to the session. The line counts as sent only once Send
// returns nil.
func (w *Writer) Send(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	if err := w.sink.Write(p); err != nil {
		w.logger.Error("Pty write failed", zap.Int("bytes", len(p)), zap.Error(err))
		return err
	}
	w.metrics.AddPtyWritten(len(p))
	w.logger.Debug("Sent to shell", zap.Int("bytes", len(p)))
	return nil
}
