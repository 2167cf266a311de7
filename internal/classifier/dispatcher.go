package classifier

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/termie/internal/bridge"
	"github.com/GriffinCanCode/termie/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/termie/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/termie/internal/shared/id"
)

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	// Answerer is optional; without one natural-language lines get no reply.
	Answerer Answerer
	Timeout  time.Duration
	Logger   *zap.Logger
	Metrics  *monitoring.Metrics
}

// Dispatcher runs classifier calls off the tick loop and posts their
// outcome to a mailbox.
type Dispatcher struct {
	classifier Classifier
	answerer   Answerer
	box        *bridge.Mailbox[bridge.Event]
	timeout    time.Duration
	logger     *zap.Logger
	metrics    *monitoring.Metrics
	wg         sync.WaitGroup
}

// NewDispatcher creates a dispatcher posting to box.
func NewDispatcher(c Classifier, box *bridge.Mailbox[bridge.Event], opts DispatcherOptions) *Dispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Dispatcher{
		classifier: c,
		answerer:   opts.Answerer,
		box:        box,
		timeout:    opts.Timeout,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
	}
}

// CanAnswer reports whether natural-language lines get a model reply.
func (d *Dispatcher) CanAnswer() bool {
	return d.answerer != nil
}

// Classify starts classifying line and returns immediately. Exactly one
// Classification or ClassifierError event follows.
func (d *Dispatcher) Classify(line []byte) {
	line = append([]byte(nil), line...)
	reqID := id.NewRequestID()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		timer := monitoring.NewTimer(d.metrics)
		isCommand, err := d.classifier.Classify(ctx, string(line))
		if err != nil {
			d.metrics.RecordClassifierError(errorType(err))
			d.logger.Warn("Classification failed, treating line as natural language",
				zap.String("request_id", reqID.String()),
				zap.Error(err),
			)
			d.box.Push(bridge.ClassifierError{Line: line, Message: err.Error()})
			return
		}

		result := "natural"
		if isCommand {
			result = "command"
		}
		timer.Classified(result)
		d.logger.Debug("Line classified",
			zap.String("request_id", reqID.String()),
			zap.String("result", result),
		)
		d.box.Push(bridge.Classification{Line: line, IsCommand: isCommand})
	}()
}

// Answer asks the model to reply to line. An Answer event follows on
// success; failures are logged and produce no event.
func (d *Dispatcher) Answer(line []byte) {
	if d.answerer == nil {
		return
	}
	line = append([]byte(nil), line...)
	reqID := id.NewRequestID()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		text, err := d.answerer.Answer(ctx, string(line))
		if err != nil {
			d.metrics.RecordClassifierError(errorType(err))
			d.logger.Warn("Answer failed",
				zap.String("request_id", reqID.String()),
				zap.Error(err),
			)
			return
		}
		d.box.Push(bridge.Answer{Line: line, Text: text})
	}()
}

// Wait blocks until every started call has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func errorType(err error) string {
	var statusErr *StatusError
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, resilience.ErrTooManyRequests):
		return "circuit_open"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &statusErr):
		return "status"
	default:
		return "transport"
	}
}
