// Package kafkanotify publishes workflow status change events to a Kafka
// topic so downstream journal systems can react to manuscript progress.
package kafkanotify

import (
	"context"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"github.com/segmentio/kafka-go"

	"github.com/scholarpress/orchestrator"
)

// eventBuffer bounds the publish queue. A broker outage fills the queue and
// further events are dropped instead of stalling workflow processing.
const eventBuffer = 256

// writer is the slice of kafka.Writer used, declared so tests can stub the
// transport.
type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Notifier writes one JSON message per status change event, keyed by
// workflow id so all events of a workflow land on the same partition in
// order. Events are published from a single background goroutine, Notify
// itself only enqueues.
type Notifier struct {
	writer writer
	logger orchestrator.Logger
	events chan orchestrator.Event
	done   chan struct{}
}

func New(brokers []string, topic string, logger orchestrator.Logger) *Notifier {
	return newNotifier(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}, logger)
}

func newNotifier(w writer, logger orchestrator.Logger) *Notifier {
	if logger == nil {
		logger = orchestrator.NopLogger()
	}

	n := &Notifier{
		writer: w,
		logger: logger,
		events: make(chan orchestrator.Event, eventBuffer),
		done:   make(chan struct{}),
	}

	go n.publishForever()

	return n
}

var _ orchestrator.Notifier = (*Notifier)(nil)

// Notify enqueues the event for publishing and returns immediately. When the
// queue is full the event is dropped, event delivery must never block or
// fail workflow processing.
func (n *Notifier) Notify(ctx context.Context, e orchestrator.Event) {
	select {
	case n.events <- e:
	default:
		n.logger.Debug(ctx, "event queue full, dropping event", orchestrator.MKV{
			"workflow_id": e.WorkflowID,
			"type":        string(e.Type),
		})
	}
}

// publishForever drains the queue one event at a time, preserving per
// workflow ordering. Publish failures are logged and swallowed.
func (n *Notifier) publishForever() {
	defer close(n.done)

	ctx := context.Background()
	for e := range n.events {
		b, err := orchestrator.Marshal(&e)
		if err != nil {
			// NoReturnErr: see above.
			n.logger.Error(ctx, err)
			continue
		}

		err = n.writer.WriteMessages(ctx, kafka.Message{
			Key:   []byte(e.WorkflowID),
			Value: b,
			Time:  e.Timestamp,
		})
		if err != nil {
			// NoReturnErr: see above.
			n.logger.Error(ctx, errors.Wrap(err, "failed to publish event", j.MKV{
				"workflow_id": e.WorkflowID,
				"type":        string(e.Type),
			}))
		}
	}
}

// Close stops accepting events, waits for the queue to drain and closes the
// underlying writer. Notify must not be called after Close.
func (n *Notifier) Close() error {
	close(n.events)
	<-n.done

	w, ok := n.writer.(*kafka.Writer)
	if !ok {
		return nil
	}

	return w.Close()
}
