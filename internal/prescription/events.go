package prescription

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperledger/fabric-gateway/pkg/client"
	"go.uber.org/zap"
)

// Chaincode event names, one per mutating operation.
const (
	EventCreate = "CreatePrescription"
	EventUpdate = "UpdatePrescription"
	EventDelete = "DeletePrescription"
)

// Event is a decoded chaincode event in ledger commit order.
type Event struct {
	BlockNumber   uint64
	TransactionID string
	Name          string
	Prescription  *Prescription
}

// Sink receives decoded events. Implementations must tolerate duplicates;
// the consumer never reorders or deduplicates.
type Sink interface {
	HandleEvent(ctx context.Context, event *Event) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, event *Event) error

func (f SinkFunc) HandleEvent(ctx context.Context, event *Event) error {
	return f(ctx, event)
}

// EventSource abstracts the gateway network's chaincode event subscription.
// *client.Network satisfies it.
type EventSource interface {
	ChaincodeEvents(ctx context.Context, chaincodeName string, options ...client.ChaincodeEventsOption) (<-chan *client.ChaincodeEvent, error)
}

// Listener consumes the live chaincode event stream from the current ledger
// head. Cancelling the context passed to Start is the clean shutdown path;
// any other stream termination is reported to the fault handler.
type Listener struct {
	source    EventSource
	chaincode string
	sink      Sink
	onFault   func(error)
	logger    *zap.Logger
}

func NewListener(source EventSource, chaincode string, sink Sink, onFault func(error), logger *zap.Logger) *Listener {
	return &Listener{
		source:    source,
		chaincode: chaincode,
		sink:      sink,
		onFault:   onFault,
		logger:    logger,
	}
}

// Start subscribes and launches the background consumer. It returns once the
// subscription is established; consumption never blocks the caller.
func (l *Listener) Start(ctx context.Context) error {
	events, err := l.source.ChaincodeEvents(ctx, l.chaincode)
	if err != nil {
		return fmt.Errorf("%w: subscribing: %v", ErrStreamFault, err)
	}

	l.logger.Info("chaincode event listening started", zap.String("chaincode", l.chaincode))
	go l.consume(ctx, events)
	return nil
}

func (l *Listener) consume(ctx context.Context, events <-chan *client.ChaincodeEvent) {
	for event := range events {
		l.dispatch(ctx, event)
	}

	// The stream only ends by cancellation or by failure. Deliberate
	// unsubscribe is recognized by the cancellation reason, not swallowed
	// wholesale.
	if errors.Is(ctx.Err(), context.Canceled) {
		l.logger.Info("chaincode event listening stopped")
		return
	}
	l.onFault(fmt.Errorf("%w: event stream closed unexpectedly", ErrStreamFault))
}

func (l *Listener) dispatch(ctx context.Context, raw *client.ChaincodeEvent) {
	event, err := decodeEvent(raw)
	if err != nil {
		l.logger.Warn("discarding undecodable chaincode event",
			zap.String("event", raw.EventName),
			zap.String("transaction_id", raw.TransactionID),
			zap.Error(err))
		return
	}

	l.logger.Info("chaincode event received",
		zap.String("event", event.Name),
		zap.String("id", event.Prescription.ID),
		zap.Uint64("block", event.BlockNumber))

	if err := l.sink.HandleEvent(ctx, event); err != nil {
		l.logger.Error("event sink failed",
			zap.String("event", event.Name),
			zap.Error(err))
	}
}

// Replay consumes the event stream from startBlock in commit order, handing
// each event to sink, and terminates after observing a DeletePrescription
// event, the logical end of a prescription's history. The subscription is
// released on every exit path.
func Replay(ctx context.Context, source EventSource, chaincode string, startBlock uint64, sink Sink) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, err := source.ChaincodeEvents(ctx, chaincode, client.WithStartBlock(startBlock))
	if err != nil {
		return fmt.Errorf("%w: subscribing from block %d: %v", ErrStreamFault, startBlock, err)
	}

	for raw := range events {
		event, err := decodeEvent(raw)
		if err != nil {
			return err
		}
		if err := sink.HandleEvent(ctx, event); err != nil {
			return err
		}
		if event.Name == EventDelete {
			return nil
		}
	}

	if errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return fmt.Errorf("%w: replay stream closed before completion", ErrStreamFault)
}

func decodeEvent(raw *client.ChaincodeEvent) (*Event, error) {
	p, err := Decode(raw.Payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		BlockNumber:   raw.BlockNumber,
		TransactionID: raw.TransactionID,
		Name:          raw.EventName,
		Prescription:  p,
	}, nil
}
