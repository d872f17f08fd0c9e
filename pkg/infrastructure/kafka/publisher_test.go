package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/rs/zerolog"

	"github.com/vsinha/fruitalloc/pkg/infrastructure/events"
)

func TestPublisher_Handle(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var msg Message
		if err := json.Unmarshal(val, &msg); err != nil {
			return err
		}
		if msg.Type != events.AllocationShortfallEvent || msg.Stream != events.LedgerStream {
			return fmt.Errorf("unexpected message %+v", msg)
		}
		return nil
	})

	p := NewPublisher(producer, "", zerolog.Nop())
	defer p.Close()

	event := events.NewEvent(events.AllocationShortfallEvent, events.LedgerStream, events.AllocationShortfall{CustomerID: "Acme"})
	if err := p.Handle(event); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
}

func TestPublisher_SendFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewPublisher(producer, "allocations", zerolog.Nop())
	defer p.Close()

	err := p.Handle(events.NewEvent(events.AllocationCommittedEvent, events.LedgerStream, nil))
	if !errors.Is(err, sarama.ErrOutOfBrokers) {
		t.Errorf("Expected ErrOutOfBrokers, got %v", err)
	}
}

func TestPublisher_CanHandle(t *testing.T) {
	p := NewPublisher(mocks.NewSyncProducer(t, nil), "", zerolog.Nop(), events.AllocationCommittedEvent)

	if !p.CanHandle(events.AllocationCommittedEvent) {
		t.Error("Expected committed events to be forwarded")
	}
	if p.CanHandle(events.AllocationShortfallEvent) {
		t.Error("Expected shortfall events to be filtered out")
	}
	if types := p.EventTypes(); len(types) != 1 {
		t.Errorf("Expected 1 event type, got %v", types)
	}

	all := NewPublisher(mocks.NewSyncProducer(t, nil), "", zerolog.Nop())
	if len(all.EventTypes()) != len(events.AllEventTypes) {
		t.Errorf("Expected every ledger event type, got %v", all.EventTypes())
	}
}

func TestPublisher_SubscribedToStore(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndSucceed()

	store := events.NewInMemoryEventStore()
	p := NewPublisher(producer, "", zerolog.Nop(), events.AllocationRemovedEvent)
	if err := store.Subscribe(p.EventTypes(), p); err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}

	publisher := events.NewPublisher(store)
	_ = publisher.Publish(events.LedgerStream, events.AllocationRemovedEvent, events.AllocationRemoved{Reason: "manual"})
	_ = publisher.Publish(events.LedgerStream, events.AllocationCommittedEvent, events.AllocationCommitted{})
	store.Wait()

	if err := producer.Close(); err != nil {
		t.Errorf("Expected every expectation to be met, got %v", err)
	}
}
