package events

import (
	"testing"

	"buildledger/core/types"
	"buildledger/storage"
)

type stubEvent struct {
	evt *types.Event
}

func (s stubEvent) EventType() string {
	if s.evt == nil {
		return ""
	}
	return s.evt.Type
}

func (s stubEvent) Event() *types.Event { return s.evt }

func TestOutboxAppendAndList(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()

	outbox, err := NewOutbox(db)
	if err != nil {
		t.Fatalf("new outbox: %v", err)
	}

	outbox.Emit(stubEvent{evt: &types.Event{Type: "escrow.serviceCreated", Attributes: map[string]string{"serviceId": "1"}}})
	outbox.Emit(stubEvent{evt: &types.Event{Type: "feedback.reviewSubmitted", Attributes: map[string]string{"serviceId": "1"}}})
	outbox.Emit(stubEvent{evt: &types.Event{Type: "escrow.paymentReleased", Attributes: map[string]string{"serviceId": "1"}}})

	if got := outbox.Len(); got != 3 {
		t.Fatalf("expected 3 entries, got %d", got)
	}

	all, err := outbox.List(0, "", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(all))
	}
	if all[0].Sequence != 0 || all[2].Sequence != 2 {
		t.Fatalf("sequence numbers out of order: %+v", all)
	}

	escrowOnly, err := outbox.List(0, "escrow.", 0)
	if err != nil {
		t.Fatalf("list filtered: %v", err)
	}
	if len(escrowOnly) != 2 {
		t.Fatalf("expected 2 escrow entries, got %d", len(escrowOnly))
	}

	limited, err := outbox.List(0, "", 1)
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 1 || limited[0].Event.Type != "escrow.serviceCreated" {
		t.Fatalf("unexpected limited result: %+v", limited)
	}
}

func TestOutboxResumesSequence(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()

	first, err := NewOutbox(db)
	if err != nil {
		t.Fatalf("new outbox: %v", err)
	}
	if err := first.Append(&types.Event{Type: "escrow.serviceCreated"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	second, err := NewOutbox(db)
	if err != nil {
		t.Fatalf("reopen outbox: %v", err)
	}
	if err := second.Append(&types.Event{Type: "escrow.serviceCancelled"}); err != nil {
		t.Fatalf("append after reopen: %v", err)
	}
	entries, err := second.List(0, "", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 || entries[1].Sequence != 1 {
		t.Fatalf("sequence did not resume: %+v", entries)
	}
}
