package daemon

import (
	"testing"

	"github.com/pinsync/pinsync/internal/schema"
)

func TestBroker_PublishSubscribe(t *testing.T) {
	b := NewBroker()
	ch1, cancel1 := b.Subscribe(1)
	ch2, cancel2 := b.Subscribe(1)
	defer cancel2()

	if n := b.Publish(schema.SyncStatus{IsSyncing: true}); n != 2 {
		t.Errorf("Publish() delivered to %d, want 2", n)
	}
	if st := <-ch1; !st.IsSyncing {
		t.Error("subscriber 1 got wrong status")
	}
	if st := <-ch2; !st.IsSyncing {
		t.Error("subscriber 2 got wrong status")
	}

	cancel1()
	cancel1()
	if _, ok := <-ch1; ok {
		t.Error("cancelled channel should be closed")
	}
	if b.Len() != 1 {
		t.Errorf("Len() = %d, want 1", b.Len())
	}
}

func TestBroker_FullSubscriberDoesNotBlock(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe(1)
	defer cancel()

	b.Publish(schema.SyncStatus{PendingChanges: 1})
	if n := b.Publish(schema.SyncStatus{PendingChanges: 2}); n != 0 {
		t.Errorf("Publish() to full subscriber delivered %d", n)
	}
	if st := <-ch; st.PendingChanges != 1 {
		t.Errorf("got PendingChanges=%d, want the first update", st.PendingChanges)
	}
}

func TestBroker_PublishCopies(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe(1)
	defer cancel()

	msg := "boom"
	st := schema.SyncStatus{Error: &msg}
	b.Publish(st)
	msg = "changed"

	got := <-ch
	if got.ErrorMessage() != "boom" {
		t.Errorf("subscriber saw %q, want a copy", got.ErrorMessage())
	}
}

func TestBroker_Close(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe(1)
	b.Close()
	b.Close()
	cancel()

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after Close()")
	}
	late, _ := b.Subscribe(1)
	if _, ok := <-late; ok {
		t.Error("subscribing to a closed broker should return a closed channel")
	}
	if n := b.Publish(schema.SyncStatus{}); n != 0 {
		t.Errorf("Publish() after Close delivered %d", n)
	}
}
