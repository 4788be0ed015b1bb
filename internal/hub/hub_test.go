package hub

import (
	"sync"
	"testing"
)

// fakeSubscriber records deliveries in order. Dead subscribers refuse all
// deliveries the way a closed connection does.
type fakeSubscriber struct {
	mu   sync.Mutex
	got  [][]byte
	dead bool
}

func (f *fakeSubscriber) Enqueue(payload []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dead {
		return false
	}
	f.got = append(f.got, payload)
	return true
}

func (f *fakeSubscriber) received() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.got))
	copy(out, f.got)
	return out
}

func TestGroupNames(t *testing.T) {
	if got := UserNotifications(42); got != "user_42_notifications" {
		t.Errorf("Expected user_42_notifications, got %s", got)
	}
	if got := BusinessNotifications(7); got != "business_7_notifications" {
		t.Errorf("Expected business_7_notifications, got %s", got)
	}
	if got := BusinessActivity(7); got != "business_7_activity" {
		t.Errorf("Expected business_7_activity, got %s", got)
	}
	if got := BusinessChat(7); got != "business_7_chat" {
		t.Errorf("Expected business_7_chat, got %s", got)
	}
}

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	h := New()
	s1 := &fakeSubscriber{}
	s2 := &fakeSubscriber{}
	h.Subscribe("business_1_chat", s1)
	h.Subscribe("business_1_chat", s2)

	h.Publish("business_1_chat", []byte("hello"))

	for i, s := range []*fakeSubscriber{s1, s2} {
		got := s.received()
		if len(got) != 1 || string(got[0]) != "hello" {
			t.Errorf("Subscriber %d: expected one delivery of \"hello\", got %v", i+1, got)
		}
	}
}

func TestPublishOrderIsDeliveryOrder(t *testing.T) {
	h := New()
	s1 := &fakeSubscriber{}
	s2 := &fakeSubscriber{}
	h.Subscribe("business_1_activity", s1)
	h.Subscribe("business_1_activity", s2)

	h.Publish("business_1_activity", []byte("E1"))
	h.Publish("business_1_activity", []byte("E2"))

	for i, s := range []*fakeSubscriber{s1, s2} {
		got := s.received()
		if len(got) != 2 {
			t.Fatalf("Subscriber %d: expected 2 deliveries, got %d", i+1, len(got))
		}
		if string(got[0]) != "E1" || string(got[1]) != "E2" {
			t.Errorf("Subscriber %d: expected E1 then E2, got %s then %s", i+1, got[0], got[1])
		}
	}
}

func TestDeadSubscriberDoesNotFailPublish(t *testing.T) {
	h := New()
	dead := &fakeSubscriber{dead: true}
	live := &fakeSubscriber{}
	h.Subscribe("business_1_notifications", dead)
	h.Subscribe("business_1_notifications", live)

	h.Publish("business_1_notifications", []byte("event"))

	if got := live.received(); len(got) != 1 || string(got[0]) != "event" {
		t.Errorf("Expected live subscriber to receive the event, got %v", got)
	}
	// Dead subscriber is pruned from the group
	if size := h.GroupSize("business_1_notifications"); size != 1 {
		t.Errorf("Expected group size 1 after pruning, got %d", size)
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	h := New()
	s := &fakeSubscriber{}

	// Unsubscribing a never-subscribed connection is a no-op
	h.Unsubscribe("business_1_chat", s)

	h.Subscribe("business_1_chat", s)
	h.Unsubscribe("business_1_chat", s)
	h.Unsubscribe("business_1_chat", s)

	h.Publish("business_1_chat", []byte("event"))
	if got := s.received(); len(got) != 0 {
		t.Errorf("Expected no deliveries after unsubscribe, got %v", got)
	}
	if size := h.GroupSize("business_1_chat"); size != 0 {
		t.Errorf("Expected empty group, got size %d", size)
	}
}

func TestPublishToUnknownGroupIsNoOp(t *testing.T) {
	h := New()
	h.Publish("business_99_chat", []byte("event"))
}

func TestSubscriberInMultipleGroups(t *testing.T) {
	h := New()
	s := &fakeSubscriber{}
	h.Subscribe("user_1_notifications", s)
	h.Subscribe("business_1_notifications", s)

	h.Publish("user_1_notifications", []byte("private"))
	h.Publish("business_1_notifications", []byte("broadcast"))

	got := s.received()
	if len(got) != 2 {
		t.Fatalf("Expected 2 deliveries, got %d", len(got))
	}
	if string(got[0]) != "private" || string(got[1]) != "broadcast" {
		t.Errorf("Expected private then broadcast, got %s then %s", got[0], got[1])
	}
}

func TestConcurrentPublishAndSubscribe(t *testing.T) {
	h := New()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := &fakeSubscriber{}
			h.Subscribe("business_1_chat", s)
			h.Publish("business_1_chat", []byte("event"))
			h.Unsubscribe("business_1_chat", s)
		}()
	}
	wg.Wait()
	if size := h.GroupSize("business_1_chat"); size != 0 {
		t.Errorf("Expected empty group after all unsubscribes, got size %d", size)
	}
}
