package hub

import (
	"fmt"
	"sync"
)

// Group name builders. These formats are part of the wire contract and must
// stay stable for external tooling that inspects group traffic.
func UserNotifications(userID uint) string {
	return fmt.Sprintf("user_%d_notifications", userID)
}

func BusinessNotifications(businessID uint) string {
	return fmt.Sprintf("business_%d_notifications", businessID)
}

func BusinessActivity(businessID uint) string {
	return fmt.Sprintf("business_%d_activity", businessID)
}

func BusinessChat(businessID uint) string {
	return fmt.Sprintf("business_%d_chat", businessID)
}

// Subscriber receives payloads published to groups it is subscribed to.
// Enqueue must not block; it returns false once the subscriber can no longer
// accept deliveries (transport closed or hopelessly backed up).
type Subscriber interface {
	Enqueue(payload []byte) bool
}

// Hub maps group names to their live subscribers and fans published payloads
// out to all of them. Publish order is delivery order within a group.
type Hub struct {
	mu     sync.Mutex
	groups map[string]map[Subscriber]struct{}
}

// New creates an empty hub.
func New() *Hub {
	return &Hub{
		groups: make(map[string]map[Subscriber]struct{}),
	}
}

// Subscribe attaches a subscriber to a named group. A subscriber may belong
// to any number of groups; subscribing twice is a no-op.
func (h *Hub) Subscribe(group string, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.groups[group]
	if !ok {
		members = make(map[Subscriber]struct{})
		h.groups[group] = members
	}
	members[sub] = struct{}{}
}

// Unsubscribe detaches a subscriber from a group. Safe to call for a
// subscriber that was never subscribed.
func (h *Hub) Unsubscribe(group string, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.groups[group]
	if !ok {
		return
	}
	delete(members, sub)
	if len(members) == 0 {
		delete(h.groups, group)
	}
}

// Publish delivers the payload to every current subscriber of the group.
// Delivery is fire-and-forget: the payload is handed to each subscriber's
// outbound queue and a dead subscriber is dropped from the group without
// affecting the remaining deliveries.
func (h *Hub) Publish(group string, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.groups[group]
	if !ok {
		return
	}
	for sub := range members {
		if !sub.Enqueue(payload) {
			delete(members, sub)
		}
	}
	if len(members) == 0 {
		delete(h.groups, group)
	}
}

// GroupSize returns the number of live subscribers in a group.
func (h *Hub) GroupSize(group string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.groups[group])
}
