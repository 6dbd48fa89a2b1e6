package mqttc

import (
	"sync"

	"github.com/student/mqttc/internal/list"
)

// subscription is a confirmed entry in the subscription table: a topic
// filter this client has successfully subscribed to, with the handler to
// invoke for a matching PUBLISH.
type subscription struct {
	filter  string
	qos     QoS
	handler MessageHandler
}

// subscriptionTable holds every confirmed subscription. Entries made by
// Subscribe are installed only after a non-failure SUBACK return code
// confirms the broker accepted the filter — never optimistically at
// SUBSCRIBE time — so a rejected filter never shadows delivery decisions.
// Filters registered with WithSubscription are the exception: they are
// installed at NewClient time (and again on reconnect), whatever their
// SUBACK says.
type subscriptionTable struct {
	mu      sync.RWMutex
	entries *list.List[*subscription]
	byName  map[string]*list.Element[*subscription]
}

func newSubscriptionTable() *subscriptionTable {
	return &subscriptionTable{
		entries: list.New[*subscription](),
		byName:  make(map[string]*list.Element[*subscription]),
	}
}

// install adds or replaces the entry for filter. A second install call
// for the same filter string (e.g. resubscribing with a new handler)
// replaces the existing entry rather than creating a duplicate.
func (t *subscriptionTable) install(filter string, qos QoS, handler MessageHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if elem, ok := t.byName[filter]; ok {
		elem.Value.qos = qos
		elem.Value.handler = handler
		return
	}
	elem := t.entries.PushBack(&subscription{filter: filter, qos: qos, handler: handler})
	t.byName[filter] = elem
}

// remove deletes the entry for filter, if present.
func (t *subscriptionTable) remove(filter string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	elem, ok := t.byName[filter]
	if !ok {
		return
	}
	t.entries.Remove(elem)
	delete(t.byName, filter)
}

// match returns every subscription whose filter matches topic, in
// insertion order. A PUBLISH may satisfy more than one overlapping
// filter (e.g. "a/+" and "a/#"), and both handlers are invoked.
func (t *subscriptionTable) match(topic string) []*subscription {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var matches []*subscription
	t.entries.Do(func(e *list.Element[*subscription]) {
		if MatchTopic(e.Value.filter, topic) {
			matches = append(matches, e.Value)
		}
	})
	return matches
}

// all returns every confirmed filter and its QoS, in insertion order.
// Used to rebuild SUBSCRIBE packets for the resubscribe-on-reconnect path.
func (t *subscriptionTable) all() []subscription {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]subscription, 0, t.entries.Len())
	t.entries.Do(func(e *list.Element[*subscription]) {
		out = append(out, *e.Value)
	})
	return out
}

// len reports the number of confirmed subscriptions.
func (t *subscriptionTable) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.entries.Len()
}

// clear empties the table, used when the session drops to CleanSession and
// every confirmed filter is abandoned along with it.
func (t *subscriptionTable) clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = list.New[*subscription]()
	t.byName = make(map[string]*list.Element[*subscription])
}
