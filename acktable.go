package mqttc

import (
	"sync"

	"github.com/student/mqttc/internal/list"
	"github.com/student/mqttc/internal/timer"
)

// defaultMaxInFlight is the default in-flight ACK table capacity.
const defaultMaxInFlight = 64

// ackKind identifies which response a pending ACK record is waiting for.
type ackKind int

const (
	ackPuback ackKind = iota
	ackPubrec
	ackPubrel
	ackSuback
	ackUnsuback

	// ackPubrelInbound marks an inbound QoS-2 PUBLISH this client has
	// PUBREC'd and is now waiting on the broker's PUBREL for, keyed by
	// the packet id the broker assigned. Its presence is what
	// de-duplicates a redelivered PUBLISH with the same id; it carries
	// no retransmit frame of its own, since nothing is resent from this
	// side while it is outstanding.
	ackPubrelInbound
)

// ackRecord is a single in-flight request awaiting acknowledgment: a
// published QoS>0 message awaiting PUBACK/PUBREC, a QoS-2 exchange
// awaiting PUBCOMP, an inbound QoS-2 PUBLISH awaiting the broker's
// PUBREL, or a SUBSCRIBE/UNSUBSCRIBE awaiting its *ACK.
type ackRecord struct {
	kind     ackKind
	packetID uint16

	// wire holds the serialized frame to retransmit on a deadline scan.
	// Empty for records that are never retransmitted (an inbound QoS-2
	// PUBLISH awaiting PUBREL, a SUBSCRIBE or UNSUBSCRIBE awaiting its
	// *ACK).
	wire []byte

	// sub is populated for a pending SUBSCRIBE record: installed into
	// the subscription table only once SUBACK confirms it.
	sub *pendingSubscription

	deadline *timer.Deadline
}

type pendingSubscription struct {
	filter  string
	qos     QoS
	handler MessageHandler
}

// scanMode selects how scan reacts to each record.
type scanMode int

const (
	// scanImmediate visits every record unconditionally, used right
	// after a reconnect to kick all pending requests back onto the wire.
	scanImmediate scanMode = iota

	// scanDeadline visits only records whose deadline has expired,
	// used by the steady-state loop to drive retransmission.
	scanDeadline
)

// ackTable is the bounded set of in-flight ACK records. It is safe for
// concurrent use: its own mutex guards every operation. Callers that send
// a request hold the client's write lock across the write and the record
// (see sendAndRecord in client.go), so a response cannot arrive before its
// record exists.
type ackTable struct {
	mu    sync.Mutex
	cap   int
	byKey map[ackKey]*list.Element[*ackRecord]
	order *list.List[*ackRecord]
}

type ackKey struct {
	kind     ackKind
	packetID uint16
}

func newAckTable(capacity int) *ackTable {
	if capacity <= 0 {
		capacity = defaultMaxInFlight
	}
	return &ackTable{
		cap:   capacity,
		byKey: make(map[ackKey]*list.Element[*ackRecord]),
		order: list.New[*ackRecord](),
	}
}

// record inserts rec, keyed by (kind, packetID). It reports
// ErrAckNodeExists if a record with the same key is already present, and
// ErrAckTableFull if the table is at capacity.
func (t *ackTable) record(rec *ackRecord) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := ackKey{kind: rec.kind, packetID: rec.packetID}
	if _, exists := t.byKey[key]; exists {
		return ErrAckNodeExists
	}
	if t.order.Len() >= t.cap {
		return ErrAckTableFull
	}
	t.byKey[key] = t.order.PushBack(rec)
	return nil
}

// unrecord removes and returns the record for (kind, packetID), or nil if
// none is present.
func (t *ackTable) unrecord(kind ackKind, packetID uint16) *ackRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := ackKey{kind: kind, packetID: packetID}
	elem, ok := t.byKey[key]
	if !ok {
		return nil
	}
	delete(t.byKey, key)
	t.order.Remove(elem)
	return elem.Value
}

// get returns the record for (kind, packetID) without removing it.
func (t *ackTable) get(kind ackKind, packetID uint16) *ackRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	elem, ok := t.byKey[ackKey{kind: kind, packetID: packetID}]
	if !ok {
		return nil
	}
	return elem.Value
}

// len reports the number of in-flight records.
func (t *ackTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.order.Len()
}

// full reports whether the table is at capacity, so a caller can reject a
// new request before it allocates a packet id or writes to the wire.
func (t *ackTable) full() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.order.Len() >= t.cap
}

// scan visits records per mode, calling fn for each one selected; fn's
// boolean result is not used. scan does not remove records itself — the
// caller removes them via unrecord once truly abandoned.
func (t *ackTable) scan(mode scanMode, fn func(rec *ackRecord) (resend bool)) {
	t.mu.Lock()
	snapshot := make([]*ackRecord, 0, t.order.Len())
	t.order.Do(func(e *list.Element[*ackRecord]) {
		snapshot = append(snapshot, e.Value)
	})
	t.mu.Unlock()

	for _, rec := range snapshot {
		if mode == scanDeadline && (rec.deadline == nil || !rec.deadline.Expired()) {
			continue
		}
		fn(rec)
	}
}

// clear empties the table, used when the session drops to CleanSession
// and every pending expectation is abandoned.
func (t *ackTable) clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byKey = make(map[ackKey]*list.Element[*ackRecord])
	t.order = list.New[*ackRecord]()
}
