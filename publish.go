package mqttc

import (
	"fmt"

	"github.com/student/mqttc/internal/packets"
)

// PublishOptions holds the per-call configuration for a publish.
type PublishOptions struct {
	QoS    QoS
	Retain bool
}

// PublishOption is a functional option for a Publish call.
type PublishOption func(*PublishOptions)

// WithQoS sets the Quality of Service level for the publish (default 0).
func WithQoS(qos QoS) PublishOption {
	return func(o *PublishOptions) {
		o.QoS = qos
	}
}

// WithRetain sets the retain flag: the broker stores the message and
// delivers it to future subscribers of the topic (default false).
func WithRetain(retain bool) PublishOption {
	return func(o *PublishOptions) {
		o.Retain = retain
	}
}

// Publish sends topic/payload to the broker and, for QoS 1 and 2, blocks
// until the broker's acknowledgment has been recorded for retransmission
// — not until the acknowledgment itself arrives, since that is reconciled
// asynchronously by the background loop. A returned error means the
// message was not queued for delivery at all (validation failure,
// disconnected session, or an ACK table at capacity); it does not mean
// the broker rejected it.
func (c *Client) Publish(topic string, payload []byte, opts ...PublishOption) error {
	o := &PublishOptions{}
	for _, opt := range opts {
		opt(o)
	}

	if err := validatePublishTopic(topic, c.opts); err != nil {
		return err
	}
	if err := validatePayload(payload, c.opts); err != nil {
		return err
	}

	estimated := len(topic) + len(payload) + 9
	if err := c.writeBuf.Grow(estimated); err != nil {
		return fmt.Errorf("mqttc: %w", err)
	}

	if o.QoS == AtMostOnce {
		pkt := &packets.PublishPacket{Topic: topic, Payload: payload, QoS: 0, Retain: o.Retain}
		return c.sendLocked(pkt)
	}

	// Reject before a packet id is assigned or anything reaches the wire:
	// once the broker has a real, id-bearing PUBLISH it expects an ACK for
	// it, so the capacity check must come first.
	if c.ackTable.full() {
		c.markDisconnected(ErrAckTableFull)
		return ErrAckTableFull
	}

	c.globalMu.Lock()
	id := c.nextPacketIDLocked()
	c.globalMu.Unlock()

	pkt := &packets.PublishPacket{
		Topic:    topic,
		Payload:  payload,
		QoS:      uint8(o.QoS),
		Retain:   o.Retain,
		PacketID: id,
	}

	wire, err := pkt.Encode(nil)
	if err != nil {
		return fmt.Errorf("mqttc: failed to encode PUBLISH: %w", err)
	}
	retransmitWire := append([]byte(nil), wire...)
	setDupBit(retransmitWire)

	kind := ackPuback
	if o.QoS == ExactlyOnce {
		kind = ackPubrec
	}

	rec := &ackRecord{
		kind:     kind,
		packetID: id,
		wire:     retransmitWire,
		deadline: c.newRetryDeadline(),
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.globalMu.Lock()
	conn := c.conn
	connected := c.state == StateConnected
	c.globalMu.Unlock()
	if !connected || conn == nil {
		return ErrNotConnected
	}

	n, err := conn.Write(wire)
	if err != nil {
		c.markDisconnected(err)
		return fmt.Errorf("mqttc: %w: %v", ErrSendFailed, err)
	}
	c.packetsSent.Add(1)
	c.bytesSent.Add(uint64(n))
	c.globalMu.Lock()
	if c.lastSent != nil {
		c.lastSent.Set(c.opts.keepAlive)
	}
	c.globalMu.Unlock()

	if err := c.ackTable.record(rec); err != nil {
		c.markDisconnected(err)
		return err
	}
	return nil
}

// setDupBit sets the DUP flag (bit 3 of the fixed-header flags nibble) on
// an already-serialized PUBLISH frame, so a retained retransmit copy
// carries it without re-encoding the whole packet.
func setDupBit(wire []byte) {
	if len(wire) == 0 {
		return
	}
	wire[0] |= 0x08
}
