package mqttc

import (
	"github.com/student/mqttc/internal/packets"
)

// Subscribe registers a filter with the broker. Subscribe returns once
// the SUBSCRIBE packet has been sent and a SUBACK expectation recorded;
// the filter is not installed into the subscription table — and so does
// not yet receive deliveries — until a matching, non-failure SUBACK
// arrives on the background loop. If handler is nil, matching messages are
// logged at debug level and otherwise dropped.
func (c *Client) Subscribe(topic string, qos QoS, handler MessageHandler) error {
	if err := validateSubscribeTopic(topic, c.opts); err != nil {
		return err
	}
	if handler == nil {
		handler = func(cl *Client, msg Message) {
			cl.logger().WithField("topic", msg.Topic).Debug("message received with no handler")
		}
	}

	c.globalMu.Lock()
	id := c.nextPacketIDLocked()
	c.globalMu.Unlock()

	pkt := &packets.SubscribePacket{
		PacketID: id,
		Topics:   []string{topic},
		QoS:      []uint8{uint8(qos)},
	}

	rec := &ackRecord{
		kind:     ackSuback,
		packetID: id,
		sub:      &pendingSubscription{filter: topic, qos: qos, handler: handler},
		deadline: c.newRetryDeadline(),
	}

	if err := c.sendAndRecord(pkt, rec); err != nil {
		return err
	}
	return nil
}

// Unsubscribe sends UNSUBSCRIBE for topic and records an UNSUBACK
// expectation. It removes topic from the local subscription table as soon
// as the packet has been sent; the arrival of UNSUBACK does not change the
// table.
func (c *Client) Unsubscribe(topic string) error {
	if err := validateSubscribeTopic(topic, c.opts); err != nil {
		return err
	}

	c.globalMu.Lock()
	id := c.nextPacketIDLocked()
	c.globalMu.Unlock()

	pkt := &packets.UnsubscribePacket{PacketID: id, Topics: []string{topic}}

	rec := &ackRecord{
		kind:     ackUnsuback,
		packetID: id,
		sub:      &pendingSubscription{filter: topic},
		deadline: c.newRetryDeadline(),
	}

	if err := c.sendAndRecord(pkt, rec); err != nil {
		return err
	}

	c.subs.remove(topic)
	return nil
}
