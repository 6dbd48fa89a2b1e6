package mqttc

import (
	"bytes"
	"fmt"

	"github.com/student/mqttc/internal/packets"
)

// encodeFrame serializes pkt into a standalone byte slice, for ACK
// records that need to retain their wire form for retransmission.
func encodeFrame(pkt packets.Packet) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := pkt.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// dispatch routes one decoded packet to its handler. It is called only
// from the background loop goroutine, so it never races with itself; it
// still takes the locks the rest of the client's API uses, since
// Publish/Subscribe/Unsubscribe run concurrently with it.
func (c *Client) dispatch(pkt packets.Packet) error {
	switch p := pkt.(type) {
	case *packets.ConnackPacket:
		// A second CONNACK on an already-connected session has no
		// defined meaning; ignore it.
		return nil

	case *packets.PublishPacket:
		return c.dispatchPublish(p)

	case *packets.PubackPacket:
		c.ackTable.unrecord(ackPuback, p.PacketID)
		return nil

	case *packets.PubrecPacket:
		return c.dispatchPubrec(p)

	case *packets.PubrelPacket:
		return c.dispatchPubrel(p)

	case *packets.PubcompPacket:
		c.ackTable.unrecord(ackPubrel, p.PacketID)
		return nil

	case *packets.SubackPacket:
		return c.dispatchSuback(p)

	case *packets.UnsubackPacket:
		c.ackTable.unrecord(ackUnsuback, p.PacketID)
		return nil

	case *packets.PingrespPacket:
		c.pingOutstanding.Store(false)
		return nil

	case *packets.DisconnectPacket:
		return fmt.Errorf("mqttc: broker sent DISCONNECT: %w", ErrClientDisconnected)

	default:
		c.opts.logger.WithField("type", fmt.Sprintf("%T", pkt)).Warn("unexpected packet from broker")
		return nil
	}
}

func (c *Client) dispatchPublish(p *packets.PublishPacket) error {
	msg := Message{
		Topic:     p.Topic,
		Payload:   p.Payload,
		QoS:       QoS(p.QoS),
		Retained:  p.Retain,
		Duplicate: p.Dup,
		PacketID:  p.PacketID,
	}

	switch msg.QoS {
	case AtMostOnce:
		c.deliver(msg)

	case AtLeastOnce:
		if err := c.sendLocked(&packets.PubackPacket{PacketID: p.PacketID}); err != nil {
			return err
		}
		c.deliver(msg)

	case ExactlyOnce:
		already := c.ackTable.get(ackPubrelInbound, p.PacketID) != nil
		if !already {
			err := c.ackTable.record(&ackRecord{kind: ackPubrelInbound, packetID: p.PacketID})
			if err != nil {
				return err
			}
		}

		if err := c.sendLocked(&packets.PubrecPacket{PacketID: p.PacketID}); err != nil {
			return err
		}
		if !already {
			c.deliver(msg)
		}
	}
	return nil
}

func (c *Client) deliver(msg Message) {
	matches := c.subs.match(msg.Topic)
	if len(matches) == 0 {
		if c.opts.defaultPublishHandler != nil {
			c.opts.defaultPublishHandler(c, msg)
		}
		return
	}
	for _, sub := range matches {
		sub.handler(c, msg)
	}
}

func (c *Client) dispatchPubrec(p *packets.PubrecPacket) error {
	c.ackTable.unrecord(ackPubrec, p.PacketID)
	rel := &packets.PubrelPacket{PacketID: p.PacketID}
	wire, err := encodeFrame(rel)
	if err != nil {
		return err
	}
	if err := c.sendLocked(rel); err != nil {
		return err
	}
	return c.ackTable.record(&ackRecord{
		kind:     ackPubrel,
		packetID: p.PacketID,
		wire:     wire,
		deadline: c.newRetryDeadline(),
	})
}

func (c *Client) dispatchPubrel(p *packets.PubrelPacket) error {
	c.ackTable.unrecord(ackPubrelInbound, p.PacketID)
	return c.sendLocked(&packets.PubcompPacket{PacketID: p.PacketID})
}

func (c *Client) dispatchSuback(p *packets.SubackPacket) error {
	rec := c.ackTable.unrecord(ackSuback, p.PacketID)
	if rec == nil || rec.sub == nil {
		return nil
	}
	if len(p.ReturnCodes) == 0 || p.ReturnCodes[0] == packets.SubackFailure {
		return nil
	}
	c.subs.install(rec.sub.filter, rec.sub.qos, rec.sub.handler)
	return nil
}
