package mqttc

import (
	"context"
	"fmt"
	"io"
	"math/rand"

	"github.com/student/mqttc/internal/packets"
)

const protocolLevel311 uint8 = 4

func (c *Client) buildConnectPacket() *packets.ConnectPacket {
	pkt := &packets.ConnectPacket{
		ProtocolName:  "MQTT",
		ProtocolLevel: protocolLevel311,
		CleanSession:  c.opts.cleanSession,
		KeepAlive:     uint16(c.opts.keepAlive.Seconds()),
		ClientID:      c.opts.clientID,
	}

	if c.opts.username != "" {
		pkt.UsernameFlag = true
		pkt.Username = c.opts.username
	}
	if c.opts.password != "" {
		pkt.PasswordFlag = true
		pkt.Password = c.opts.password
	}

	c.willMu.RLock()
	w := c.opts.will
	c.willMu.RUnlock()
	if w != nil {
		pkt.WillFlag = true
		pkt.WillTopic = w.Topic
		pkt.WillMessage = w.Payload
		pkt.WillQoS = uint8(w.QoS)
		pkt.WillRetain = w.Retained
	}

	return pkt
}

// performHandshake sends CONNECT on conn and waits for CONNACK, enforcing
// opts.connectTimeout via the context deadline the caller supplies.
func performHandshake(ctx context.Context, conn Transport, connectPkt *packets.ConnectPacket) (*packets.ConnackPacket, error) {
	type result struct {
		ack *packets.ConnackPacket
		err error
	}

	if _, err := connectPkt.WriteTo(conn); err != nil {
		return nil, fmt.Errorf("mqttc: failed to send CONNECT: %w", err)
	}

	done := make(chan result, 1)
	go func() {
		pkt, err := packets.ReadPacket(conn, protocolLevel311, 0)
		if err != nil {
			done <- result{nil, err}
			return
		}
		ack, ok := pkt.(*packets.ConnackPacket)
		if !ok {
			done <- result{nil, fmt.Errorf("mqttc: expected CONNACK, got %s", packets.PacketNames[pkt.Type()])}
			return
		}
		done <- result{ack, nil}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("mqttc: %w waiting for CONNACK: %w", ErrConnectFailed, ctx.Err())
	case r := <-done:
		if r.err != nil {
			if r.err == io.EOF {
				return nil, fmt.Errorf("mqttc: connection closed before CONNACK: %w", ErrConnectFailed)
			}
			return nil, fmt.Errorf("mqttc: failed to read CONNACK: %w", r.err)
		}
		return r.ack, nil
	}
}

// generateClientID produces a random client identifier, used when the
// caller leaves WithClientID unset and CleanSession is true.
func generateClientID() string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, MaxClientIDLength)
	for i := range b {
		b[i] = charset[rand.Intn(len(charset))]
	}
	return "mqttc-" + string(b[:16])
}

// nextPacketIDLocked returns the next packet identifier, wrapping 1..65535 and
// skipping 0 (reserved: MQTT-2.3.1-1). Callers must hold c.globalMu.
func (c *Client) nextPacketIDLocked() uint16 {
	c.packetID++
	if c.packetID == 0 {
		c.packetID = 1
	}
	return c.packetID
}
