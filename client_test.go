package mqttc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/student/mqttc/internal/packets"
)

// stubBroker accepts exactly one connection, completes the CONNECT/CONNACK
// handshake, and hands the raw connection to fn for the test to drive.
func stubBroker(t *testing.T, fn func(conn net.Conn)) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		header, err := packets.DecodeFixedHeader(conn)
		if err != nil {
			return
		}
		body := make([]byte, header.RemainingLength)
		if _, err := readFull(conn, body); err != nil {
			return
		}
		if header.PacketType != uint8(packets.CONNECT) {
			return
		}

		ack := &packets.ConnackPacket{ReturnCode: packets.ConnAccepted}
		if _, err := ack.WriteTo(conn); err != nil {
			return
		}

		fn(conn)
	}()

	return "tcp://" + ln.Addr().String()
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func readNextPacket(t *testing.T, conn net.Conn) (*packets.FixedHeader, []byte) {
	t.Helper()
	header, err := packets.DecodeFixedHeader(conn)
	require.NoError(t, err)
	body := make([]byte, header.RemainingLength)
	_, err = readFull(conn, body)
	require.NoError(t, err)
	return header, body
}

func dialTestClient(t *testing.T, addr string, opts ...Option) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := DialContext(ctx, addr, append([]Option{WithAutoReconnect(false)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Disconnect(context.Background()) })
	return c
}

func TestDialContextHandshake(t *testing.T) {
	addr := stubBroker(t, func(conn net.Conn) {
		time.Sleep(500 * time.Millisecond)
	})

	c := dialTestClient(t, addr)
	require.True(t, c.IsConnected())
}

func TestDialContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := DialContext(ctx, "tcp://127.0.0.1:1")
	require.Error(t, err)
}

func TestDialContextTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Nanosecond)
	defer cancel()

	_, err := DialContext(ctx, "tcp://192.0.2.1:1883")
	require.Error(t, err)
}

func TestPublishQoS0(t *testing.T) {
	received := make(chan struct{}, 1)
	addr := stubBroker(t, func(conn net.Conn) {
		header, _ := readNextPacket(t, conn)
		if header.PacketType == uint8(packets.PUBLISH) {
			received <- struct{}{}
		}
		time.Sleep(200 * time.Millisecond)
	})

	c := dialTestClient(t, addr)
	require.NoError(t, c.Publish("a/b", []byte("hi")))

	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatal("broker did not receive PUBLISH")
	}
}

func TestPublishQoS1ReceivesPuback(t *testing.T) {
	addr := stubBroker(t, func(conn net.Conn) {
		header, body := readNextPacket(t, conn)
		require.Equal(t, uint8(packets.PUBLISH), header.PacketType)
		pub, err := packets.DecodePublish(body, header, protocolLevel311)
		require.NoError(t, err)

		puback := &packets.PubackPacket{PacketID: pub.PacketID}
		_, _ = puback.WriteTo(conn)

		time.Sleep(200 * time.Millisecond)
	})

	c := dialTestClient(t, addr)
	err := c.Publish("a/b", []byte("hi"), WithQoS(AtLeastOnce))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return c.ackTable.len() == 0
	}, time.Second, 10*time.Millisecond, "PUBACK should clear the in-flight record")
}

func TestSubscribeInstallsOnlyAfterSuback(t *testing.T) {
	addr := stubBroker(t, func(conn net.Conn) {
		header, body := readNextPacket(t, conn)
		require.Equal(t, uint8(packets.SUBSCRIBE), header.PacketType)
		sub, err := packets.DecodeSubscribe(body, protocolLevel311)
		require.NoError(t, err)

		suback := &packets.SubackPacket{PacketID: sub.PacketID, ReturnCodes: []uint8{packets.SubackQoS1}}
		_, _ = suback.WriteTo(conn)

		pub := &packets.PublishPacket{Topic: sub.Topics[0], Payload: []byte("payload"), QoS: 0}
		time.Sleep(50 * time.Millisecond)
		_, _ = pub.WriteTo(conn)

		time.Sleep(200 * time.Millisecond)
	})

	c := dialTestClient(t, addr)

	got := make(chan Message, 1)
	require.NoError(t, c.Subscribe("a/b", AtLeastOnce, func(cl *Client, msg Message) {
		got <- msg
	}))

	select {
	case msg := <-got:
		require.Equal(t, "a/b", msg.Topic)
		require.Equal(t, "payload", string(msg.Payload))
	case <-time.After(time.Second):
		t.Fatal("subscribed handler never received the message")
	}

	require.Equal(t, 1, c.subs.len())
}

func TestSubscribeRejectedBySubackIsNotInstalled(t *testing.T) {
	addr := stubBroker(t, func(conn net.Conn) {
		header, body := readNextPacket(t, conn)
		require.Equal(t, uint8(packets.SUBSCRIBE), header.PacketType)
		sub, err := packets.DecodeSubscribe(body, protocolLevel311)
		require.NoError(t, err)

		suback := &packets.SubackPacket{PacketID: sub.PacketID, ReturnCodes: []uint8{packets.SubackFailure}}
		_, _ = suback.WriteTo(conn)

		time.Sleep(200 * time.Millisecond)
	})

	c := dialTestClient(t, addr)
	require.NoError(t, c.Subscribe("a/b", AtLeastOnce, func(cl *Client, msg Message) {}))

	require.Eventually(t, func() bool {
		return c.ackTable.len() == 0
	}, time.Second, 10*time.Millisecond, "SUBACK should clear the in-flight record even on failure")
	require.Equal(t, 0, c.subs.len())
}

func TestUnsubscribeRemovesImmediately(t *testing.T) {
	addr := stubBroker(t, func(conn net.Conn) {
		header, body := readNextPacket(t, conn)
		require.Equal(t, uint8(packets.SUBSCRIBE), header.PacketType)
		sub, err := packets.DecodeSubscribe(body, protocolLevel311)
		require.NoError(t, err)
		_, _ = (&packets.SubackPacket{PacketID: sub.PacketID, ReturnCodes: []uint8{packets.SubackQoS0}}).WriteTo(conn)

		header, body = readNextPacket(t, conn)
		require.Equal(t, uint8(packets.UNSUBSCRIBE), header.PacketType)
		unsub, err := packets.DecodeUnsubscribe(body, protocolLevel311)
		require.NoError(t, err)
		_, _ = (&packets.UnsubackPacket{PacketID: unsub.PacketID}).WriteTo(conn)

		time.Sleep(200 * time.Millisecond)
	})

	c := dialTestClient(t, addr)
	require.NoError(t, c.Subscribe("a/b", AtMostOnce, func(cl *Client, msg Message) {}))

	require.Eventually(t, func() bool {
		return c.subs.len() == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, c.Unsubscribe("a/b"))
	require.Equal(t, 0, c.subs.len())
}
