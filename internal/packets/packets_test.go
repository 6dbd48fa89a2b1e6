package packets

import (
	"bytes"
	"testing"
)

func roundTrip(t *testing.T, pkt Packet) (*FixedHeader, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if _, err := pkt.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	header, err := DecodeFixedHeader(&buf)
	if err != nil {
		t.Fatalf("DecodeFixedHeader: %v", err)
	}
	body := make([]byte, header.RemainingLength)
	if _, err := buf.Read(body); err != nil && header.RemainingLength > 0 {
		t.Fatalf("read body: %v", err)
	}
	return header, body
}

func TestConnectRoundTrip(t *testing.T) {
	pkt := &ConnectPacket{
		ProtocolName:  "MQTT",
		ProtocolLevel: 4,
		CleanSession:  true,
		WillFlag:      true,
		WillQoS:       1,
		WillTopic:     "last/will",
		WillMessage:   []byte("bye"),
		UsernameFlag:  true,
		Username:      "alice",
		PasswordFlag:  true,
		Password:      "secret",
		KeepAlive:     60,
		ClientID:      "client-1",
	}
	header, body := roundTrip(t, pkt)
	if header.PacketType != CONNECT {
		t.Fatalf("PacketType = %d, want %d", header.PacketType, CONNECT)
	}
	got, err := DecodeConnect(body)
	if err != nil {
		t.Fatalf("DecodeConnect: %v", err)
	}
	if got.ClientID != pkt.ClientID || got.Username != pkt.Username || got.WillTopic != pkt.WillTopic {
		t.Fatalf("got %+v, want %+v", got, pkt)
	}
	if !got.WillFlag || got.WillQoS != 1 {
		t.Fatalf("will flags not preserved: %+v", got)
	}
}

func TestConnackRoundTrip(t *testing.T) {
	pkt := &ConnackPacket{SessionPresent: true, ReturnCode: ConnAccepted}
	_, body := roundTrip(t, pkt)
	got, err := DecodeConnack(body, 4)
	if err != nil {
		t.Fatalf("DecodeConnack: %v", err)
	}
	if !got.SessionPresent || got.ReturnCode != ConnAccepted {
		t.Fatalf("got %+v", got)
	}
}

func TestPublishRoundTripQoS1(t *testing.T) {
	pkt := &PublishPacket{
		Dup:      false,
		QoS:      1,
		Retain:   true,
		Topic:    "a/b",
		PacketID: 42,
		Payload:  []byte("payload"),
	}
	header, body := roundTrip(t, pkt)
	if header.Flags&0x01 == 0 {
		t.Fatal("retain flag not set in fixed header")
	}
	got, err := DecodePublish(body, header, 4)
	if err != nil {
		t.Fatalf("DecodePublish: %v", err)
	}
	if got.Topic != pkt.Topic || got.PacketID != pkt.PacketID || string(got.Payload) != "payload" {
		t.Fatalf("got %+v", got)
	}
}

func TestPublishRoundTripQoS0NoPacketID(t *testing.T) {
	pkt := &PublishPacket{Topic: "x", Payload: []byte("y")}
	header, body := roundTrip(t, pkt)
	got, err := DecodePublish(body, header, 4)
	if err != nil {
		t.Fatalf("DecodePublish: %v", err)
	}
	if got.PacketID != 0 {
		t.Fatalf("PacketID = %d, want 0 for QoS 0", got.PacketID)
	}
}

func TestAckPacketsRoundTrip(t *testing.T) {
	t.Run("puback", func(t *testing.T) {
		_, body := roundTrip(t, &PubackPacket{PacketID: 7})
		got, err := DecodePuback(body, 4)
		if err != nil || got.PacketID != 7 {
			t.Fatalf("got %+v, err %v", got, err)
		}
	})
	t.Run("pubrec", func(t *testing.T) {
		_, body := roundTrip(t, &PubrecPacket{PacketID: 8})
		got, err := DecodePubrec(body, 4)
		if err != nil || got.PacketID != 8 {
			t.Fatalf("got %+v, err %v", got, err)
		}
	})
	t.Run("pubrel", func(t *testing.T) {
		pkt := &PubrelPacket{PacketID: 9}
		header, body := roundTrip(t, pkt)
		if header.Flags != 0x02 {
			t.Fatalf("PUBREL flags = %#x, want 0x02", header.Flags)
		}
		got, err := DecodePubrel(body, 4)
		if err != nil || got.PacketID != 9 {
			t.Fatalf("got %+v, err %v", got, err)
		}
	})
	t.Run("pubcomp", func(t *testing.T) {
		_, body := roundTrip(t, &PubcompPacket{PacketID: 10})
		got, err := DecodePubcomp(body, 4)
		if err != nil || got.PacketID != 10 {
			t.Fatalf("got %+v, err %v", got, err)
		}
	})
}

func TestSubscribeRoundTrip(t *testing.T) {
	pkt := &SubscribePacket{
		PacketID: 11,
		Topics:   []string{"a/+", "b/#"},
		QoS:      []uint8{1, 2},
	}
	header, body := roundTrip(t, pkt)
	if header.Flags != 0x02 {
		t.Fatalf("SUBSCRIBE flags = %#x, want 0x02", header.Flags)
	}
	got, err := DecodeSubscribe(body, 4)
	if err != nil {
		t.Fatalf("DecodeSubscribe: %v", err)
	}
	if len(got.Topics) != 2 || got.Topics[0] != "a/+" || got.QoS[1] != 2 {
		t.Fatalf("got %+v", got)
	}
}

func TestSubackRoundTrip(t *testing.T) {
	pkt := &SubackPacket{PacketID: 12, ReturnCodes: []uint8{SubackQoS1, SubackFailure}}
	_, body := roundTrip(t, pkt)
	got, err := DecodeSuback(body, 4)
	if err != nil {
		t.Fatalf("DecodeSuback: %v", err)
	}
	if len(got.ReturnCodes) != 2 || got.ReturnCodes[1] != SubackFailure {
		t.Fatalf("got %+v", got)
	}
}

func TestUnsubscribeRoundTrip(t *testing.T) {
	pkt := &UnsubscribePacket{PacketID: 13, Topics: []string{"a/b", "c/d"}}
	header, body := roundTrip(t, pkt)
	if header.Flags != 0x02 {
		t.Fatalf("UNSUBSCRIBE flags = %#x, want 0x02", header.Flags)
	}
	got, err := DecodeUnsubscribe(body, 4)
	if err != nil || len(got.Topics) != 2 {
		t.Fatalf("got %+v, err %v", got, err)
	}
}

func TestUnsubackRoundTrip(t *testing.T) {
	_, body := roundTrip(t, &UnsubackPacket{PacketID: 14})
	got, err := DecodeUnsuback(body, 4)
	if err != nil || got.PacketID != 14 {
		t.Fatalf("got %+v, err %v", got, err)
	}
}

func TestPingPackets(t *testing.T) {
	var buf bytes.Buffer
	if _, err := (&PingreqPacket{}).WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	header, err := DecodeFixedHeader(&buf)
	if err != nil || header.PacketType != PINGREQ || header.RemainingLength != 0 {
		t.Fatalf("header %+v, err %v", header, err)
	}

	buf.Reset()
	if _, err := (&PingrespPacket{}).WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	header, err = DecodeFixedHeader(&buf)
	if err != nil || header.PacketType != PINGRESP {
		t.Fatalf("header %+v, err %v", header, err)
	}
}

func TestDisconnectRoundTrip(t *testing.T) {
	_, body := roundTrip(t, &DisconnectPacket{})
	if _, err := DecodeDisconnect(body, 4); err != nil {
		t.Fatalf("DecodeDisconnect: %v", err)
	}
}

func TestReadPacketRejectsOversizedRemainingLength(t *testing.T) {
	var buf bytes.Buffer
	if _, err := (&PublishPacket{Topic: "a", Payload: make([]byte, 100)}).WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if _, err := ReadPacket(&buf, 4, 10); err == nil {
		t.Fatal("expected error for packet exceeding maxIncomingPacket")
	}
}
