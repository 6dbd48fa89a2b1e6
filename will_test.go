package mqttc

import "testing"

func TestSetWillTakesEffectOnlyOnNextConnect(t *testing.T) {
	c, err := NewClient("tcp://127.0.0.1:1883", WithClientID("will-test"))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	c.SetWill("status/offline", []byte("bye"), AtLeastOnce, true)

	pkt := c.buildConnectPacket()
	if !pkt.WillFlag || pkt.WillTopic != "status/offline" || string(pkt.WillMessage) != "bye" {
		t.Fatalf("buildConnectPacket did not carry the configured will: %+v", pkt)
	}
	if pkt.WillQoS != uint8(AtLeastOnce) || !pkt.WillRetain {
		t.Fatalf("will QoS/retain not carried: %+v", pkt)
	}

	c.ClearWill()
	pkt = c.buildConnectPacket()
	if pkt.WillFlag {
		t.Fatal("ClearWill should remove the will from the next CONNECT")
	}
}
