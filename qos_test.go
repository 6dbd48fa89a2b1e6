package mqttc

import "testing"

func TestQoSString(t *testing.T) {
	cases := []struct {
		qos  QoS
		want string
	}{
		{AtMostOnce, "at-most-once"},
		{AtLeastOnce, "at-least-once"},
		{ExactlyOnce, "exactly-once"},
		{QoS(9), "unknown"},
	}
	for _, c := range cases {
		if got := c.qos.String(); got != c.want {
			t.Errorf("QoS(%d).String() = %q, want %q", c.qos, got, c.want)
		}
	}
}
