// Package mqttc provides an MQTT 3.1.1 client for embedded and
// server-side use. A Client maintains a single long-lived session with a
// broker: one background I/O loop services the transport, while
// Publish, Subscribe, and Unsubscribe are called from any goroutine.
//
// # Quick Start
//
//	client, err := mqttc.Dial("tcp://localhost:1883",
//	    mqttc.WithClientID("my-client"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Disconnect(context.Background())
//
//	err = client.Publish("sensors/temperature", []byte("22.5"), mqttc.WithQoS(mqttc.AtLeastOnce))
//
//	client.Subscribe("sensors/+/temperature", mqttc.AtLeastOnce,
//	    func(c *mqttc.Client, msg mqttc.Message) {
//	        fmt.Printf("%s: %s\n", msg.Topic, msg.Payload)
//	    })
//
// # Connection options
//
//   - WithClientID, WithCredentials — identity
//   - WithKeepAlive, WithConnectTimeout, WithReconnectRetryDelay — timing
//   - WithCleanSession, WithAutoReconnect — session lifecycle
//   - WithTLS, WithDialer — transport
//   - WithWill — Last Will and Testament
//   - WithMaxInFlight, WithReadBufferSize, WithWriteBufferSize — resource limits
//   - WithLogger — structured diagnostics
//
// # Quality of service
//
// All three MQTT QoS levels are supported: AtMostOnce (fire and forget),
// AtLeastOnce (PUBACK-acknowledged, may redeliver), and ExactlyOnce
// (PUBREC/PUBREL/PUBCOMP-assured). Publish blocks only long enough to
// send the frame and record the delivery expectation; the broker's
// actual acknowledgment is reconciled by the background loop.
//
// # Wildcards
//
// Subscription filters may use '+' for a single topic level and '#' for
// the remaining levels, matching OASIS MQTT 3.1.1 §4.7.
//
// # Reconnection
//
// With WithAutoReconnect (the default), a lost connection is retried by
// the background loop: every confirmed subscription is reissued and
// every in-flight QoS-1/QoS-2 exchange is retransmitted once the new
// CONNACK arrives.
package mqttc
