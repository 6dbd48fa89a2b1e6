package mqttc

// Message is an MQTT message delivered to a subscription handler.
type Message struct {
	// Topic the message was published to.
	Topic string

	// Payload is the message body, copied out of the read buffer at
	// decode time. It is safe to retain beyond the handler call.
	Payload []byte

	// QoS is the delivery quality of service the message was published at.
	QoS QoS

	// Retained reports whether the broker is holding this message as the
	// topic's last-known-good value.
	Retained bool

	// Duplicate reports whether this is a retransmit of a message the
	// broker may have already delivered once.
	Duplicate bool

	// PacketID is the MQTT packet identifier, non-zero only for QoS > 0.
	PacketID uint16
}

// MessageHandler processes a Message delivered to a matching subscription.
// It is invoked from the background I/O loop; it must not block on another
// call into the same Client, or the loop cannot make progress.
type MessageHandler func(c *Client, msg Message)
