package mqttc

import (
	"fmt"
	"io"

	"github.com/student/mqttc/internal/packets"
)

// readPacket reads one complete MQTT packet from r, decoding the fixed
// header directly so an oversized packet can be drained (§4.1) instead of
// surfacing a raw decode error that would desynchronize framing. buf is
// reused across calls; it grows (up to maxIncoming) to fit the largest
// packet seen so far.
func readPacket(r io.Reader, buf *packetBuffer, maxIncoming int) (packets.Packet, error) {
	header, err := packets.DecodeFixedHeader(r)
	if err != nil {
		return nil, err
	}

	limit := maxIncoming
	if limit <= 0 || limit > maxBufferSize {
		limit = maxBufferSize
	}
	if header.RemainingLength > limit {
		chunk := make([]byte, clampBufferSize(buf.Cap()))
		return nil, drain(r, header.RemainingLength, chunk)
	}

	buf.Reset()
	if header.RemainingLength > 0 {
		if err := buf.fillFrom(r, header.RemainingLength); err != nil {
			return nil, err
		}
	}

	return decodeBody(header, buf.Bytes())
}

func decodeBody(header *packets.FixedHeader, body []byte) (packets.Packet, error) {
	switch header.PacketType {
	case packets.CONNACK:
		return packets.DecodeConnack(body, protocolLevel311)
	case packets.PUBLISH:
		return packets.DecodePublish(body, header, protocolLevel311)
	case packets.PUBACK:
		return packets.DecodePuback(body, protocolLevel311)
	case packets.PUBREC:
		return packets.DecodePubrec(body, protocolLevel311)
	case packets.PUBREL:
		return packets.DecodePubrel(body, protocolLevel311)
	case packets.PUBCOMP:
		return packets.DecodePubcomp(body, protocolLevel311)
	case packets.SUBACK:
		return packets.DecodeSuback(body, protocolLevel311)
	case packets.UNSUBACK:
		return packets.DecodeUnsuback(body, protocolLevel311)
	case packets.PINGRESP:
		return packets.DecodePingresp(body)
	case packets.DISCONNECT:
		return packets.DecodeDisconnect(body, protocolLevel311)
	default:
		return nil, fmt.Errorf("mqttc: unexpected incoming packet type %d", header.PacketType)
	}
}
