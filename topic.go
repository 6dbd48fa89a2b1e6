package mqttc

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MatchTopic reports whether topic matches filter under MQTT 3.1.1 wildcard
// rules: '+' matches exactly one level, '#' matches the remainder of the
// topic (including zero levels) and must be the filter's last character.
// Filter and topic must be fully consumed for a match.
func MatchTopic(filter, topic string) bool {
	// MQTT-4.7.2-1: a filter starting with a wildcard must not match a
	// topic beginning with '$'.
	if len(topic) > 0 && topic[0] == '$' {
		if len(filter) > 0 && (filter[0] == '+' || filter[0] == '#') {
			return false
		}
	}

	fIdx, tIdx := 0, 0
	fLen, tLen := len(filter), len(topic)

	for fIdx <= fLen {
		var fLevel string
		var fNext int
		if idx := strings.IndexByte(filter[fIdx:], '/'); idx >= 0 {
			fNext = fIdx + idx
			fLevel = filter[fIdx:fNext]
		} else {
			fNext = fLen
			fLevel = filter[fIdx:]
		}

		if fLevel == "#" {
			return true
		}

		if tIdx > tLen {
			return false
		}

		var tLevel string
		var tNext int
		if idx := strings.IndexByte(topic[tIdx:], '/'); idx >= 0 {
			tNext = tIdx + idx
			tLevel = topic[tIdx:tNext]
		} else {
			tNext = tLen
			tLevel = topic[tIdx:]
		}

		if fLevel == "+" {
			// matches this level unconditionally
		} else if fLevel != tLevel {
			return false
		}

		if fNext == fLen {
			fIdx = fLen + 1
		} else {
			fIdx = fNext + 1
		}

		if tNext == tLen {
			tIdx = tLen + 1
		} else {
			tIdx = tNext + 1
		}
	}

	return tIdx > tLen
}

// MQTT 3.1.1 limits (defaults used when a client option is unset).
const (
	// DefaultMaxTopicLength is the maximum length of an MQTT topic string.
	DefaultMaxTopicLength = 65535

	// DefaultMaxPayloadSize is the maximum PUBLISH payload size: the
	// remaining-length ceiling (256 MiB - 1).
	DefaultMaxPayloadSize = 268435455

	// DefaultMaxIncomingPacket is the maximum accepted incoming packet size.
	DefaultMaxIncomingPacket = 268435455

	// MaxClientIDLength is the MQTT 3.1.1-recommended client ID length.
	MaxClientIDLength = 23

	// maxDisplayTopicLength bounds the topic rendered by TruncateTopic;
	// longer topics are truncated with a trailing marker.
	maxDisplayTopicLength = 256
)

func getLimit(configured, defaultLimit int) int {
	if configured > 0 {
		return configured
	}
	return defaultLimit
}

// TruncateTopic truncates topic to maxDisplayTopicLength-1 bytes and appends
// an ellipsis marker if it was cut, mirroring the fixed-size topic buffer
// embedded in a received-message record on an unmanaged-memory target.
func TruncateTopic(topic string) string {
	if len(topic) < maxDisplayTopicLength {
		return topic
	}
	return topic[:maxDisplayTopicLength-1] + "…"
}

func validatePublishTopic(topic string, opts *clientOptions) error {
	if topic == "" {
		return fmt.Errorf("topic cannot be empty")
	}

	maxLen := getLimit(opts.maxTopicLength, DefaultMaxTopicLength)
	if len(topic) > maxLen {
		return fmt.Errorf("topic length %d exceeds maximum %d", len(topic), maxLen)
	}

	if strings.Contains(topic, "+") {
		return fmt.Errorf("topic contains single-level wildcard '+' which is not allowed in PUBLISH")
	}
	if strings.Contains(topic, "#") {
		return fmt.Errorf("topic contains multi-level wildcard '#' which is not allowed in PUBLISH")
	}
	if strings.Contains(topic, "\x00") {
		return fmt.Errorf("topic contains null byte which is not allowed")
	}
	if !utf8.ValidString(topic) {
		return fmt.Errorf("topic is not valid UTF-8")
	}

	return nil
}

func validateSubscribeTopic(topic string, opts *clientOptions) error {
	if topic == "" {
		return fmt.Errorf("topic filter cannot be empty")
	}

	maxLen := getLimit(opts.maxTopicLength, DefaultMaxTopicLength)
	if len(topic) > maxLen {
		return fmt.Errorf("topic filter length %d exceeds maximum %d", len(topic), maxLen)
	}
	if strings.Contains(topic, "\x00") {
		return fmt.Errorf("topic filter contains null byte which is not allowed")
	}
	if !utf8.ValidString(topic) {
		return fmt.Errorf("topic filter is not valid UTF-8")
	}

	parts := strings.Split(topic, "/")
	for i, part := range parts {
		if strings.Contains(part, "+") && part != "+" {
			return fmt.Errorf("single-level wildcard '+' must occupy entire topic level")
		}
		if strings.Contains(part, "#") {
			if part != "#" {
				return fmt.Errorf("multi-level wildcard '#' must occupy entire topic level")
			}
			if i != len(parts)-1 {
				return fmt.Errorf("multi-level wildcard '#' must be the last character")
			}
		}
	}

	return nil
}

func validatePayload(payload []byte, opts *clientOptions) error {
	maxSize := getLimit(opts.maxPayloadSize, DefaultMaxPayloadSize)
	if len(payload) > maxSize {
		return fmt.Errorf("payload size %d exceeds maximum %d", len(payload), maxSize)
	}
	return nil
}
