package rabbitmq

import "strings"

// RabbitMQ's MQTT plugin maps AMQP routing keys onto MQTT topics segment by segment:
// "." <-> "/", "*" <-> "+", "#" stays "#".

// ToMQTT converts an exchange-style name into an MQTT topic or filter.
func ToMQTT(topic string) string {
	parts := strings.Split(topic, ".")
	for i, p := range parts {
		if p == "*" {
			parts[i] = "+"
		}
	}
	return strings.Join(parts, "/")
}

// FromMQTT converts an MQTT topic back to its exchange-style name.
func FromMQTT(topic string) string {
	parts := strings.Split(topic, "/")
	for i, p := range parts {
		if p == "+" {
			parts[i] = "*"
		}
	}
	return strings.Join(parts, ".")
}

// Match reports whether an exchange-style binding pattern matches a concrete topic.
// "*" matches exactly one segment, "#" zero or more.
func Match(pattern, topic string) bool {
	return match(strings.Split(pattern, "."), strings.Split(topic, "."))
}

func match(p, t []string) bool {
	for len(p) > 0 {
		switch p[0] {
		case "#":
			if len(p) == 1 {
				return true
			}
			for i := 0; i <= len(t); i++ {
				if match(p[1:], t[i:]) {
					return true
				}
			}
			return false
		case "*":
			if len(t) == 0 {
				return false
			}
		default:
			if len(t) == 0 || t[0] != p[0] {
				return false
			}
		}
		p, t = p[1:], t[1:]
	}
	return len(t) == 0
}
