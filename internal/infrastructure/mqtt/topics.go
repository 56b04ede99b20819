package mqtt

import (
	"fmt"
	"strings"
)

// Default topic names.
const (
	DefaultStateTopic   = "garage/state"
	DefaultControlTopic = "garage/control"
	DefaultSystemTopic  = "garage/system/status"
)

// validateTopic checks a topic for publishing (no wildcards) or for
// subscribing (wildcards allowed in their MQTT positions).
func validateTopic(topic string, subscribe bool) error {
	if topic == "" {
		return fmt.Errorf("%w: empty", ErrInvalidTopic)
	}
	if !subscribe {
		if strings.ContainsAny(topic, "+#") {
			return fmt.Errorf("%w: wildcard in publish topic %q", ErrInvalidTopic, topic)
		}
		return nil
	}
	levels := strings.Split(topic, "/")
	for i, level := range levels {
		if strings.Contains(level, "#") && (level != "#" || i != len(levels)-1) {
			return fmt.Errorf("%w: '#' must be the last level in %q", ErrInvalidTopic, topic)
		}
		if strings.Contains(level, "+") && level != "+" {
			return fmt.Errorf("%w: '+' must occupy a whole level in %q", ErrInvalidTopic, topic)
		}
	}
	return nil
}
