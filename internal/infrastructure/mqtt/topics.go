package mqtt

import (
	"fmt"
	"strings"
)

// Topics builds the kasametrics topic hierarchy under a configurable prefix.
//
//	topics := mqtt.Topics{Prefix: "kasametrics"}
//	topics.Status()      // "kasametrics/status"
//	topics.Log("warning") // "kasametrics/log/warning"
type Topics struct {
	Prefix string
}

// Status returns the retained online/offline status topic.
func (t Topics) Status() string {
	return fmt.Sprintf("%s/status", t.prefix())
}

// Log returns the topic forwarded log records of the given level are published to.
func (t Topics) Log(level string) string {
	return fmt.Sprintf("%s/log/%s", t.prefix(), level)
}

// AllLogs returns a wildcard matching every forwarded log topic.
func (t Topics) AllLogs() string {
	return fmt.Sprintf("%s/log/+", t.prefix())
}

func (t Topics) prefix() string {
	p := strings.Trim(t.Prefix, "/")
	if p == "" {
		return "kasametrics"
	}
	return p
}
