// Package transmit forwards resolved IR codes to the blaster entity through
// the Home Assistant remote.send_command service.
package transmit

import (
	"strings"

	"easyir/internal/ha"
	"easyir/internal/ircodes"

	"go.uber.org/zap"
)

// Prefix marks a payload as base64 for the Broadlink remote integration.
const Prefix = "b64:"

// Normalize returns the transmission payload for a code value: one string per
// code, each carrying the base64 prefix exactly once.
func Normalize(code ircodes.CodeValue) []string {
	commands := make([]string, 0, len(code))
	for _, c := range code {
		if !strings.HasPrefix(c, Prefix) {
			c = Prefix + c
		}
		commands = append(commands, c)
	}
	return commands
}

// Transmitter issues remote.send_command calls. It is fire-and-forget: one
// call per code value, no retries, no acknowledgement beyond the call error.
type Transmitter struct {
	client ha.HAClient
	logger *zap.Logger
}

// New creates a Transmitter.
func New(client ha.HAClient, logger *zap.Logger) *Transmitter {
	return &Transmitter{
		client: client,
		logger: logger.Named("transmit"),
	}
}

// Send normalizes a code value and issues exactly one service call to the
// given controller entity. A transport error is returned unwrapped for the
// caller's generic fault handling.
func (t *Transmitter) Send(controller string, code ircodes.CodeValue) error {
	commands := Normalize(code)

	t.logger.Info("Sending IR commands",
		zap.String("controller", controller),
		zap.Int("count", len(commands)))

	return t.client.CallService("remote", "send_command", map[string]interface{}{
		"entity_id": controller,
		"command":   commands,
	})
}
