package protocol

import (
	"fmt"
	"strings"
)

// LineEnd terminates every ASCII response line.
const LineEnd = "\r\n"

// HandshakeMarker is the substring a host looks for in the reply to the
// connect command.
const HandshakeMarker = "$$$"

// Handshake builds the connection string for a device name, e.g.
// "Gluten $$$\r\n".
func Handshake(name string) string {
	return name + " " + HandshakeMarker + LineEnd
}

// IsHandshake reports whether s contains a connection reply.
func IsHandshake(s string) bool {
	return strings.Contains(s, HandshakeMarker)
}

// HelpLine formats one help entry: "Enter c to send connection string.\r\n".
func HelpLine(trigger byte, description string) string {
	return fmt.Sprintf("Enter %c to %s.%s", trigger, description, LineEnd)
}
