package worker

import (
	"errors"
	"fmt"
	"strings"
)

// ProtocolError is a malformed task payload. The task is failed and
// reported; the loop continues.
type ProtocolError struct {
	msg string
}

func (e *ProtocolError) Error() string { return e.msg }

func protocolErrorf(format string, args ...any) error {
	return &ProtocolError{msg: fmt.Sprintf(format, args...)}
}

// IsProtocol reports whether err is a ProtocolError.
func IsProtocol(err error) bool {
	var e *ProtocolError
	return errors.As(err, &e)
}

// ModelIDFromProvider extracts the model id from a provider name of the
// form <prefix>:<model>. Anything after a second ':' is ignored.
func ModelIDFromProvider(name string) (string, error) {
	parts := strings.SplitN(name, ":", 3)
	if len(parts) < 2 {
		return "", protocolErrorf("invalid provider name: %q", name)
	}
	return parts[1], nil
}
