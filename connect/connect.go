// Package connect establishes sessions with scanned devices.
package connect

import (
	"context"
	"errors"

	"dev.hon.one/tcdconnect/common"
	"dev.hon.one/tcdconnect/diag"
)

// ErrConnectorFailure - The connector could not establish a session.
var ErrConnectorFailure = errors.New("connector failure")

// Request - What to connect to and with which credentials.
type Request struct {
	Device   common.Document
	Login    string
	Password string
	HostIP   string // Address of the host running the tool, as seen by the device
}

// Connector - Connects to a device and describes the resulting session.
// Progress messages go to the sink, never to the console directly.
type Connector interface {
	Connect(ctx context.Context, request Request, sink diag.Sink) (common.Document, error)
}

// ConnectorFunc - Adapter to use a function as a Connector.
type ConnectorFunc func(ctx context.Context, request Request, sink diag.Sink) (common.Document, error)

// Connect - Call the function.
func (fn ConnectorFunc) Connect(ctx context.Context, request Request, sink diag.Sink) (common.Document, error) {
	return fn(ctx, request, sink)
}
