package terminal

import "context"

// Inbound is one message received from a client. Binary messages carry
// raw terminal input; text messages carry a JSON control message.
type Inbound struct {
	Binary bool
	Data   []byte
}

// Connection is a client transport attached to a session.
//
// SendMessage and SendOutput must be safe to call from several goroutines
// and must not retain the slices they are given. Receive is called from a
// single goroutine and returns an error once the client is gone or ctx is
// done.
type Connection interface {
	SendMessage(v any) error
	SendOutput(data []byte) error
	Receive(ctx context.Context) (Inbound, error)
	Close(code int, reason string) error
	IsConnected() bool
}
