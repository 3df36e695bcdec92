package ingest

import (
	"context"
	"fmt"
	"io"

	"github.com/sprout-iot/sprout/internal/errors"
	"go.bug.st/serial"
)

// Opener opens the device channel. The returned reader must block until data
// is available; a zero-length read without error is treated as a disconnect.
type Opener interface {
	Open(ctx context.Context) (io.ReadCloser, error)
	String() string
}

// SerialOpener opens a serial port at a fixed baud rate, 8N1.
type SerialOpener struct {
	Address  string
	BaudRate int
}

// Open opens the port.
func (o SerialOpener) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: o.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(o.Address, mode)
	if err != nil {
		return nil, errors.New("E200").
			WithDetailf("%s at %d baud", o.Address, o.BaudRate).
			Wrap(err)
	}
	return port, nil
}

// String returns the device address.
func (o SerialOpener) String() string {
	return fmt.Sprintf("%s@%d", o.Address, o.BaudRate)
}

// Ports lists serial ports visible on this host.
func Ports() ([]string, error) {
	return serial.GetPortsList()
}
