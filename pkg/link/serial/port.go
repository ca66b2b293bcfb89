// Package serial opens serial ports as packet streams.
package serial

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.bug.st/serial"

	"github.com/robotalks/downlink.go/pkg/link/stream"
)

// DefaultBaudRate is used when the URL does not specify one.
const DefaultBaudRate = 115200

// ParseMode builds the port mode from URL query parameters
// baud, databits, parity and stopbits.
func ParseMode(q url.Values) (*serial.Mode, error) {
	mode := &serial.Mode{
		BaudRate: DefaultBaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	var err error
	if v := q.Get("baud"); v != "" {
		if mode.BaudRate, err = strconv.Atoi(v); err != nil || mode.BaudRate <= 0 {
			return nil, fmt.Errorf("invalid baud %q", v)
		}
	}
	if v := q.Get("databits"); v != "" {
		if mode.DataBits, err = strconv.Atoi(v); err != nil || mode.DataBits < 5 || mode.DataBits > 8 {
			return nil, fmt.Errorf("invalid databits %q", v)
		}
	}
	switch strings.ToLower(q.Get("parity")) {
	case "", "none":
	case "odd":
		mode.Parity = serial.OddParity
	case "even":
		mode.Parity = serial.EvenParity
	case "mark":
		mode.Parity = serial.MarkParity
	case "space":
		mode.Parity = serial.SpaceParity
	default:
		return nil, fmt.Errorf("invalid parity %q", q.Get("parity"))
	}
	switch q.Get("stopbits") {
	case "", "1":
	case "1.5":
		mode.StopBits = serial.OnePointFiveStopBits
	case "2":
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("invalid stopbits %q", q.Get("stopbits"))
	}
	return mode, nil
}

// Open opens the port named by u.Path with the mode in its query.
func Open(u *url.URL) (*stream.ReadWriter, error) {
	mode, err := ParseMode(u.Query())
	if err != nil {
		return nil, err
	}
	device := u.Path
	if device == "" {
		device = u.Opaque
	}
	if device == "" {
		return nil, fmt.Errorf("serial: missing device in %q", u.String())
	}
	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", device, err)
	}
	return stream.New(port), nil
}
