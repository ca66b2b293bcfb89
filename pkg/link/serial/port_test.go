package serial

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		query string
		mode  serial.Mode
		err   bool
	}{
		{query: "", mode: serial.Mode{BaudRate: DefaultBaudRate, DataBits: 8}},
		{query: "baud=9600&parity=even&stopbits=2&databits=7",
			mode: serial.Mode{BaudRate: 9600, DataBits: 7, Parity: serial.EvenParity, StopBits: serial.TwoStopBits}},
		{query: "parity=ODD", mode: serial.Mode{BaudRate: DefaultBaudRate, DataBits: 8, Parity: serial.OddParity}},
		{query: "baud=fast", err: true},
		{query: "baud=-1", err: true},
		{query: "databits=9", err: true},
		{query: "parity=bogus", err: true},
		{query: "stopbits=3", err: true},
	}
	for _, test := range tests {
		t.Run(test.query, func(t *testing.T) {
			q, err := url.ParseQuery(test.query)
			require.NoError(t, err)
			mode, err := ParseMode(q)
			if test.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, test.mode, *mode)
		})
	}
}

func TestOpenMissingDevice(t *testing.T) {
	u, err := url.Parse("serial://?baud=9600")
	require.NoError(t, err)
	_, err = Open(u)
	require.Error(t, err)
}
