package sink

import (
	"bytes"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/downlink.go/pkg/link/stream"
)

type packets [][]byte

func (p *packets) WritePacket(pkt []byte) error {
	*p = append(*p, append([]byte(nil), pkt...))
	return nil
}

func TestPacket(t *testing.T) {
	var out packets
	s := NewPacket(&out)
	require.NoError(t, s.WriteWords([]uint32{0x04030201, 0x3fffffff}))
	require.NoError(t, s.WriteWords([]uint32{7}))
	require.Equal(t, packets{
		{1, 2, 3, 4, 0xff, 0xff, 0xff, 0x3f},
		{7, 0, 0, 0},
	}, out)

	words, err := DecodeWords(out[0])
	require.NoError(t, err)
	require.Equal(t, []uint32{0x04030201, 0x3fffffff}, words)
	_, err = DecodeWords([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestOpen(t *testing.T) {
	t.Run("discard", func(t *testing.T) {
		for _, u := range []string{"", "discard:"} {
			s, err := Open(u)
			require.NoError(t, err)
			require.NoError(t, s.WriteWords([]uint32{1}))
			require.NoError(t, s.Close())
		}
	})
	t.Run("file", func(t *testing.T) {
		dir, err := os.MkdirTemp("", "sink")
		require.NoError(t, err)
		defer os.RemoveAll(dir)
		path := filepath.Join(dir, "symbols.bin")
		s, err := Open("file://" + path)
		require.NoError(t, err)
		require.NoError(t, s.WriteWords([]uint32{0x11223344}))
		require.NoError(t, s.Close())
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Equal(t, []byte{4, 0, 0, 0, 0x44, 0x33, 0x22, 0x11}, data)
	})
	t.Run("tcp", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		defer ln.Close()
		got := make(chan []byte, 1)
		go func() {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
			pkt, _ := stream.New(conn).ReadPacket()
			got <- pkt
		}()
		s, err := Open("tcp://" + ln.Addr().String())
		require.NoError(t, err)
		defer s.Close()
		require.NoError(t, s.WriteWords([]uint32{1, 2}))
		require.True(t, bytes.Equal([]byte{1, 0, 0, 0, 2, 0, 0, 0}, <-got))
	})
	t.Run("errors", func(t *testing.T) {
		for _, u := range []string{"gopher://x", "mqtt://broker", "::bad"} {
			_, err := Open(u)
			require.Error(t, err, u)
		}
	})
}
