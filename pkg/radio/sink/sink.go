// Package sink delivers transmitted symbol words to the ground side:
// a socket, a file, a serial modem, a websocket or an MQTT topic.
package sink

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/downlink.go/pkg/link"
	"github.com/robotalks/downlink.go/pkg/link/mqtt"
	"github.com/robotalks/downlink.go/pkg/link/serial"
	"github.com/robotalks/downlink.go/pkg/link/stream"
	"github.com/robotalks/downlink.go/pkg/link/websocket"
)

// Sink receives symbol words. It implements radio.SymbolSink.
type Sink interface {
	WriteWords(words []uint32) error
	io.Closer
}

// Packet sends each batch of words as one packet, little-endian.
type Packet struct {
	Writer link.PacketWriter

	lock sync.Mutex
	buf  []byte
}

// NewPacket creates a Packet sink.
func NewPacket(w link.PacketWriter) *Packet {
	return &Packet{Writer: w}
}

// WriteWords implements Sink.
func (p *Packet) WriteWords(words []uint32) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	if cap(p.buf) < len(words)*4 {
		p.buf = make([]byte, len(words)*4)
	}
	buf := p.buf[:len(words)*4]
	for n, w := range words {
		binary.LittleEndian.PutUint32(buf[n*4:], w)
	}
	return p.Writer.WritePacket(buf)
}

// Close implements io.Closer.
func (p *Packet) Close() error {
	if c, ok := p.Writer.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// DecodeWords is the inverse of the Packet encoding.
func DecodeWords(pkt []byte) ([]uint32, error) {
	if len(pkt)%4 != 0 {
		return nil, fmt.Errorf("packet length %d is not a multiple of 4", len(pkt))
	}
	words := make([]uint32, len(pkt)/4)
	for n := range words {
		words[n] = binary.LittleEndian.Uint32(pkt[n*4:])
	}
	return words, nil
}

// Discard drops all words.
type Discard struct{}

// WriteWords implements Sink.
func (Discard) WriteWords([]uint32) error { return nil }

// Close implements io.Closer.
func (Discard) Close() error { return nil }

// Open creates a Sink from a URL:
//
//	discard:                         drop everything
//	tcp://host:port                  length-prefixed packets over TCP
//	file:///path                     length-prefixed packets into a file
//	serial:///dev/ttyUSB0?baud=9600  length-prefixed packets to a modem
//	ws://host/path                   one websocket message per packet
//	mqtt://broker/prefix?node=a/b    published to <prefix>a/b/symbols
func Open(rawURL string) (Sink, error) {
	if rawURL == "" {
		return Discard{}, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	glog.Infof("sink: %s", u.Redacted())
	switch strings.ToLower(u.Scheme) {
	case "discard", "null":
		return Discard{}, nil
	case "tcp":
		conn, err := net.Dial("tcp", u.Host)
		if err != nil {
			return nil, err
		}
		return NewPacket(stream.New(conn)), nil
	case "file":
		f, err := os.Create(u.Path)
		if err != nil {
			return nil, err
		}
		return NewPacket(stream.New(f)), nil
	case "serial":
		rw, err := serial.Open(u)
		if err != nil {
			return nil, err
		}
		return NewPacket(rw), nil
	case "ws", "wss":
		origin := "http://" + u.Host
		if u.Scheme == "wss" {
			origin = "https://" + u.Host
		}
		rw, err := websocket.Dial(u.String(), origin)
		if err != nil {
			return nil, err
		}
		return NewPacket(rw), nil
	case "mqtt", "mqtts":
		return openMQTT(u)
	}
	return nil, fmt.Errorf("sink: unsupported scheme %q", u.Scheme)
}

type mqttSink struct {
	*Packet
	queue *mqtt.Queue
}

func (s *mqttSink) Close() error {
	return s.queue.Close()
}

func openMQTT(u *url.URL) (Sink, error) {
	q := u.Query()
	node := q.Get("node")
	if node == "" {
		return nil, fmt.Errorf("sink: mqtt url needs node")
	}
	q.Del("node")
	u.RawQuery = q.Encode()
	if u.Scheme == "mqtts" {
		u.Scheme = "ssl"
	}
	queue, err := mqtt.NewQueueFromURL(u.String())
	if err != nil {
		return nil, err
	}
	if err := queue.ConnectWait(); err != nil {
		return nil, err
	}
	rw := mqtt.NewPacketReadWriter(queue).WithTopics("", node+"/"+mqtt.TopicSymbols)
	return &mqttSink{Packet: NewPacket(rw), queue: queue}, nil
}
