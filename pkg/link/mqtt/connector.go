package mqtt

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/robotalks/downlink.go/pkg/link"
)

// Connector implements link.Connector using MQTT.
type Connector struct {
	DiscoverTimeout time.Duration

	newQueue func() *Queue
}

// DefaultDiscoverTimeout defines the default timeout value of discovery.
const DefaultDiscoverTimeout = 500 * time.Millisecond

// NewConnector creates a Connector.
func NewConnector(brokerURL string) (*Connector, error) {
	opts, topicPrefix, qos, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	return &Connector{
		DiscoverTimeout: DefaultDiscoverTimeout,
		newQueue: func() *Queue {
			q := NewQueue(opts, topicPrefix)
			q.QoS = qos
			return q
		},
	}, nil
}

// Discover implements Connector. Nodes are found by their retained meta.
func (c *Connector) Discover(ctx context.Context) (res []link.NodeInfo, err error) {
	q := c.newQueue()
	if err = q.ConnectWait(); err != nil {
		return nil, err
	}
	defer q.Close()
	resCh := make(chan link.NodeInfo, 1)
	sub := q.Sub("+/+/"+TopicMeta, Handler(func(topic string, payload []byte) {
		items := strings.Split(topic, "/")
		if len(items) != 3 || len(payload) == 0 {
			return
		}
		info := link.NodeInfo{Ref: link.NodeRef{Type: items[0], ID: items[1]}}
		json.Unmarshal(payload, &info.Meta)
		select {
		case resCh <- info:
		case <-time.After(time.Second):
		}
	}))
	defer sub.Close()

	dur := c.DiscoverTimeout
	if dur == 0 {
		dur = DefaultDiscoverTimeout
	}
	timeout := time.After(dur)
	for {
		select {
		case info := <-resCh:
			res = append(res, info)
		case <-timeout:
			return
		case <-ctx.Done():
			err = ctx.Err()
			return
		}
	}
}

// Connect implements Connector.
func (c *Connector) Connect(ctx context.Context, ref link.NodeRef) (link.Conn, error) {
	conn := &Conn{Queue: c.newQueue()}
	conn.Init(NewPacketReadWriter(conn.Queue).ForGround(ref))
	if err := conn.Queue.ConnectWait(); err != nil {
		return nil, err
	}
	return conn, nil
}

// Conn implements link.Conn using MQTT.
type Conn struct {
	link.ClientConn
	Queue *Queue
}

// Run implements Runnable.
func (c *Conn) Run(ctx context.Context) error {
	defer c.Queue.Close()
	return c.ClientConn.Run(ctx)
}
