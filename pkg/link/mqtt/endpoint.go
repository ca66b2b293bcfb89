package mqtt

import (
	"context"
	"encoding/json"

	"github.com/golang/glog"

	"github.com/robotalks/downlink.go/pkg/link"
)

// Endpoint publishes a link.Endpoint on an MQTT broker. The node meta is
// retained under node/meta and cleared by the will.
type Endpoint struct {
	*link.Endpoint
	Queue *Queue
	Info  link.NodeInfo
}

// NewEndpoint creates an Endpoint.
func NewEndpoint(brokerURL string, info link.NodeInfo, cmd link.Commander) (*Endpoint, error) {
	opts, topicPrefix, qos, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	opts.SetBinaryWill(topicPrefix+info.Ref.Name()+"/"+TopicMeta, nil, 1, true)
	if opts.ClientID == "" {
		opts.SetClientID("downlink:" + info.Ref.Name())
	}
	q := NewQueue(opts, topicPrefix)
	q.QoS = qos
	return newEndpoint(q, info, cmd), nil
}

func newEndpoint(q *Queue, info link.NodeInfo, cmd link.Commander) *Endpoint {
	e := &Endpoint{Queue: q, Info: info}
	e.Endpoint = link.NewEndpoint(NewPacketReadWriter(e.Queue).ForNode(info.Ref), cmd)
	e.Info.Meta.Session = e.Endpoint.Session
	e.Queue.OnConnect = func(*Queue) { e.publishMeta() }
	return e
}

// Run implements Runnable.
func (e *Endpoint) Run(ctx context.Context) error {
	if token := e.Queue.Connect(); token.Wait() && token.Error() != nil {
		glog.Warningf("mqtt: connect: %v, retrying in background", token.Error())
	}
	err := e.Endpoint.Run(ctx)
	e.Queue.PubWith(e.metaTopic(), nil, 1, true).Wait()
	e.Queue.Close()
	return err
}

func (e *Endpoint) metaTopic() string {
	return e.Info.Ref.Name() + "/" + TopicMeta
}

func (e *Endpoint) publishMeta() {
	meta, err := json.Marshal(&e.Info.Meta)
	if err != nil {
		glog.Errorf("mqtt: meta: %v", err)
		return
	}
	e.Queue.PubWith(e.metaTopic(), meta, 1, true)
}
