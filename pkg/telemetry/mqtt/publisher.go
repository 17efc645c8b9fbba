package mqtt

import (
	"context"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"

	"github.com/robotalks/lorabridge/pkg/link"
)

// Publisher defaults.
const (
	DefaultBacklog       = 64
	DefaultRetryInterval = 5 * time.Second
)

// PublisherOptions configures a Publisher.
type PublisherOptions struct {
	// NodeID identifies this bridge in topics.
	NodeID string
	// Encoding of payloads, defaults to JSON.
	Encoding Encoding
	// Meta is published retained to <node-id>/meta once connected.
	Meta map[string]interface{}
	// Backlog is the number of events buffered before dropping.
	Backlog int
	// RetryInterval is the delay between initial connect attempts.
	RetryInterval time.Duration
}

type publishFunc func(topic string, payload []byte, qos byte, retain bool)

// Publisher is a link.Reporter which forwards events to MQTT topics
// <prefix><node-id>/events/<kind>. Report never blocks, events are
// dropped when the backlog is full.
type Publisher struct {
	options PublisherOptions
	queue   *Queue
	publish publishFunc
	events  chan link.Event
	dropped uint64
	now     func() time.Time
}

// NewPublisher creates a Publisher for the broker at brokerURL. The
// connection is established in Run.
func NewPublisher(brokerURL string, opts PublisherOptions) (*Publisher, error) {
	clientOpts, prefix, err := clientOptions(brokerURL, opts.NodeID)
	if err != nil {
		return nil, err
	}
	q := NewQueue(clientOpts, prefix)
	p := newPublisher(opts, func(topic string, payload []byte, qos byte, retain bool) {
		q.PubWith(topic, payload, qos, retain)
	})
	p.queue = q
	q.OnConnect = func(*Queue) { p.publishMeta() }
	return p, nil
}

func clientOptions(brokerURL, nodeID string) (*paho.ClientOptions, string, error) {
	opts, prefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, "", err
	}
	if opts.ClientID == "" {
		opts.SetClientID("lorabridge-" + nodeID)
	}
	// an empty retained payload clears the meta topic
	opts.SetBinaryWill(prefix+metaTopic(nodeID), []byte{}, 1, true)
	return opts, prefix, nil
}

func newPublisher(opts PublisherOptions, publish publishFunc) *Publisher {
	if opts.Encoding == "" {
		opts.Encoding = EncodingJSON
	}
	if opts.Backlog <= 0 {
		opts.Backlog = DefaultBacklog
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRetryInterval
	}
	return &Publisher{
		options: opts,
		publish: publish,
		events:  make(chan link.Event, opts.Backlog),
		now:     time.Now,
	}
}

func metaTopic(nodeID string) string {
	return nodeID + "/meta"
}

// EventTopic is the topic events of kind are published to, without the
// broker URL prefix.
func EventTopic(nodeID, kind string) string {
	return nodeID + "/events/" + kind
}

// Name implements framework.Named.
func (p *Publisher) Name() string {
	return "telemetry"
}

// Dropped returns the number of events dropped because of a full backlog.
func (p *Publisher) Dropped() uint64 {
	return atomic.LoadUint64(&p.dropped)
}

// Report implements link.Reporter.
func (p *Publisher) Report(ev link.Event) {
	select {
	case p.events <- ev:
	default:
		atomic.AddUint64(&p.dropped, 1)
		glog.V(2).Infof("telemetry backlog full, dropped %s event", ev.Kind())
	}
}

// Run implements framework.Runnable.
func (p *Publisher) Run(ctx context.Context) error {
	if p.queue != nil {
		go p.connect(ctx)
		defer p.disconnect()
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-p.events:
			p.publishEvent(ev)
		}
	}
}

func (p *Publisher) connect(ctx context.Context) {
	for {
		token := p.queue.Connect()
		token.Wait()
		err := token.Error()
		if err == nil {
			return
		}
		glog.Warningf("telemetry connect error: %v", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.options.RetryInterval):
		}
	}
}

func (p *Publisher) disconnect() {
	if p.queue.Client.IsConnected() {
		token := p.queue.PubWith(metaTopic(p.options.NodeID), []byte{}, 1, true)
		token.WaitTimeout(time.Second)
	}
	p.queue.Close()
}

func (p *Publisher) publishEvent(ev link.Event) {
	payload, err := p.options.Encoding.Marshal(EventFields(ev, p.now()))
	if err != nil {
		glog.Errorf("telemetry encode %s event error: %v", ev.Kind(), err)
		return
	}
	p.publish(EventTopic(p.options.NodeID, ev.Kind()), payload, 0, false)
}

func (p *Publisher) publishMeta() {
	fields := map[string]interface{}{
		"node_id": p.options.NodeID,
		"time":    p.now().UTC().Format(time.RFC3339Nano),
	}
	for key, val := range p.options.Meta {
		fields[key] = val
	}
	payload, err := p.options.Encoding.Marshal(fields)
	if err != nil {
		glog.Errorf("telemetry encode meta error: %v", err)
		return
	}
	p.publish(metaTopic(p.options.NodeID), payload, 1, true)
}
