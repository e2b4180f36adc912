// Package mqtt is a conn.Adapter for layouts whose sensors and actuators talk MQTT.
package mqtt

import (
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
	"nyiyui.ca/hato/shingo/conn"
	"nyiyui.ca/hato/shingo/tal/layout"
)

const (
	connectTimeout    = 10 * time.Second
	publishTimeout    = 5 * time.Second
	disconnectQuiesce = 1000 // ms
	valsSize          = 256
	outSize           = 256
)

type Conf struct {
	// Broker is e.g. tcp://localhost:1883.
	Broker   string
	ClientID string
	Username string
	Password string
	Prefix   string
	QoS      byte
}

type message struct {
	topic    string
	payload  []byte
	retained bool
}

type Adapter struct {
	conf   Conf
	topics Topics
	client pahomqtt.Client
	// publish sends one message and waits for the broker. Only the publisher goroutine calls it.
	publish func(m message) error

	lock    sync.Mutex
	closed  bool
	vals    chan conn.Val
	out     chan message
	outDone chan struct{}
}

func newAdapter(conf Conf, y *layout.Layout) *Adapter {
	return &Adapter{
		conf:    conf,
		topics:  Topics{Prefix: conf.Prefix, Layout: y},
		vals:    make(chan conn.Val, valsSize),
		out:     make(chan message, outSize),
		outDone: make(chan struct{}),
	}
}

// Connect connects to the broker and subscribes to every inbound topic.
// Subscriptions are restored on reconnect.
func Connect(conf Conf, y *layout.Layout) (*Adapter, error) {
	if conf.QoS > 2 {
		return nil, fmt.Errorf("invalid qos %d", conf.QoS)
	}
	a := newAdapter(conf, y)
	a.publish = a.publishNow
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(conf.Broker)
	opts.SetClientID(conf.ClientID)
	if conf.Username != "" {
		opts.SetUsername(conf.Username)
		opts.SetPassword(conf.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetOnConnectHandler(func(c pahomqtt.Client) {
		zap.S().Infow("mqtt: connected", "broker", conf.Broker)
		if err := a.subscribe(c); err != nil {
			zap.S().Errorw("mqtt: subscribe", "err", err)
		}
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		zap.S().Warnw("mqtt: connection lost", "err", err)
	})
	a.client = pahomqtt.NewClient(opts)
	token := a.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %s", ErrConnect, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}
	go a.publisher()
	return a, nil
}

func (a *Adapter) subscribe(c pahomqtt.Client) error {
	filters := map[string]byte{}
	for _, f := range a.topics.Subscriptions() {
		filters[f] = a.conf.QoS
	}
	token := c.SubscribeMultiple(filters, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		a.handle(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("%w: timeout after %s", ErrSubscribe, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribe, err)
	}
	return nil
}

func (a *Adapter) handle(topic string, payload []byte) {
	v, err := a.topics.Decode(topic, payload)
	if err != nil {
		zap.S().Warnw("mqtt: dropped message", "topic", topic, "err", err)
		return
	}
	a.lock.Lock()
	defer a.lock.Unlock()
	if a.closed {
		return
	}
	select {
	case a.vals <- v:
	default:
		zap.S().Errorw("mqtt: vals full, dropped", "val", v)
	}
}

func (a *Adapter) Vals() <-chan conn.Val { return a.vals }

// Send queues r for publishing and returns without waiting for the broker.
// If the queue is full, r is dropped.
func (a *Adapter) Send(r conn.Req) error {
	topic, payload, err := a.topics.Encode(r)
	if err != nil {
		return err
	}
	// signals are state, so late subscribers should see them
	_, retained := r.(conn.ReqSignal)
	a.lock.Lock()
	defer a.lock.Unlock()
	if a.closed {
		return ErrNotConnected
	}
	select {
	case a.out <- message{topic: topic, payload: payload, retained: retained}:
		return nil
	default:
		zap.S().Errorw("mqtt: outbound full, dropped", "req", r)
		return fmt.Errorf("%w: outbound queue full", ErrPublish)
	}
}

func (a *Adapter) publisher() {
	defer close(a.outDone)
	for m := range a.out {
		if err := a.publish(m); err != nil {
			zap.S().Errorw("mqtt: publish", "topic", m.topic, "err", err)
		}
	}
}

func (a *Adapter) publishNow(m message) error {
	if !a.client.IsConnected() {
		return ErrNotConnected
	}
	token := a.client.Publish(m.topic, a.conf.QoS, m.retained, m.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("%w: timeout after %s", ErrPublish, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublish, err)
	}
	return nil
}

// Close publishes what is queued, disconnects and closes Vals.
func (a *Adapter) Close() {
	a.lock.Lock()
	if a.closed {
		a.lock.Unlock()
		return
	}
	a.closed = true
	close(a.out)
	close(a.vals)
	a.lock.Unlock()
	<-a.outDone
	if a.client != nil {
		a.client.Disconnect(disconnectQuiesce)
	}
}
