// Package publish sends offset latch records to an MQTT broker so remote
// tooling can follow a receiver's timing without a terminal on the host.
package publish

import (
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	jsoniter "github.com/json-iterator/go"

	"gpsmon/offset"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Record is the JSON body of one latch message.
type Record struct {
	Class    string `json:"class"`
	Fix      string `json:"fix"`
	Clock    string `json:"clock"`
	Real     string `json:"real"`
	OffsetNs int64  `json:"offset_ns"`
}

// NewRecord formats a latch for publishing.
func NewRecord(fix time.Time, s offset.Sample) Record {
	return Record{
		Class:    "LATCH",
		Fix:      fix.UTC().Format(time.RFC3339Nano),
		Clock:    offset.FormatTimespec(s.Clock),
		Real:     offset.FormatTimespec(s.Real),
		OffsetNs: int64(s.Offset()),
	}
}

// publisher is the part of mqtt.Client the queue drains into.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

const queueDepth = 64

// Publisher queues latch records and publishes them from its own goroutine;
// a full queue drops records rather than stall the event loop.
type Publisher struct {
	broker   string
	topic    string
	clientID string

	client  mqtt.Client
	out     publisher
	queue   chan Record
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.Mutex
	dropped uint64
}

// New returns a publisher for broker (tcp://host:port).
func New(broker, topic, clientID string) *Publisher {
	return &Publisher{
		broker:   broker,
		topic:    topic,
		clientID: clientID,
		queue:    make(chan Record, queueDepth),
	}
}

// Connect dials the broker and starts the publishing goroutine.
func (p *Publisher) Connect() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(p.broker)
	opts.SetClientID(fmt.Sprintf("%s-%d", p.clientID, time.Now().Unix()))
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(1 * time.Minute)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Printf("publish: connected to %s, topic %s", p.broker, p.topic)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("publish: connection lost: %v", err)
	})

	p.client = mqtt.NewClient(opts)
	log.Printf("publish: connecting to MQTT broker at %s...", p.broker)
	token := p.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("publish: connect %s: %w", p.broker, token.Error())
	}
	p.start(p.client)
	return nil
}

func (p *Publisher) start(out publisher) {
	p.out = out
	p.wg.Add(1)
	go p.run()
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for rec := range p.queue {
		payload, err := json.Marshal(rec)
		if err != nil {
			log.Printf("publish: encode: %v", err)
			continue
		}
		token := p.out.Publish(p.topic, 0, false, payload)
		if !token.WaitTimeout(5*time.Second) || token.Error() != nil {
			log.Printf("publish: %s: %v", p.topic, token.Error())
		}
	}
}

// Latch implements offset.Latcher.
func (p *Publisher) Latch(fix time.Time, s offset.Sample) {
	select {
	case p.queue <- NewRecord(fix, s):
	default:
		p.mu.Lock()
		p.dropped++
		p.mu.Unlock()
	}
}

// Dropped is the number of records discarded on a full queue.
func (p *Publisher) Dropped() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

// Close drains the queue and disconnects.
func (p *Publisher) Close() {
	p.once.Do(func() {
		close(p.queue)
		p.wg.Wait()
		if p.client != nil && p.client.IsConnected() {
			p.client.Disconnect(250)
		}
	})
}
