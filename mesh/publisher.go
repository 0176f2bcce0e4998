package mesh

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// BoundMessage is the payload published for each aligned frame.
type BoundMessage struct {
	RunID     string `json:"runId"`
	Frame     int    `json:"frame"`
	Bound     Quad   `json:"bound"`
	Timestamp int64  `json:"timestamp"`
}

// RunSummary is the payload published once a run completes.
type RunSummary struct {
	RunID     string `json:"runId"`
	Frames    int    `json:"frames"`
	Aligned   int    `json:"aligned"`
	Missing   int    `json:"missing"`
	Landmarks int    `json:"landmarks"`
	Okay      int    `json:"okay"`
	Timestamp int64  `json:"timestamp"`
}

// Publisher publishes alignment results to MQTT
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	runID         string
	qos           byte
	retain        bool
	published     int
	mu            sync.RWMutex
}

// NewPublisher creates a new bound publisher. MQTT_PUBLISH_PREFIX overrides
// prefix; an empty prefix falls back to "skymesh".
// If client is nil, publishing is disabled (for testing)
func NewPublisher(client mqtt.Client, prefix string) *Publisher {
	if env := os.Getenv("MQTT_PUBLISH_PREFIX"); env != "" {
		prefix = env
	}
	if prefix == "" {
		prefix = "skymesh"
	}

	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		runID:         uuid.NewString(),
		qos:           0,    // QoS 0 for per-frame bounds (fire and forget)
		retain:        true, // Retain so late subscribers see the last run
	}
}

// NewPublisherFromConfig creates a publisher using the prefix, QoS and
// retain flag from cfg.
func NewPublisherFromConfig(client mqtt.Client, cfg MQTTConfig) *Publisher {
	p := NewPublisher(client, cfg.PublishPrefix)
	p.SetQoS(cfg.QoS)
	p.SetRetain(cfg.Retain)
	return p
}

// RunID identifies this publisher's run in every payload.
func (p *Publisher) RunID() string {
	return p.runID
}

// Published returns how many frame bounds have been published.
func (p *Publisher) Published() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.published
}

// PublishBound publishes one frame's world bound to <prefix>/bounds/<frame>
func (p *Publisher) PublishBound(frame int, bound Quad) error {
	msg := BoundMessage{
		RunID:     p.runID,
		Frame:     frame,
		Bound:     bound.Round(),
		Timestamp: time.Now().Unix(),
	}
	topic := fmt.Sprintf("%s/bounds/%d", p.publishPrefix, frame)
	if err := p.publish(topic, msg); err != nil {
		return err
	}

	p.mu.Lock()
	p.published++
	p.mu.Unlock()
	return nil
}

// PublishBounds publishes every present bound and returns the first error.
// Publishing continues past failures.
func (p *Publisher) PublishBounds(bounds []*Quad) error {
	var firstErr error
	for i, b := range bounds {
		if b == nil {
			continue
		}
		if err := p.PublishBound(i, *b); err != nil {
			log.Printf("Error publishing bound for frame %d: %v", i, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// PublishSummary publishes the run summary to <prefix>/summary
func (p *Publisher) PublishSummary(summary RunSummary) error {
	summary.RunID = p.runID
	summary.Timestamp = time.Now().Unix()
	topic := fmt.Sprintf("%s/summary", p.publishPrefix)
	if err := p.publish(topic, summary); err != nil {
		return err
	}
	log.Printf("Published summary: %d/%d frames aligned, %d landmarks",
		summary.Aligned, summary.Frames, summary.Landmarks)
	return nil
}

func (p *Publisher) publish(topic string, v interface{}) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling payload for %s: %w", topic, err)
	}

	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether published messages should be retained by the broker
func (p *Publisher) SetRetain(retain bool) {
	p.retain = retain
}
