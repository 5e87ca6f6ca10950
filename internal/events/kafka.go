package events

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// messageWriter is the subset of *kafka.Writer used by KafkaPublisher.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher buffers events in memory and writes them to a Kafka topic
// from a single background goroutine. Events are keyed by order ID so every
// change of one order lands in the same partition.
type KafkaPublisher struct {
	w     messageWriter
	lg    *zap.Logger
	inbox chan kafka.Message

	startOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}
}

var _ Publisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher creates a publisher for the given brokers and topic. buf
// bounds the number of undelivered events; when it is full new events are
// dropped and logged.
func NewKafkaPublisher(brokers []string, topic string, buf int, lg *zap.Logger) *KafkaPublisher {
	return newKafkaPublisher(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}, buf, lg)
}

func newKafkaPublisher(w messageWriter, buf int, lg *zap.Logger) *KafkaPublisher {
	if buf <= 0 {
		buf = 1
	}
	return &KafkaPublisher{
		w:     w,
		lg:    lg,
		inbox: make(chan kafka.Message, buf),
		done:  make(chan struct{}),
	}
}

// Start launches the delivery loop. It is safe to call more than once.
func (p *KafkaPublisher) Start() {
	p.startOnce.Do(func() {
		go p.loop()
	})
}

func (p *KafkaPublisher) loop() {
	defer close(p.done)
	for m := range p.inbox {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := p.w.WriteMessages(ctx, m); err != nil {
			p.lg.Warn("Publish stock event",
				zap.ByteString("key", m.Key),
				zap.Error(err),
			)
		}
		cancel()
	}
	if err := p.w.Close(); err != nil {
		p.lg.Warn("Close kafka writer", zap.Error(err))
	}
}

// Publish implements Publisher.
func (p *KafkaPublisher) Publish(_ context.Context, e Event) {
	value, err := json.Marshal(e)
	if err != nil {
		p.lg.Error("Marshal stock event", zap.Error(err))
		return
	}

	m := kafka.Message{
		Key:   []byte(strconv.FormatInt(e.OrderID, 10)),
		Value: value,
		Time:  e.OccurredAt,
		Headers: []kafka.Header{
			{Key: "x-event-type", Value: []byte(e.Type)},
			{Key: "x-event-version", Value: []byte("1")},
		},
	}

	select {
	case p.inbox <- m:
	default:
		p.lg.Warn("Stock event buffer full, dropping event",
			zap.String("event_id", e.ID),
			zap.String("event_type", string(e.Type)),
		)
	}
}

// Close stops accepting events, flushes the buffer and closes the writer.
// Publish must not be called after Close.
func (p *KafkaPublisher) Close() {
	p.closeOnce.Do(func() {
		close(p.inbox)
	})
	p.Start()
	<-p.done
}
