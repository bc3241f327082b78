package rabbit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spockmay/bainbridge-now/internal/storage"
	"github.com/streadway/amqp"
)

var ErrNotConnected = errors.New("rabbit provider is not connected")

type Config struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	Queue    string
}

// Message announces one newly stored event.
type Message struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	EventType string    `json:"eventType"`
	Start     time.Time `json:"start"`
	URL       string    `json:"url,omitempty"`
	Source    string    `json:"source"`
}

func NewMessage(source string, e storage.Event) Message {
	return Message{
		ID:        e.ID,
		Name:      e.Name,
		EventType: e.EventType,
		Start:     e.StartTime.UTC(),
		URL:       e.URL,
		Source:    source,
	}
}

type Provider struct {
	conn       *amqp.Connection
	queue      amqp.Queue
	channel    *amqp.Channel
	connString string
	queueName  string
}

func New(config Config) *Provider {
	return &Provider{
		connString: fmt.Sprintf(
			"amqp://%s:%s@%s:%d/",
			config.User,
			config.Password,
			config.Host,
			config.Port,
		),
		queueName: config.Queue,
	}
}

func (r *Provider) Connect() error {
	var err error
	r.conn, err = amqp.Dial(r.connString)
	if err != nil {
		return fmt.Errorf("failed to connect to rabbit: %w", err)
	}

	r.channel, err = r.conn.Channel()
	if err != nil {
		r.abort()
		return fmt.Errorf("failed to open channel: %w", err)
	}
	r.queue, err = r.channel.QueueDeclare(
		r.queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		r.abort()
		return fmt.Errorf("failed to declare queue %q: %w", r.queueName, err)
	}
	return nil
}

// abort drops a half opened connection so a failed Connect leaves nothing behind.
func (r *Provider) abort() {
	if r.conn != nil {
		if err := r.conn.Close(); err != nil {
			log.Debugf("failed to close rabbit connection: %v", err)
		}
	}
	r.conn = nil
	r.channel = nil
}

func (r *Provider) Close() error {
	if r.conn == nil {
		return nil
	}
	return r.conn.Close()
}

func (r *Provider) Publish(body []byte) error {
	if r.channel == nil {
		return ErrNotConnected
	}
	return r.channel.Publish(
		"",           // exchange
		r.queue.Name, // routing key
		false,        // mandatory
		false,        // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		})
}

// Notify publishes a Message for e.
func (r *Provider) Notify(_ context.Context, source string, e storage.Event) error {
	data, err := json.Marshal(NewMessage(source, e))
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	if err := r.Publish(data); err != nil {
		return fmt.Errorf("failed to publish event %d: %w", e.ID, err)
	}
	return nil
}

// Consume decodes every message of the queue and passes it to process until
// ctx is done or the channel is closed. Undecodable messages are logged and dropped.
func (r *Provider) Consume(ctx context.Context, process func(m Message)) error {
	if r.channel == nil {
		return ErrNotConnected
	}
	msgs, err := r.channel.Consume(
		r.queue.Name, // queue
		"",           // consumer
		true,         // auto-ack
		false,        // exclusive
		false,        // no-local
		false,        // no-wait
		nil,          // args
	)
	if err != nil {
		return fmt.Errorf("failed to consume %q: %w", r.queue.Name, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return nil
			}
			m, err := DecodeMessage(d.Body)
			if err != nil {
				log.Errorf("failed to parse message: %v", err)
				continue
			}
			process(m)
		}
	}
}

func DecodeMessage(body []byte) (Message, error) {
	m := Message{}
	if err := json.Unmarshal(body, &m); err != nil {
		return Message{}, fmt.Errorf("failed to decode message: %w", err)
	}
	return m, nil
}
