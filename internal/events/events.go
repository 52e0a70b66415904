package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const (
	DefaultExchange         = "beehive_events"
	UploadCreatedRoutingKey = "upload.created"
	UploadDeletedRoutingKey = "upload.deleted"
	defaultPublishTimeout   = 5 * time.Second
	exchangeKindTopic       = "topic"
)

// UploadEvent 描述一次上传记录的生命周期变化。
type UploadEvent struct {
	UploadID  string    `json:"upload_id"`
	UserID    string    `json:"user_id"`
	Filename  string    `json:"filename"`
	Title     string    `json:"title"`
	MimeType  string    `json:"mime_type,omitempty"`
	SizeBytes int64     `json:"size_bytes,omitempty"`
	HasAudio  bool      `json:"has_audio"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher 投递上传事件。投递失败不影响主流程，由调用方记录日志。
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event UploadEvent) error
	Close() error
}

// channel 是 *amqp.Channel 中被用到的子集。
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher 把事件以 JSON 发到 topic exchange。
type AMQPPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       channel
	exchange string
	log      zerolog.Logger
}

// DialAMQP 建立连接并声明 exchange。
func DialAMQP(url, exchange string, log zerolog.Logger) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}

	p, err := newAMQPPublisher(ch, exchange, log)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

func newAMQPPublisher(ch channel, exchange string, log zerolog.Logger) (*AMQPPublisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	if err := ch.ExchangeDeclare(exchange, exchangeKindTopic, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &AMQPPublisher{ch: ch, exchange: exchange, log: log}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, routingKey string, event UploadEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()

	// amqp091 的 Channel 不保证并发安全
	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    event.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	p.log.Debug().Str("routing_key", routingKey).Str("upload_id", event.UploadID).Msg("event published")
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// NopPublisher 在未配置消息队列时使用。
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, UploadEvent) error { return nil }

func (NopPublisher) Close() error { return nil }
