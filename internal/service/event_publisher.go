package service

import (
	"context"
	"encoding/json"
	"exam_proctor_backend/internal/model"
	"exam_proctor_backend/pkg/logger"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const ExamFinalizedRoutingKey = "exam.finalized"

// ExamFinalizedEvent 推送给招聘系统的定稿事件
type ExamFinalizedEvent struct {
	ExamID       string        `json:"examId"`
	CandidateKey string        `json:"candidate"`
	VacancyCode  string        `json:"vacancyCode"`
	Score        int           `json:"score"`
	Verdict      model.Verdict `json:"verdict"`
	FraudReason  *string       `json:"fraudReason,omitempty"`
	FinishedAt   time.Time     `json:"finishedAt"`
}

type EventPublisher interface {
	PublishExamFinalized(ctx context.Context, event ExamFinalizedEvent) error
	Close() error
}

// NoopPublisher 未配置 MQ 时使用
type NoopPublisher struct{}

func (NoopPublisher) PublishExamFinalized(context.Context, ExamFinalizedEvent) error { return nil }
func (NoopPublisher) Close() error                                                   { return nil }

// RabbitPublisher 发布到 topic exchange，单 channel 串行发布
type RabbitPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	mu       sync.Mutex
}

func NewRabbitPublisher(url, exchange string) (*RabbitPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	logger.Log.Info("RabbitMQ publisher ready", zap.String("exchange", exchange))
	return &RabbitPublisher{conn: conn, channel: ch, exchange: exchange}, nil
}

func (p *RabbitPublisher) PublishExamFinalized(ctx context.Context, event ExamFinalizedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.channel.PublishWithContext(ctx,
		p.exchange,
		ExamFinalizedRoutingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    event.ExamID,
			Timestamp:    time.Now(),
			Body:         body,
		})
}

func (p *RabbitPublisher) Close() error {
	if err := p.channel.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}
