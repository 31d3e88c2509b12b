package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/aihub/researchgraph/internal/logger"
)

// Producer Kafka生产者
type Producer struct {
	producer sarama.SyncProducer
	topic    string
}

// QueryIngestedEvent 查询摄取完成事件
type QueryIngestedEvent struct {
	QueryID      uint      `json:"query_id"`
	UserID       uint      `json:"user_id"`
	TopicID      uint      `json:"topic_id,omitempty"`
	TopicCreated bool      `json:"topic_created"`
	SourceCount  int       `json:"source_count"`
	EchoCount    int       `json:"echo_count"`
	Timestamp    time.Time `json:"timestamp"`
}

// DirectionFinishedEvent 研究方向终态事件
type DirectionFinishedEvent struct {
	DirectionID  uint      `json:"direction_id"`
	TopicAID     uint      `json:"topic_a_id"`
	TopicBID     uint      `json:"topic_b_id"`
	Status       string    `json:"status"`
	SourcesFound int       `json:"sources_found"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewProducer 创建Kafka生产者
func NewProducer(brokers []string, topic string) (*Producer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Timeout = 10 * time.Second

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	logger.Info("Kafka生产者初始化成功", zap.Strings("brokers", brokers), zap.String("topic", topic))
	return &Producer{producer: producer, topic: topic}, nil
}

// PublishQueryIngested 发布查询摄取事件，事件投递是尽力而为
func (p *Producer) PublishQueryIngested(event *QueryIngestedEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	key := fmt.Sprintf("query-%d", event.QueryID)
	return p.send(key, "query_ingested", event)
}

// PublishDirectionFinished 发布研究方向终态事件
func (p *Producer) PublishDirectionFinished(event *DirectionFinishedEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	key := fmt.Sprintf("direction-%d", event.DirectionID)
	return p.send(key, "direction_finished", event)
}

func (p *Producer) send(key, eventType string, payload interface{}) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka producer not initialized")
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(eventType)},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		logger.Error("发送Kafka消息失败", zap.String("event_type", eventType), zap.Error(err))
		return fmt.Errorf("failed to send event: %w", err)
	}

	logger.Debug("Kafka消息发送成功",
		zap.String("event_type", eventType),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))
	return nil
}

// Close 关闭生产者
func (p *Producer) Close() error {
	if p == nil || p.producer == nil {
		return nil
	}
	return p.producer.Close()
}
