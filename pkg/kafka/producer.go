package kafka

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

type Producer interface {
	SendMessage(ctx context.Context, topic, key string, value []byte) (partition int32, offset int64, err error)
	Close() error
}

type producer struct {
	syncProducer sarama.SyncProducer
}

// NewConfig returns a sync-producer config that hashes on the message key
// and never creates topics implicitly.
func NewConfig(clientID string) *sarama.Config {
	config := sarama.NewConfig()
	config.ClientID = clientID
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Partitioner = sarama.NewHashPartitioner
	config.Metadata.AllowAutoTopicCreation = false

	return config
}

func NewClient(brokers []string, clientID string) (sarama.Client, error) {
	client, err := sarama.NewClient(brokers, NewConfig(clientID))
	if err != nil {
		return nil, fmt.Errorf("error creating kafka client: %w", err)
	}

	return client, nil
}

// NewProducerFromClient shares the client's broker connections. Closing the
// producer does not close the client.
func NewProducerFromClient(client sarama.Client) (Producer, error) {
	p, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		return nil, fmt.Errorf("error creating producer: %w", err)
	}

	return &producer{syncProducer: p}, nil
}

func (p *producer) SendMessage(ctx context.Context, topic, key string, value []byte) (int32, int64, error) {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	headers := make([]sarama.RecordHeader, 0, len(carrier))
	for k, v := range carrier {
		headers = append(headers, sarama.RecordHeader{
			Key:   []byte(k),
			Value: []byte(v),
		})
	}

	msg := &sarama.ProducerMessage{
		Topic:   topic,
		Key:     sarama.StringEncoder(key),
		Value:   sarama.ByteEncoder(value),
		Headers: headers,
	}

	partition, offset, err := p.syncProducer.SendMessage(msg)
	if err != nil {
		return 0, 0, fmt.Errorf("error sending message: %w", err)
	}

	return partition, offset, nil
}

func (p *producer) Close() error {
	return p.syncProducer.Close()
}

// TopicPartitions reports the partitions of topic.
// Unknown topics yield sarama.ErrUnknownTopicOrPartition.
func TopicPartitions(client sarama.Client, topic string) ([]int32, error) {
	partitions, err := client.Partitions(topic)
	if err != nil {
		return nil, err
	}

	if len(partitions) == 0 {
		return nil, sarama.ErrUnknownTopicOrPartition
	}

	return partitions, nil
}
