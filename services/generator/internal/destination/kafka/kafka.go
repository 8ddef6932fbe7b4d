// Package kafka publishes to a Kafka topic, keyed so that every message of
// one order lands on the same partition.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/IBM/sarama"
	pkgkafka "github.com/sakashimaa/sales-pipeline/pkg/kafka"
	"github.com/sakashimaa/sales-pipeline/services/generator/internal/destination"
)

type Topic struct {
	mu       sync.Mutex
	brokers  []string
	clientID string
	topic    string
	client   sarama.Client
	producer pkgkafka.Producer
}

func New(brokers []string, clientID, topic string) *Topic {
	return &Topic{
		brokers:  brokers,
		clientID: clientID,
		topic:    topic,
	}
}

func (t *Topic) Name() string {
	return "kafka:" + t.topic
}

// Validate returns early when ctx is done; sarama itself only gives up after
// its dial timeout and metadata retries.
func (t *Topic) Validate(ctx context.Context) error {
	return destination.Await(ctx, func() error {
		client, err := t.ensureClient()
		if err != nil {
			return err
		}

		if _, err := pkgkafka.TopicPartitions(client, t.topic); err != nil {
			return t.mapError(err)
		}

		return nil
	})
}

func (t *Topic) Publish(ctx context.Context, key string, payload []byte) (destination.Receipt, error) {
	producer, err := t.ensureProducer()
	if err != nil {
		return destination.Receipt{}, err
	}

	partition, offset, err := producer.SendMessage(ctx, t.topic, key, payload)
	if err != nil {
		return destination.Receipt{}, t.mapError(err)
	}

	return destination.Receipt{
		Partition: strconv.FormatInt(int64(partition), 10),
		Sequence:  strconv.FormatInt(offset, 10),
	}, nil
}

func (t *Topic) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var errs []error
	if t.producer != nil {
		errs = append(errs, t.producer.Close())
		t.producer = nil
	}
	if t.client != nil {
		errs = append(errs, t.client.Close())
		t.client = nil
	}

	return errors.Join(errs...)
}

func (t *Topic) ensureClient() (sarama.Client, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client != nil {
		return t.client, nil
	}

	client, err := pkgkafka.NewClient(t.brokers, t.clientID)
	if err != nil {
		return nil, t.mapError(err)
	}

	t.client = client
	return client, nil
}

func (t *Topic) ensureProducer() (pkgkafka.Producer, error) {
	client, err := t.ensureClient()
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.producer != nil {
		return t.producer, nil
	}

	producer, err := pkgkafka.NewProducerFromClient(client)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", destination.ErrTransient, err)
	}

	t.producer = producer
	return producer, nil
}

func (t *Topic) mapError(err error) error {
	switch {
	case errors.Is(err, sarama.ErrUnknownTopicOrPartition):
		return fmt.Errorf("%w: kafka topic %q", destination.ErrDestinationNotFound, t.topic)
	case errors.Is(err, sarama.ErrTopicAuthorizationFailed),
		errors.Is(err, sarama.ErrClusterAuthorizationFailed),
		errors.Is(err, sarama.ErrSASLAuthenticationFailed):
		return fmt.Errorf("%w: kafka topic %q: %v", destination.ErrUnauthorized, t.topic, err)
	default:
		return fmt.Errorf("%w: %w", destination.ErrTransient, err)
	}
}
