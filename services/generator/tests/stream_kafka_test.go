package tests

import (
	"encoding/json"

	"github.com/sakashimaa/sales-pipeline/pkg/domain"
	"github.com/sakashimaa/sales-pipeline/services/generator/internal/destination"
	"github.com/sakashimaa/sales-pipeline/services/generator/internal/destination/kafka"
	"github.com/sakashimaa/sales-pipeline/services/generator/internal/stream"
)

func (s *IntegrationTestSuite) TestStream_MissingTopicFails() {
	topic := kafka.New(s.KafkaBrokers, "sales-generator-test", "does-not-exist")
	defer topic.Close()

	loop := s.newLoop(topic, 1)

	err := loop.Run(s.Ctx)
	s.Require().ErrorIs(err, destination.ErrDestinationNotFound)
	s.Require().Equal(stream.StateFailed, loop.State())
}

func (s *IntegrationTestSuite) TestStream_PublishesKeyedEvents() {
	s.CreateTopic("sales-events", 3)

	topic := kafka.New(s.KafkaBrokers, "sales-generator-test", "sales-events")
	defer topic.Close()

	loop := s.newLoop(topic, 5)
	s.Require().NoError(loop.Run(s.Ctx))
	s.Require().Equal(stream.StateStopped, loop.State())
	s.Require().Equal(int64(5), loop.Stats().Published)

	for _, msg := range s.consume("sales-events", 5) {
		var event domain.SalesEvent
		s.Require().NoError(json.Unmarshal(msg.Value, &event))
		s.Require().NoError(event.Validate())
		s.Require().Equal(event.OrderID, string(msg.Key))
	}
}
