package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/suite"
	kafkatestcontainers "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/pure-golang/mailblast/queue"
)

type KafkaSuite struct {
	suite.Suite
	brokers        []string
	kafkaContainer *kafkatestcontainers.KafkaContainer
}

func TestKafkaSuite(t *testing.T) {
	suite.Run(t, new(KafkaSuite))
}

func (s *KafkaSuite) SetupSuite() {
	if testing.Short() {
		s.T().Skip("integration test is skipped")
	}
	ctx := context.Background()

	c, err := kafkatestcontainers.Run(ctx, "confluentinc/cp-kafka:7.6.0",
		kafkatestcontainers.WithClusterID("test-cluster-"+uuid.NewString()),
	)
	s.Require().NoError(err, "failed to start Kafka container")
	s.kafkaContainer = c

	s.brokers, err = c.Brokers(ctx)
	s.Require().NoError(err)
}

func (s *KafkaSuite) TearDownSuite() {
	if s.kafkaContainer != nil {
		s.NoError(s.kafkaContainer.Terminate(context.Background()))
	}
}

func (s *KafkaSuite) TestPublishKeepsOrder() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	topic := "progress-" + uuid.NewString()
	conn, err := kafkago.Dial("tcp", s.brokers[0])
	s.Require().NoError(err)
	s.Require().NoError(conn.CreateTopics(kafkago.TopicConfig{Topic: topic, NumPartitions: 3, ReplicationFactor: 1}))
	s.Require().NoError(conn.Close())

	d := NewDialer(Config{Brokers: s.brokers, Topic: topic}, nil)
	defer func() { s.NoError(d.Close()) }()
	s.Require().NoError(d.Ping(ctx))

	pub := NewPublisher(d, PublisherConfig{})
	defer func() { s.NoError(pub.Close()) }()

	msgs := make([]queue.Message, 5)
	for i := range msgs {
		msgs[i] = queue.Message{Key: "run-1", Body: map[string]int{"sent": i + 1}}
	}
	s.Require().NoError(pub.Publish(ctx, msgs...))

	r := kafkago.NewReader(kafkago.ReaderConfig{Brokers: s.brokers, Topic: topic, GroupID: uuid.NewString(), StartOffset: kafkago.FirstOffset})
	defer r.Close()

	for i := range msgs {
		m, err := r.ReadMessage(ctx)
		s.Require().NoError(err)
		s.Equal("run-1", string(m.Key))
		s.JSONEq(`{"sent":`+string(rune('1'+i))+`}`, string(m.Value))
	}
}
