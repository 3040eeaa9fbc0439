package main

import (
	"sync/atomic"

	"github.com/IBM/sarama"
	"sutext.github.io/tether/client"
	"sutext.github.io/tether/xlog"
)

// bridge republishes inbound messages to a Kafka topic, keyed by message type.
type bridge struct {
	topic     string
	session   string
	logger    *xlog.Logger
	producer  sarama.SyncProducer
	forwarded atomic.Uint64
}

func newKafkaProducer(brokers []string) (sarama.SyncProducer, error) {
	conf := sarama.NewConfig()
	conf.Producer.Return.Successes = true
	conf.Producer.RequiredAcks = sarama.WaitForAll
	conf.Producer.Partitioner = sarama.NewHashPartitioner
	return sarama.NewSyncProducer(brokers, conf)
}

func newBridge(producer sarama.SyncProducer, topic, session string, logger *xlog.Logger) *bridge {
	return &bridge{
		topic:    topic,
		session:  session,
		logger:   logger,
		producer: producer,
	}
}

func (b *bridge) forward(m *client.Message) error {
	msg := &sarama.ProducerMessage{
		Topic: b.topic,
		Key:   sarama.StringEncoder(m.Type),
		Value: sarama.ByteEncoder(m.Raw),
		Headers: []sarama.RecordHeader{
			{Key: []byte("tether-type"), Value: []byte(m.Type)},
			{Key: []byte("tether-session"), Value: []byte(b.session)},
		},
	}
	partition, offset, err := b.producer.SendMessage(msg)
	if err != nil {
		b.logger.Error("kafka publish failed", xlog.Str("topic", b.topic), xlog.Err(err))
		return err
	}
	b.forwarded.Add(1)
	b.logger.Debug("kafka publish", xlog.Str("topic", b.topic), xlog.Int("partition", int(partition)), xlog.Int64("offset", offset))
	return nil
}

// Close flushes the producer and logs how many messages went through.
func (b *bridge) Close() error {
	err := b.producer.Close()
	b.logger.Info("kafka bridge closed", xlog.Str("topic", b.topic), xlog.Uint64("forwarded", b.forwarded.Load()), xlog.Err(err))
	return err
}
