package mq

import (
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
)

func TestKafkaPublisher_Publish(t *testing.T) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	producer := mocks.NewSyncProducer(t, cfg)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != `{"event":"expense.recorded"}` {
			t.Errorf("unexpected payload %s", val)
		}
		return nil
	})

	p := NewKafkaPublisher(producer)
	if err := p.Publish("anggaran.budget-events", "BDG-1", []byte(`{"event":"expense.recorded"}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestKafkaPublisher_PublishError(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewKafkaPublisher(producer)
	if err := p.Publish("topic", "key", []byte("x")); err == nil {
		t.Fatal("expected error")
	}
	_ = p.Close()
}
