package producer

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"github.com/vfurtado/drand-wager-platform-poc/pkg/contracts/events"
)

// KafkaPublisher publica os eventos de aposta nos tópicos wager_placed e
// wager_matched.
type KafkaPublisher struct {
	PlacedWriter  *kafka.Writer
	MatchedWriter *kafka.Writer
}

func NewKafkaPublisher(placed, matched *kafka.Writer) *KafkaPublisher {
	return &KafkaPublisher{PlacedWriter: placed, MatchedWriter: matched}
}

func (p *KafkaPublisher) PublishWagerPlaced(ctx context.Context, e events.WagerPlaced) error {
	b, _ := json.Marshal(e)
	return p.PlacedWriter.WriteMessages(ctx, kafka.Message{Key: []byte(e.BetID), Value: b})
}

func (p *KafkaPublisher) PublishWagerMatched(ctx context.Context, e events.WagerMatched) error {
	b, _ := json.Marshal(e)
	return p.MatchedWriter.WriteMessages(ctx, kafka.Message{Key: []byte(e.BetID), Value: b})
}
