package worker

import (
	"context"
	"encoding/json"

	"panel-service/internal/models"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

func (m *PartitionManager) runConsumer(ctx context.Context, partition int, partitionConsumer sarama.PartitionConsumer, processor *EventProcessor) {
	for {
		select {
		case <-ctx.Done():
			// Context canceled - terminating work
			log.Infof("Partition %d: shutdown signal received", partition)
			return

		case msg := <-partitionConsumer.Messages():
			var event models.OperationEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				log.WithError(err).Errorf("Partition %d: failed to unmarshal callback", partition)
				continue
			}
			processor.Apply(ctx, event)

		case err := <-partitionConsumer.Errors():
			log.WithError(err).Errorf("Partition %d: Kafka error", partition)
		}
	}
}
