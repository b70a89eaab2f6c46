package worker

import (
	"context"
	"fmt"
	"sync"

	"panel-service/internal/config"
	"panel-service/internal/services"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

// PartitionManager runs one consumer loop per partition of the
// operation-events topic, where automation workers report their
// progress. Every report is applied to the operation row through the
// compare-and-swap transition primitive.
type PartitionManager struct {
	cfg              *config.Config
	operationService *services.OperationService
	wg               sync.WaitGroup
}

func NewPartitionManager(cfg *config.Config, operationService *services.OperationService) *PartitionManager {
	return &PartitionManager{
		cfg:              cfg,
		operationService: operationService,
	}
}

func (m *PartitionManager) Start(ctx context.Context) error {
	log.Infof("Starting callback consumers for %d partitions", m.cfg.Kafka.Partitions)

	consumer, err := sarama.NewConsumer(m.cfg.Kafka.Brokers, m.cfg.Kafka.GetSaramaConfig())
	if err != nil {
		return fmt.Errorf("failed to create Kafka consumer: %w", err)
	}
	defer consumer.Close()

	for partition := 0; partition < m.cfg.Kafka.Partitions; partition++ {
		m.wg.Add(1)
		go m.startConsumerForPartition(ctx, consumer, partition)
	}

	// Wait for all consumers to complete to prevent program termination
	m.wg.Wait()
	log.Info("All partition consumers stopped")
	return nil
}

func (m *PartitionManager) startConsumerForPartition(ctx context.Context, consumer sarama.Consumer, partition int) {
	defer m.wg.Done()

	log.Infof("Starting callback consumer for partition %d", partition)

	partitionConsumer, err := consumer.ConsumePartition(
		m.cfg.Kafka.EventsTopic,
		int32(partition),
		sarama.OffsetNewest,
	)
	if err != nil {
		log.WithError(err).Errorf("Partition %d: failed to create partition consumer", partition)
		return
	}
	defer partitionConsumer.Close()

	processor := NewEventProcessor(partition, m.operationService)

	m.runConsumer(ctx, partition, partitionConsumer, processor)
}
