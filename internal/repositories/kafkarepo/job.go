package kafkarepo

import (
	"context"
	"encoding/json"
	"fmt"

	"panel-service/internal/models"

	"github.com/segmentio/kafka-go"
)

type JobRepository struct {
	writer *kafka.Writer
}

func NewJobRepository(writer *kafka.Writer) *JobRepository {
	return &JobRepository{
		writer: writer,
	}
}

// SendJob hands a job to the automation worker pool. There is no
// synchronous result: the worker eventually reports back on the events
// topic and the operation row is advanced from there.
func (r *JobRepository) SendJob(ctx context.Context, msg models.JobMessage) error {
	msgBytes, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal job message: %w", err)
	}

	// Use the operation ID as key so jobs for one operation stay ordered
	err = r.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.OperationID),
		Value: msgBytes,
	})

	if err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	return nil
}
