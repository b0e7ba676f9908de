package queue

import (
	"fmt"

	"github.com/hibiken/asynq"

	"merchant-docs-rag/internal/logger"
)

// Client enqueues background indexing work.
type Client struct {
	client *asynq.Client
}

func NewClient(redisAddr, password string, db int) *Client {
	return &Client{
		client: asynq.NewClient(asynq.RedisClientOpt{
			Addr:     redisAddr,
			Password: password,
			DB:       db,
		}),
	}
}

// EnqueueDocument queues a document for indexing.
func (c *Client) EnqueueDocument(payload DocumentProcessPayload) error {
	task, err := NewDocumentProcessTask(payload)
	if err != nil {
		return fmt.Errorf("failed to build task: %w", err)
	}
	info, err := c.client.Enqueue(task)
	if err != nil {
		return fmt.Errorf("failed to enqueue document %s: %w", payload.DocumentID, err)
	}
	logger.Debug("Document enqueued",
		"document_id", payload.DocumentID, "task_id", info.ID, "queue", info.Queue)
	return nil
}

func (c *Client) Close() error {
	return c.client.Close()
}
