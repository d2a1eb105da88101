package amqp

import (
	"encoding/json"
	"time"
)

// CategorizeBatchMessage asks the categorization worker to run one batch over
// the uncategorized backlog. It carries only the batch size; the worker reads
// the pending transactions from the database.
type CategorizeBatchMessage struct {
	BatchSize int       `json:"batch_size"`
	Timestamp time.Time `json:"timestamp"`
}

func NewCategorizeBatchMessage(batchSize int) *CategorizeBatchMessage {
	return &CategorizeBatchMessage{
		BatchSize: batchSize,
		Timestamp: time.Now(),
	}
}

func (m *CategorizeBatchMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func CategorizeBatchMessageFromJSON(data []byte) (*CategorizeBatchMessage, error) {
	var msg CategorizeBatchMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
