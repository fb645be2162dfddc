package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// IngestStream carries one entry per crawl cycle that stored accepted submissions.
const IngestStream = "atcoder:ingest"

// IngestEvent tells the aggregator which users need their derived rows recomputed.
type IngestEvent struct {
	CycleID     string    `json:"cycle_id"`
	Cycle       string    `json:"cycle"`
	UserIDs     []string  `json:"user_ids"`
	Submissions int       `json:"submissions"`
	At          time.Time `json:"at"`
}

// PublishIngest appends the event to IngestStream under the "data" field.
func (c *Client) PublishIngest(ctx context.Context, event IngestEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode ingest event: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: IngestStream,
		Values: map[string]interface{}{"cycle_id": event.CycleID, "data": string(data)},
	}
	if c.streamMaxLen > 0 {
		args.MaxLen = c.streamMaxLen
		args.Approx = true
	}
	id, err := c.rdb.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", IngestStream, err)
	}
	c.logger.Debug("Published ingest event",
		zap.String("entry_id", id),
		zap.String("cycle_id", event.CycleID),
		zap.Int("users", len(event.UserIDs)))
	return nil
}

// DecodeIngest parses the event carried in the fields of a stream entry.
func DecodeIngest(values map[string]interface{}) (IngestEvent, error) {
	var data []byte
	switch v := values["data"].(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return IngestEvent{}, fmt.Errorf("entry has no data field")
	}
	var event IngestEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return IngestEvent{}, fmt.Errorf("decode ingest event: %w", err)
	}
	return event, nil
}
