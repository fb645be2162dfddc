package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// IngestConsumerConfig configures an IngestConsumer.
type IngestConsumerConfig struct {
	// Group and Consumer name this reader inside the ingest consumer group. Both are required.
	Group    string
	Consumer string

	// Count bounds the entries taken per read or reclaim. Default: 50.
	Count int64

	// Block is how long one read waits for new entries. Default: 5 seconds.
	Block time.Duration

	// ReclaimInterval is how often unacknowledged entries are looked at again. Default: 30 seconds.
	ReclaimInterval time.Duration

	// MinIdle is how long an entry must stay unacknowledged before any consumer of the group
	// takes it over. Default: 1 minute.
	MinIdle time.Duration

	// MaxDeliveries drops an entry once it has been delivered this many times without an ack.
	// Zero retries forever.
	MaxDeliveries int64

	// RetryInterval and MaxRetryInterval bound the backoff after a failed read.
	// Defaults: 1 second and 30 seconds.
	RetryInterval    time.Duration
	MaxRetryInterval time.Duration
}

// Delivery is one ingest event handed to a DeliveryHandler.
type Delivery struct {
	ID    string
	Event IngestEvent
	// Redelivered is set when the entry was delivered before without being acknowledged.
	Redelivered bool
}

// DeliveryHandler processes one event. A nil return acknowledges the entry; an error leaves it
// pending so it is delivered again.
type DeliveryHandler func(ctx context.Context, d Delivery) error

// IngestConsumer reads IngestStream through a consumer group with at-least-once delivery.
// Entries this consumer left pending are replayed on start, and entries idle longer than
// MinIdle are reclaimed every ReclaimInterval.
type IngestConsumer struct {
	client *Client
	config IngestConsumerConfig
	logger *zap.Logger
}

// NewIngestConsumer validates config and fills its defaults.
func NewIngestConsumer(client *Client, logger *zap.Logger, config IngestConsumerConfig) (*IngestConsumer, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if config.Group == "" || config.Consumer == "" {
		return nil, errors.New("consumer group and consumer name are required")
	}
	if config.Count <= 0 {
		config.Count = 50
	}
	if config.Block <= 0 {
		config.Block = 5 * time.Second
	}
	if config.ReclaimInterval <= 0 {
		config.ReclaimInterval = 30 * time.Second
	}
	if config.MinIdle <= 0 {
		config.MinIdle = time.Minute
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = time.Second
	}
	if config.MaxRetryInterval <= 0 {
		config.MaxRetryInterval = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &IngestConsumer{
		client: client,
		config: config,
		logger: logger.With(zap.String("group", config.Group), zap.String("consumer", config.Consumer)),
	}, nil
}

// Run consumes until ctx is cancelled.
func (ic *IngestConsumer) Run(ctx context.Context, handler DeliveryHandler) error {
	if err := ic.ensureGroup(ctx); err != nil {
		return err
	}
	if err := ic.replayOwn(ctx, handler); err != nil {
		return err
	}

	retryInterval := ic.config.RetryInterval
	nextReclaim := time.Now().Add(ic.config.ReclaimInterval)

	for {
		if err := ctx.Err(); err != nil {
			ic.logger.Info("Ingest consumer shutting down")
			return err
		}

		if !time.Now().Before(nextReclaim) {
			if err := ic.reclaim(ctx, handler); err != nil && ctx.Err() == nil {
				ic.logger.Warn("Reclaiming pending entries failed", zap.Error(err))
			}
			nextReclaim = time.Now().Add(ic.config.ReclaimInterval)
		}

		messages, err := ic.read(ctx, ">", ic.config.Block)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			ic.logger.Warn("Reading ingest stream failed, will retry",
				zap.Error(err),
				zap.Duration("retryIn", retryInterval))
			select {
			case <-time.After(retryInterval):
				retryInterval = min(retryInterval*2, ic.config.MaxRetryInterval)
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		retryInterval = ic.config.RetryInterval

		for _, msg := range messages {
			ic.process(ctx, handler, msg, false)
		}
	}
}

func (ic *IngestConsumer) ensureGroup(ctx context.Context) error {
	err := ic.client.rdb.XGroupCreateMkStream(ctx, IngestStream, ic.config.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return err
	}
	ic.logger.Info("Consumer group ready", zap.String("stream", IngestStream))
	return nil
}

// read returns entries of this consumer: new ones for ">", its own pending ones after any other id.
// A read that times out returns no entries and no error.
func (ic *IngestConsumer) read(ctx context.Context, start string, block time.Duration) ([]redis.XMessage, error) {
	args := &redis.XReadGroupArgs{
		Group:    ic.config.Group,
		Consumer: ic.config.Consumer,
		Streams:  []string{IngestStream, start},
		Count:    ic.config.Count,
		Block:    block,
	}
	if block <= 0 {
		args.Block = -1
	}
	streams, err := ic.client.rdb.XReadGroup(ctx, args).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []redis.XMessage
	for _, s := range streams {
		out = append(out, s.Messages...)
	}
	return out, nil
}

// replayOwn walks the pending list of this consumer from the start, which holds whatever a
// previous run read but never acknowledged.
func (ic *IngestConsumer) replayOwn(ctx context.Context, handler DeliveryHandler) error {
	start := "0"
	replayed := 0
	for {
		messages, err := ic.read(ctx, start, 0)
		if err != nil {
			return err
		}
		if len(messages) == 0 {
			break
		}
		for _, msg := range messages {
			ic.process(ctx, handler, msg, true)
			start = msg.ID
		}
		replayed += len(messages)
	}
	if replayed > 0 {
		ic.logger.Info("Replayed pending ingest entries", zap.Int("entries", replayed))
	}
	return nil
}

// reclaim takes over entries of the whole group that stayed unacknowledged for MinIdle.
// Entries past MaxDeliveries are acknowledged and dropped.
func (ic *IngestConsumer) reclaim(ctx context.Context, handler DeliveryHandler) error {
	pending, err := ic.client.rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: IngestStream,
		Group:  ic.config.Group,
		Idle:   ic.config.MinIdle,
		Start:  "-",
		End:    "+",
		Count:  ic.config.Count,
	}).Result()
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(pending))
	for _, p := range pending {
		if ic.config.MaxDeliveries > 0 && p.RetryCount >= ic.config.MaxDeliveries {
			ic.logger.Error("Dropping ingest entry after repeated failures",
				zap.String("id", p.ID),
				zap.Int64("deliveries", p.RetryCount))
			ic.ack(ctx, p.ID)
			continue
		}
		ids = append(ids, p.ID)
	}
	if len(ids) == 0 {
		return nil
	}

	messages, err := ic.client.rdb.XClaim(ctx, &redis.XClaimArgs{
		Stream:   IngestStream,
		Group:    ic.config.Group,
		Consumer: ic.config.Consumer,
		MinIdle:  ic.config.MinIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		return err
	}
	for _, msg := range messages {
		ic.process(ctx, handler, msg, true)
	}
	return nil
}

// process hands one entry to handler and acknowledges it unless handler fails. Entries that were
// trimmed from the stream or cannot be decoded are acknowledged without calling handler.
func (ic *IngestConsumer) process(ctx context.Context, handler DeliveryHandler, msg redis.XMessage, redelivered bool) {
	if len(msg.Values) == 0 {
		ic.logger.Warn("Ingest entry was trimmed before delivery", zap.String("id", msg.ID))
		ic.ack(ctx, msg.ID)
		return
	}
	event, err := DecodeIngest(msg.Values)
	if err != nil {
		ic.logger.Warn("Dropping malformed ingest entry", zap.String("id", msg.ID), zap.Error(err))
		ic.ack(ctx, msg.ID)
		return
	}

	if err := handler(ctx, Delivery{ID: msg.ID, Event: event, Redelivered: redelivered}); err != nil {
		ic.logger.Warn("Ingest entry left pending",
			zap.String("id", msg.ID),
			zap.Bool("redelivered", redelivered),
			zap.Error(err))
		return
	}
	ic.ack(ctx, msg.ID)
}

func (ic *IngestConsumer) ack(ctx context.Context, id string) {
	if err := ic.client.rdb.XAck(ctx, IngestStream, ic.config.Group, id).Err(); err != nil {
		ic.logger.Warn("Acknowledging ingest entry failed", zap.String("id", id), zap.Error(err))
	}
}
