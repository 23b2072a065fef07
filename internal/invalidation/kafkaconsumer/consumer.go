// Package kafkaconsumer evicts cached layer results when feature
// change events arrive. One consumer group instance per process; the
// partition assignment shards events across replicas.
package kafkaconsumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"github.com/AtoZ-LocIntel/enrichment-engine/internal/cache/cellkey"
	"github.com/AtoZ-LocIntel/enrichment-engine/internal/core/observability"
	"github.com/AtoZ-LocIntel/enrichment-engine/internal/invalidation"
)

// Invalidator is the eviction capability the consumer drives,
// satisfied by resultcache.Store.
type Invalidator interface {
	InvalidateCells(ctx context.Context, layer string, cells []string) (int, error)
	Resolution() int
}

// CellMapper turns an event's affected region into cells.
type CellMapper interface {
	ForBBox(x1, y1, x2, y2 float64, res int) ([]string, error)
	ForPolygonGeoJSON(raw []byte, res int) ([]string, error)
}

// cellkeyMapper is the production CellMapper.
type cellkeyMapper struct{}

func (cellkeyMapper) ForBBox(x1, y1, x2, y2 float64, res int) ([]string, error) {
	return cellkey.ForBBox(x1, y1, x2, y2, res)
}

func (cellkeyMapper) ForPolygonGeoJSON(raw []byte, res int) ([]string, error) {
	return cellkey.ForPolygonGeoJSON(raw, res)
}

type Consumer struct {
	cfg    Config
	logger *slog.Logger
	inv    Invalidator
	mapper CellMapper
	dedupe *eventDedupe
}

func New(cfg Config, logger *slog.Logger, inv Invalidator, mapper CellMapper) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	if mapper == nil {
		mapper = cellkeyMapper{}
	}
	cfg = cfg.withDefaults()
	return &Consumer{
		cfg:    cfg,
		logger: logger,
		inv:    inv,
		mapper: mapper,
		dedupe: newEventDedupe(cfg.DedupeSize),
	}
}

// Start consumes until ctx is cancelled. Transient group errors are
// logged and retried; they never take the process down.
func (c *Consumer) Start(ctx context.Context) error {
	if c.inv == nil {
		return errors.New("kafkaconsumer: invalidator is required")
	}
	if len(c.cfg.Brokers) == 0 || c.cfg.Topic == "" || c.cfg.GroupID == "" {
		return errors.New("kafkaconsumer: brokers, topic and group id are required")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	handler := &groupHandler{process: c.ProcessOne}

	c.logger.Info("invalidation consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("invalidation consumer shutting down")
			return nil
		default:
			if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil {
				observability.IncKafkaConsumerError("consume")
				c.logger.Error("consumer error, retrying", "err", err)
				time.Sleep(2 * time.Second)
			}
		}
	}
}

// ProcessOne handles a single event. Returning an error leaves the
// offset unmarked so the message is retried; malformed or stale
// events are skipped instead, retrying those can never succeed.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	start := time.Now()

	var ev invalidation.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		observability.IncKafkaConsumerError("decode")
		c.logger.Error("undecodable event, skipping",
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
		return nil
	}
	if err := ev.Validate(); err != nil {
		observability.IncKafkaConsumerError("validate")
		c.logger.Error("invalid event, skipping",
			"layer", ev.Layer, "op", ev.Op, "offset", msg.Offset, "err", err)
		return nil
	}
	// events without a feature id cannot be told apart, dedupe would
	// drop distinct edits that share a timestamp
	if ev.FeatureID != nil && !c.dedupe.shouldApply(ev.DedupeKey(), ev.TS.UnixNano()) {
		c.logger.Debug("stale or duplicate event, skipping",
			"layer", ev.Layer, "op", ev.Op, "offset", msg.Offset)
		return nil
	}

	cells, err := c.cellsForEvent(ev)
	if err != nil {
		observability.IncKafkaConsumerError("map_cells")
		observability.ObserveInvalidation(ev.Op, ev.Layer, 0, time.Since(start), err)
		c.logger.Error("cannot derive cells, skipping",
			"layer", ev.Layer, "op", ev.Op, "offset", msg.Offset, "err", err)
		return nil
	}
	if len(cells) == 0 {
		observability.ObserveInvalidation(ev.Op, ev.Layer, 0, time.Since(start), nil)
		return nil
	}

	n, err := c.inv.InvalidateCells(ctx, ev.Layer, cells)
	if err != nil {
		observability.IncKafkaConsumerError("evict")
		observability.ObserveInvalidation(ev.Op, ev.Layer, 0, time.Since(start), err)
		return fmt.Errorf("evict cells: %w", err)
	}

	if ev.FeatureID != nil {
		c.dedupe.applied(ev.DedupeKey(), ev.TS.UnixNano())
	}
	observability.ObserveInvalidation(ev.Op, ev.Layer, n, time.Since(start), nil)
	c.logger.Debug("invalidated",
		"layer", ev.Layer, "op", ev.Op, "cells", len(cells), "keys", n)
	return nil
}

func (c *Consumer) cellsForEvent(ev invalidation.Event) ([]string, error) {
	res := c.inv.Resolution()
	switch {
	case ev.BBox != nil:
		return c.mapper.ForBBox(ev.BBox.X1, ev.BBox.Y1, ev.BBox.X2, ev.BBox.Y2, res)
	case len(ev.Geometry) > 0:
		return c.mapper.ForPolygonGeoJSON(ev.Geometry, res)
	default:
		return nil, errors.New("event names no region")
	}
}
