// Package queue hands completed checkouts to fulfilment over a Redis stream.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"cherrybook/internal/util"
	"cherrybook/pkg/domain"
)

const (
	StatusReceived   = "received"
	StatusProcessing = "processing"
	StatusFulfilled  = "fulfilled"
	StatusFailed     = "failed"
)

const (
	defaultStream = "cherrybook:orders"
	defaultGroup  = "fulfilment"
)

// ErrEmptyOrder is returned when an order has no items.
var ErrEmptyOrder = errors.New("order has no items")

// OrderItem is one purchased line, frozen at checkout.
type OrderItem struct {
	BookID   string  `json:"bookId"`
	Title    string  `json:"title"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// Order is a checked-out cart and its fulfilment status.
type Order struct {
	ID           string      `json:"id"`
	SessionID    string      `json:"-"`
	Items        []OrderItem `json:"items"`
	Subtotal     float64     `json:"subtotal"`
	ItemCount    int         `json:"itemCount"`
	Status       string      `json:"status"`
	ErrorMessage string      `json:"errorMessage,omitempty"`
	Attempts     int         `json:"attempts"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

// NewOrder freezes lines into an order owned by sessionID.
func NewOrder(sessionID string, lines []domain.CartLine) Order {
	items := make([]OrderItem, 0, len(lines))
	var subtotal float64
	var count int
	for _, l := range lines {
		items = append(items, OrderItem{BookID: l.ID, Title: l.Title, Price: l.Price, Quantity: l.Quantity})
		subtotal += l.LineTotal()
		count += l.Quantity
	}
	return Order{SessionID: sessionID, Items: items, Subtotal: subtotal, ItemCount: count}
}

// Handler fulfils one order. A returned error schedules a retry.
type Handler func(context.Context, Order) error

type RedisOrderQueue struct {
	client       *redis.Client
	stream       string
	group        string
	consumerBase string
	orderTTL     time.Duration
	maxRetries   int
	block        time.Duration
	claimIdle    time.Duration
	retryDelay   time.Duration
	maxLen       int64
	readCount    int64
	claimCount   int64
	once         sync.Once
}

type RedisQueueConfig struct {
	Addr       string
	Password   string
	Stream     string
	Group      string
	Consumer   string
	OrderTTL   time.Duration
	MaxRetries int
	Block      time.Duration
	ClaimIdle  time.Duration
	RetryDelay time.Duration
	MaxLen     int64
	ReadCount  int64
	ClaimCount int64
}

func NewRedisOrderQueue(cfg RedisQueueConfig) (*RedisOrderQueue, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("redis addr required")
	}
	stream := strings.TrimSpace(cfg.Stream)
	if stream == "" {
		stream = defaultStream
	}
	group := strings.TrimSpace(cfg.Group)
	if group == "" {
		group = defaultGroup
	}
	consumer := strings.TrimSpace(cfg.Consumer)
	if consumer == "" {
		consumer = util.NewID()
	}
	orderTTL := cfg.OrderTTL
	if orderTTL <= 0 {
		orderTTL = 7 * 24 * time.Hour
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	block := cfg.Block
	if block <= 0 {
		block = 5 * time.Second
	}
	claimIdle := cfg.ClaimIdle
	if claimIdle <= 0 {
		claimIdle = 30 * time.Second
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 2 * time.Second
	}
	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = 10000
	}
	readCount := cfg.ReadCount
	if readCount <= 0 {
		readCount = 10
	}
	claimCount := cfg.ClaimCount
	if claimCount <= 0 {
		claimCount = 10
	}

	return &RedisOrderQueue{
		client:       redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Password}),
		stream:       stream,
		group:        group,
		consumerBase: consumer,
		orderTTL:     orderTTL,
		maxRetries:   maxRetries,
		block:        block,
		claimIdle:    claimIdle,
		retryDelay:   retryDelay,
		maxLen:       maxLen,
		readCount:    readCount,
		claimCount:   claimCount,
	}, nil
}

// Close releases the Redis client.
func (q *RedisOrderQueue) Close() error {
	return q.client.Close()
}

// Enqueue records order as received and appends it to the stream.
func (q *RedisOrderQueue) Enqueue(ctx context.Context, order Order) (Order, error) {
	if len(order.Items) == 0 {
		return Order{}, ErrEmptyOrder
	}
	now := time.Now().UTC()
	order.ID = util.NewID()
	order.Status = StatusReceived
	order.Attempts = 0
	order.CreatedAt = now
	order.UpdatedAt = now
	if err := q.writeStatus(ctx, order); err != nil {
		return Order{}, err
	}
	if err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		MaxLen: q.maxLen,
		Approx: true,
		Values: map[string]any{"order_id": order.ID},
	}).Err(); err != nil {
		return Order{}, err
	}
	return order, nil
}

// GetOrder loads an order's current status. Orders expire after the
// configured TTL.
func (q *RedisOrderQueue) GetOrder(ctx context.Context, orderID string) (Order, bool, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, false, nil
	}
	data, err := q.client.HGetAll(ctx, q.orderKey(orderID)).Result()
	if err != nil {
		return Order{}, false, err
	}
	if len(data) == 0 {
		return Order{}, false, nil
	}
	order, err := decodeOrder(orderID, data)
	if err != nil {
		return Order{}, false, err
	}
	return order, true, nil
}

// Start launches concurrency consumers that run until ctx is cancelled.
func (q *RedisOrderQueue) Start(ctx context.Context, concurrency int, handler Handler) {
	if concurrency <= 0 {
		concurrency = 1
	}
	q.ensureGroup(ctx)
	for i := 0; i < concurrency; i++ {
		consumer := fmt.Sprintf("%s-%d", q.consumerBase, i)
		go q.consumeLoop(ctx, consumer, handler)
	}
}

// ensureGroup starts the group at the beginning of the stream so orders
// placed before the first consumer are still fulfilled.
func (q *RedisOrderQueue) ensureGroup(ctx context.Context) {
	q.once.Do(func() {
		err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			slog.Warn("order queue: create consumer group", "stream", q.stream, "err", err)
		}
	})
}

func (q *RedisOrderQueue) consumeLoop(ctx context.Context, consumer string, handler Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if msgs, err := q.claimPending(ctx, consumer); err == nil {
			for _, msg := range msgs {
				q.handleMessage(ctx, msg, handler)
			}
		}

		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.group,
			Consumer: consumer,
			Streams:  []string{q.stream, ">"},
			Count:    q.readCount,
			Block:    q.block,
		}).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
				slog.Warn("order queue: read", "consumer", consumer, "err", err)
				q.pause(ctx)
			}
			continue
		}
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				q.handleMessage(ctx, msg, handler)
			}
		}
	}
}

func (q *RedisOrderQueue) pause(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(q.retryDelay):
	}
}

func (q *RedisOrderQueue) claimPending(ctx context.Context, consumer string) ([]redis.XMessage, error) {
	res, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: consumer,
		MinIdle:  q.claimIdle,
		Start:    "0-0",
		Count:    q.claimCount,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (q *RedisOrderQueue) handleMessage(ctx context.Context, msg redis.XMessage, handler Handler) {
	orderID, _ := msg.Values["order_id"].(string)
	if orderID == "" {
		q.ackAndDel(ctx, msg.ID)
		return
	}
	order, err := q.markProcessing(ctx, orderID)
	if err != nil {
		q.ackAndDel(ctx, msg.ID)
		return
	}
	err = handler(ctx, order)
	if err == nil {
		_ = q.setStatus(ctx, orderID, StatusFulfilled, "")
		q.ackAndDel(ctx, msg.ID)
		return
	}
	if order.Attempts >= q.maxRetries {
		_ = q.setStatus(ctx, orderID, StatusFailed, err.Error())
		q.ackAndDel(ctx, msg.ID)
		return
	}
	_ = q.setStatus(ctx, orderID, StatusReceived, err.Error())
	q.pause(ctx)
	if ctx.Err() != nil {
		return
	}
	_ = q.requeueAndAck(ctx, msg.ID, orderID)
}

func (q *RedisOrderQueue) ackAndDel(ctx context.Context, msgID string) {
	_, _ = q.client.XAck(ctx, q.stream, q.group, msgID).Result()
	_, _ = q.client.XDel(ctx, q.stream, msgID).Result()
}

func (q *RedisOrderQueue) requeueAndAck(ctx context.Context, msgID, orderID string) error {
	pipe := q.client.TxPipeline()
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		MaxLen: q.maxLen,
		Approx: true,
		Values: map[string]any{"order_id": orderID},
	})
	pipe.XAck(ctx, q.stream, q.group, msgID)
	pipe.XDel(ctx, q.stream, msgID)
	_, err := pipe.Exec(ctx)
	return err
}

func (q *RedisOrderQueue) markProcessing(ctx context.Context, orderID string) (Order, error) {
	order, ok, err := q.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if !ok {
		return Order{}, fmt.Errorf("order %s expired", orderID)
	}
	order.Attempts++
	order.Status = StatusProcessing
	order.UpdatedAt = time.Now().UTC()
	if err := q.writeStatus(ctx, order); err != nil {
		return Order{}, err
	}
	return order, nil
}

func (q *RedisOrderQueue) setStatus(ctx context.Context, orderID, status, errMsg string) error {
	return q.client.HSet(ctx, q.orderKey(orderID), map[string]any{
		"status":    status,
		"error":     errMsg,
		"updatedAt": time.Now().UTC().Format(time.RFC3339Nano),
	}).Err()
}

func (q *RedisOrderQueue) writeStatus(ctx context.Context, order Order) error {
	items, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("encode order items: %w", err)
	}
	key := q.orderKey(order.ID)
	payload := map[string]any{
		"id":        order.ID,
		"sessionId": order.SessionID,
		"items":     string(items),
		"subtotal":  strconv.FormatFloat(order.Subtotal, 'f', -1, 64),
		"itemCount": strconv.Itoa(order.ItemCount),
		"status":    order.Status,
		"error":     order.ErrorMessage,
		"attempts":  strconv.Itoa(order.Attempts),
		"createdAt": order.CreatedAt.Format(time.RFC3339Nano),
		"updatedAt": order.UpdatedAt.Format(time.RFC3339Nano),
	}
	if err := q.client.HSet(ctx, key, payload).Err(); err != nil {
		return err
	}
	_ = q.client.Expire(ctx, key, q.orderTTL).Err()
	return nil
}

func (q *RedisOrderQueue) orderKey(orderID string) string {
	return fmt.Sprintf("order:%s:%s", q.stream, orderID)
}

func decodeOrder(orderID string, data map[string]string) (Order, error) {
	order := Order{
		ID:           orderID,
		SessionID:    data["sessionId"],
		Status:       data["status"],
		ErrorMessage: data["error"],
	}
	if v := data["items"]; v != "" {
		if err := json.Unmarshal([]byte(v), &order.Items); err != nil {
			return Order{}, fmt.Errorf("decode order items: %w", err)
		}
	}
	if v := data["subtotal"]; v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			order.Subtotal = f
		}
	}
	if v := data["itemCount"]; v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			order.ItemCount = n
		}
	}
	if v := data["attempts"]; v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			order.Attempts = n
		}
	}
	if v := data["createdAt"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			order.CreatedAt = t
		}
	}
	if v := data["updatedAt"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			order.UpdatedAt = t
		}
	}
	return order, nil
}
