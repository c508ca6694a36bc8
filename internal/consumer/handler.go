package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"GoodsCatalog/internal/model"
)

// maxPendingBatches сколько пакетов держится в буфере, пока ClickHouse недоступен
const maxPendingBatches = 100

// Repo описывает интерфейс репозитория ClickHouse для пакетной записи событий
type Repo interface {
	BatchInsertEvents(ctx context.Context, events []model.GoodEvent) error
}

// Consumer буферизует события каталога и отправляет их пакетно в ClickHouse.
// batchSize определяет макс. количество событий до отправки
type Consumer struct {
	repo      Repo
	batchSize int
	log       *slog.Logger

	mu     sync.Mutex
	events []model.GoodEvent
}

// NewConsumer создаёт Consumer с указанным репозиторием и размером пакета
func NewConsumer(repo Repo, batchSize int, log *slog.Logger) *Consumer {
	if batchSize < 1 {
		batchSize = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Consumer{repo: repo, batchSize: batchSize, log: log, events: make([]model.GoodEvent, 0, batchSize)}
}

// HandleMessage обрабатывает сообщение из NATS: парсит событие, добавляет его в буфер
// и при достижении batchSize отправляет пакет в ClickHouse
func (c *Consumer) HandleMessage(ctx context.Context, data []byte) error {
	var e model.GoodEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return fmt.Errorf("failed to decode event: %w", err)
	}
	c.log.Debug("получено событие", "action", e.Action, "id", e.ID)
	c.mu.Lock()
	c.events = append(c.events, e)
	if len(c.events) < c.batchSize {
		c.mu.Unlock()
		return nil
	}
	batch := c.take()
	c.mu.Unlock()
	return c.insert(ctx, batch)
}

// insert пишет пакет; при ошибке пакет возвращается в начало буфера
func (c *Consumer) insert(ctx context.Context, batch []model.GoodEvent) error {
	if err := c.repo.BatchInsertEvents(ctx, batch); err != nil {
		c.restore(batch)
		return err
	}
	return nil
}

// restore возвращает неотправленный пакет перед новыми событиями.
// Буфер ограничен maxPendingBatches пакетами, старейшие события сверх лимита отбрасываются
func (c *Consumer) restore(batch []model.GoodEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	events := make([]model.GoodEvent, 0, len(batch)+len(c.events))
	events = append(events, batch...)
	events = append(events, c.events...)
	if limit := c.batchSize * maxPendingBatches; len(events) > limit {
		dropped := len(events) - limit
		c.log.Error("буфер событий переполнен, старые события отброшены", "dropped", dropped)
		events = events[dropped:]
	}
	c.events = events
}

// take забирает буфер; вызывается под mu
func (c *Consumer) take() []model.GoodEvent {
	batch := make([]model.GoodEvent, len(c.events))
	copy(batch, c.events)
	c.events = c.events[:0]
	return batch
}

// Pending число событий в буфере
func (c *Consumer) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

// Flush отправляет все накопленные события, если они есть
func (c *Consumer) Flush(ctx context.Context) error {
	c.mu.Lock()
	if len(c.events) == 0 {
		c.mu.Unlock()
		return nil
	}
	batch := c.take()
	c.mu.Unlock()
	return c.insert(ctx, batch)
}

// DefaultFlushInterval период сброса, если передан неположительный interval
const DefaultFlushInterval = 5 * time.Second

// Run сбрасывает буфер каждые interval, пока ctx не отменён,
// чтобы редкие события не ждали заполнения пакета
func (c *Consumer) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Flush(ctx); err != nil {
				c.log.Error("periodic flush failed", "error", err)
			}
		}
	}
}
