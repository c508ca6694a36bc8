package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"GoodsCatalog/internal/model"
)

// ClickhouseRepo реализует пакетную запись событий каталога в ClickHouse
type ClickhouseRepo struct {
	db  *sql.DB
	log *slog.Logger
}

// NewClickhouseRepo создаёт новый репозиторий для ClickHouse
func NewClickhouseRepo(db *sql.DB, log *slog.Logger) *ClickhouseRepo {
	if log == nil {
		log = slog.Default()
	}
	return &ClickhouseRepo{db: db, log: log}
}

// BatchInsertEvents записывает пакет событий изменения товаров в таблицу events_log
func (r *ClickhouseRepo) BatchInsertEvents(ctx context.Context, events []model.GoodEvent) error {
	// clickhouse-go собирает блок из Exec внутри одной 'транзакции'
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	r.log.Debug("начало пакетной вставки в ClickHouse", "events", len(events))
	query := `INSERT INTO events_log (Action, Id, GenreId, Name, Author, Price, Images, EventTime) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer func() { _ = stmt.Close() }()
	for _, e := range events {
		_, err := stmt.ExecContext(ctx,
			e.Action, uint64(e.ID), uint64(e.GenreID), e.Name, e.Author,
			e.Price.InexactFloat64(), uint32(e.Images), e.At,
		)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	r.log.Info("события записаны в ClickHouse", "events", len(events))
	return nil
}
