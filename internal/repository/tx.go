package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// dbtx общий набор методов *sql.DB и *sql.Tx, которые использует репозиторий
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type txKey struct{}

// conn возвращает транзакцию из контекста, если она открыта через InTx, иначе пул
func (r *GoodRepository) conn(ctx context.Context) dbtx {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return r.db
}

// InTx выполняет fn в одной транзакции: все методы репозитория, вызванные с
// переданным контекстом, работают внутри неё. Ошибка fn откатывает транзакцию
func (r *GoodRepository) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// withTx выполняет fn в транзакции контекста или открывает свою
func (r *GoodRepository) withTx(ctx context.Context, fn func(q dbtx) error) error {
	return r.InTx(ctx, func(ctx context.Context) error {
		return fn(r.conn(ctx))
	})
}
