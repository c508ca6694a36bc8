package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"GoodsCatalog/internal/model"
)

// ErrNotFound возвращается при отсутствии записи
var ErrNotFound = errors.New("record not found")

// GoodRepository реализует доступ к таблицам genres, goods и good_images
type GoodRepository struct {
	db *sql.DB
}

// NewGoodRepository создает новый репозиторий каталога
func NewGoodRepository(db *sql.DB) *GoodRepository {
	return &GoodRepository{db: db}
}

const goodColumns = `id, genre_id, name, author, price`

const imageColumns = `id, good_id, object_key, url, position`

// FirstGenre возвращает первый жанр в порядке создания
func (r *GoodRepository) FirstGenre(ctx context.Context) (*model.Genre, error) {
	var g model.Genre
	err := r.conn(ctx).QueryRowContext(ctx, `SELECT id, name FROM genres ORDER BY id LIMIT 1`).Scan(&g.ID, &g.Name)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get first genre: %w", err)
	}
	return &g, nil
}

// GetGenre возвращает жанр по id
func (r *GoodRepository) GetGenre(ctx context.Context, id int) (*model.Genre, error) {
	var g model.Genre
	err := r.conn(ctx).QueryRowContext(ctx, `SELECT id, name FROM genres WHERE id=$1`, id).Scan(&g.ID, &g.Name)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get genre: %w", err)
	}
	return &g, nil
}

// ListGenres возвращает все жанры в порядке создания
func (r *GoodRepository) ListGenres(ctx context.Context) ([]model.Genre, error) {
	rows, err := r.conn(ctx).QueryContext(ctx, `SELECT id, name FROM genres ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to select genres: %w", err)
	}
	defer rows.Close()
	genres := []model.Genre{}
	for rows.Next() {
		var g model.Genre
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			return nil, fmt.Errorf("failed to scan genre: %w", err)
		}
		genres = append(genres, g)
	}
	return genres, rows.Err()
}

// escapeLike экранирует спецсимволы шаблона LIKE, чтобы поиск был по подстроке
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// listFilter строит условие WHERE и аргументы для списка товаров жанра
func listFilter(genreID int, q model.ListQuery) (string, []interface{}) {
	where := "genre_id=$1"
	args := []interface{}{genreID}
	if q.Search != "" {
		where += " AND (name ILIKE $2 OR author ILIKE $2)"
		args = append(args, "%"+escapeLike(q.Search)+"%")
	}
	return where, args
}

// listOrder строит ORDER BY. При сортировке по цене имя всегда по возрастанию,
// id в конце делает порядок страниц детерминированным
func listOrder(q model.ListQuery) string {
	if q.ByPrice() {
		if q.Descending() {
			return "price DESC, name ASC, id ASC"
		}
		return "price ASC, name ASC, id ASC"
	}
	if q.Descending() {
		return "name DESC, id ASC"
	}
	return "name ASC, id ASC"
}

// ListGoods возвращает страницу товаров жанра с учётом поиска и сортировки
// и общее число подходящих записей
func (r *GoodRepository) ListGoods(ctx context.Context, genreID int, q model.ListQuery) ([]model.Good, int, error) {
	where, args := listFilter(genreID, q)
	var total int
	if err := r.conn(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM goods WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count goods: %w", err)
	}
	offset := q.Offset()
	if q.Last {
		offset = (model.NumPages(total) - 1) * model.PageSize
	}
	// страница за пределами диапазона просто пустая
	if offset >= total {
		return []model.Good{}, total, nil
	}
	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM goods WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d`,
		goodColumns, where, listOrder(q), n+1, n+2)
	rows, err := r.conn(ctx).QueryContext(ctx, query, append(args, model.PageSize, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to select goods list: %w", err)
	}
	defer rows.Close()
	goods := []model.Good{}
	for rows.Next() {
		var g model.Good
		if err := rows.Scan(&g.ID, &g.GenreID, &g.Name, &g.Author, &g.Price); err != nil {
			return nil, 0, fmt.Errorf("failed to scan good: %w", err)
		}
		goods = append(goods, g)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate goods: %w", err)
	}
	if err := r.attachImages(ctx, goods); err != nil {
		return nil, 0, err
	}
	return goods, total, nil
}

// attachImages подгружает изображения для набора товаров одним запросом
func (r *GoodRepository) attachImages(ctx context.Context, goods []model.Good) error {
	if len(goods) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(goods))
	idx := make(map[int]int, len(goods))
	for i := range goods {
		ids = append(ids, int64(goods[i].ID))
		idx[goods[i].ID] = i
		goods[i].Images = []model.GoodImage{}
	}
	rows, err := r.conn(ctx).QueryContext(ctx,
		`SELECT `+imageColumns+` FROM good_images WHERE good_id = ANY($1) ORDER BY good_id, position, id`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to select images: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return err
		}
		if i, ok := idx[img.GoodID]; ok {
			goods[i].Images = append(goods[i].Images, img)
		}
	}
	return rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanImage(s scanner) (model.GoodImage, error) {
	var img model.GoodImage
	if err := s.Scan(&img.ID, &img.GoodID, &img.ObjectKey, &img.URL, &img.Position); err != nil {
		return img, fmt.Errorf("failed to scan image: %w", err)
	}
	return img, nil
}

// GetGood возвращает товар по id вместе с изображениями
func (r *GoodRepository) GetGood(ctx context.Context, id int) (*model.Good, error) {
	row := r.conn(ctx).QueryRowContext(ctx, `SELECT `+goodColumns+` FROM goods WHERE id=$1`, id)
	var g model.Good
	if err := row.Scan(&g.ID, &g.GenreID, &g.Name, &g.Author, &g.Price); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get good: %w", err)
	}
	images, err := r.ListImages(ctx, id)
	if err != nil {
		return nil, err
	}
	g.Images = images
	return &g, nil
}

// ListImages возвращает изображения товара в порядке показа
func (r *GoodRepository) ListImages(ctx context.Context, goodID int) ([]model.GoodImage, error) {
	rows, err := r.conn(ctx).QueryContext(ctx,
		`SELECT `+imageColumns+` FROM good_images WHERE good_id=$1 ORDER BY position, id`, goodID)
	if err != nil {
		return nil, fmt.Errorf("failed to select images: %w", err)
	}
	defer rows.Close()
	images := []model.GoodImage{}
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

// CreateGood добавляет новый товар в таблицу goods
func (r *GoodRepository) CreateGood(ctx context.Context, g model.Good) (*model.Good, error) {
	query := `INSERT INTO goods(genre_id, name, author, price) VALUES($1, $2, $3, $4) RETURNING id`
	if err := r.conn(ctx).QueryRowContext(ctx, query, g.GenreID, g.Name, g.Author, g.Price).Scan(&g.ID); err != nil {
		return nil, fmt.Errorf("failed to insert good: %w", err)
	}
	g.Images = []model.GoodImage{}
	return &g, nil
}

// UpdateGood обновляет поля товара, с блокировкой и транзакцией
func (r *GoodRepository) UpdateGood(ctx context.Context, g model.Good) (*model.Good, error) {
	err := r.withTx(ctx, func(q dbtx) error {
		// выборка с блокировкой
		var id int
		err := q.QueryRowContext(ctx, `SELECT id FROM goods WHERE id=$1 FOR UPDATE`, g.ID).Scan(&id)
		if err != nil {
			if err == sql.ErrNoRows {
				return ErrNotFound
			}
			return fmt.Errorf("failed to select good for update: %w", err)
		}
		_, err = q.ExecContext(ctx, `UPDATE goods SET genre_id=$1, name=$2, author=$3, price=$4 WHERE id=$5`,
			g.GenreID, g.Name, g.Author, g.Price, g.ID)
		if err != nil {
			return fmt.Errorf("failed to update good: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// DeleteGood удаляет товар; строки изображений удаляются каскадно.
// Возвращает удалённые изображения, чтобы вызывающий мог убрать файлы из хранилища
func (r *GoodRepository) DeleteGood(ctx context.Context, id int) ([]model.GoodImage, error) {
	var images []model.GoodImage
	err := r.withTx(ctx, func(q dbtx) error {
		var existingID int
		if err := q.QueryRowContext(ctx, `SELECT id FROM goods WHERE id=$1 FOR UPDATE`, id).Scan(&existingID); err != nil {
			if err == sql.ErrNoRows {
				return ErrNotFound
			}
			return fmt.Errorf("failed to select good for delete: %w", err)
		}
		rows, err := q.QueryContext(ctx, `SELECT `+imageColumns+` FROM good_images WHERE good_id=$1 ORDER BY position, id`, id)
		if err != nil {
			return fmt.Errorf("failed to select images for delete: %w", err)
		}
		for rows.Next() {
			img, err := scanImage(rows)
			if err != nil {
				rows.Close()
				return err
			}
			images = append(images, img)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return fmt.Errorf("failed to read images for delete: %w", err)
		}
		rows.Close()
		if _, err := q.ExecContext(ctx, `DELETE FROM goods WHERE id=$1`, id); err != nil {
			return fmt.Errorf("failed to delete good: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return images, nil
}

// AddImage добавляет изображение товара
func (r *GoodRepository) AddImage(ctx context.Context, img model.GoodImage) (*model.GoodImage, error) {
	query := `INSERT INTO good_images(good_id, object_key, url, position) VALUES($1, $2, $3, $4) RETURNING id`
	if err := r.conn(ctx).QueryRowContext(ctx, query, img.GoodID, img.ObjectKey, img.URL, img.Position).Scan(&img.ID); err != nil {
		return nil, fmt.Errorf("failed to insert image: %w", err)
	}
	return &img, nil
}

// UpdateImage меняет файл и позицию изображения
func (r *GoodRepository) UpdateImage(ctx context.Context, img model.GoodImage) error {
	res, err := r.conn(ctx).ExecContext(ctx,
		`UPDATE good_images SET object_key=$1, url=$2, position=$3 WHERE id=$4 AND good_id=$5`,
		img.ObjectKey, img.URL, img.Position, img.ID, img.GoodID)
	if err != nil {
		return fmt.Errorf("failed to update image: %w", err)
	}
	return expectOne(res)
}

// DeleteImage удаляет изображение товара
func (r *GoodRepository) DeleteImage(ctx context.Context, goodID, id int) error {
	res, err := r.conn(ctx).ExecContext(ctx, `DELETE FROM good_images WHERE id=$1 AND good_id=$2`, id, goodID)
	if err != nil {
		return fmt.Errorf("failed to delete image: %w", err)
	}
	return expectOne(res)
}

// expectOne превращает отсутствие затронутых строк в ErrNotFound
func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
