// Пакет repository содержит unit-тесты для реализации слоя доступа к данным GoodRepository
package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"GoodsCatalog/internal/model"
)

var (
	goodCols  = []string{"id", "genre_id", "name", "author", "price"}
	imageCols = []string{"id", "good_id", "object_key", "url", "position"}
)

func newMock(t *testing.T) (*GoodRepository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	return NewGoodRepository(db), mock, func() { db.Close() }
}

// Тест выбора первого жанра: успешное чтение и пустая таблица
func TestFirstGenre(t *testing.T) {
	repo, mock, done := newMock(t)
	defer done()
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name FROM genres ORDER BY id LIMIT 1")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(1, "Фантастика"))
	g, err := repo.FirstGenre(ctx)
	if err != nil || g.ID != 1 || g.Name != "Фантастика" {
		t.Errorf("unexpected result: %+v, %v", g, err)
	}

	// жанров нет
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name FROM genres ORDER BY id LIMIT 1")).
		WillReturnError(sql.ErrNoRows)
	if _, err := repo.FirstGenre(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestGetGenre(t *testing.T) {
	repo, mock, done := newMock(t)
	defer done()
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name FROM genres WHERE id=$1")).
		WithArgs(2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(2, "Детектив"))
	g, err := repo.GetGenre(ctx, 2)
	if err != nil || g.Name != "Детектив" {
		t.Errorf("unexpected result: %+v, %v", g, err)
	}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name FROM genres WHERE id=$1")).
		WithArgs(3).
		WillReturnError(sql.ErrNoRows)
	if _, err := repo.GetGenre(ctx, 3); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name FROM genres WHERE id=$1")).
		WithArgs(4).
		WillReturnError(errors.New("timeout"))
	if _, err := repo.GetGenre(ctx, 4); err == nil || !strings.Contains(err.Error(), "timeout") {
		t.Errorf("expected query error, got %v", err)
	}
}

func TestListGenres(t *testing.T) {
	repo, mock, done := newMock(t)
	defer done()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name FROM genres ORDER BY id")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(1, "a").AddRow(2, "b"))
	genres, err := repo.ListGenres(context.Background())
	if err != nil || len(genres) != 2 || genres[1].Name != "b" {
		t.Errorf("unexpected result: %+v, %v", genres, err)
	}
}

// Тест построения запроса списка: фильтр по жанру, поиск и все варианты сортировки
func TestListOrder(t *testing.T) {
	cases := []struct {
		q    model.ListQuery
		want string
	}{
		{model.ListQuery{Sort: model.SortByName, Order: model.OrderAsc}, "name ASC, id ASC"},
		{model.ListQuery{Sort: model.SortByName, Order: model.OrderDesc}, "name DESC, id ASC"},
		{model.ListQuery{Sort: model.SortByPrice, Order: model.OrderAsc}, "price ASC, name ASC, id ASC"},
		// при убывании цены имя остаётся по возрастанию
		{model.ListQuery{Sort: model.SortByPrice, Order: model.OrderDesc}, "price DESC, name ASC, id ASC"},
		{model.ListQuery{Sort: "", Order: ""}, "name ASC, id ASC"},
	}
	for _, c := range cases {
		if got := listOrder(c.q); got != c.want {
			t.Errorf("listOrder(%+v) = %q, want %q", c.q, got, c.want)
		}
	}
}

func TestListFilter(t *testing.T) {
	where, args := listFilter(3, model.ListQuery{})
	if where != "genre_id=$1" || len(args) != 1 || args[0] != 3 {
		t.Errorf("unexpected filter: %s %v", where, args)
	}
	where, args = listFilter(3, model.ListQuery{Search: "50%_off"})
	if where != "genre_id=$1 AND (name ILIKE $2 OR author ILIKE $2)" {
		t.Errorf("unexpected where: %s", where)
	}
	// спецсимволы LIKE экранируются
	if args[1] != `%50\%\_off%` {
		t.Errorf("unexpected pattern: %v", args[1])
	}
}

func TestListGoods(t *testing.T) {
	repo, mock, done := newMock(t)
	defer done()
	ctx := context.Background()
	q := model.ListQuery{Search: "кинг", Sort: model.SortByPrice, Order: model.OrderDesc, Page: 2}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM goods WHERE genre_id=$1 AND (name ILIKE $2 OR author ILIKE $2)")).
		WithArgs(1, "%кинг%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, genre_id, name, author, price FROM goods WHERE genre_id=$1 AND (name ILIKE $2 OR author ILIKE $2) ORDER BY price DESC, name ASC, id ASC LIMIT $3 OFFSET $4")).
		WithArgs(1, "%кинг%", model.PageSize, model.PageSize).
		WillReturnRows(sqlmock.NewRows(goodCols).AddRow(7, 1, "Оно", "Кинг", "10.50"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, good_id, object_key, url, position FROM good_images WHERE good_id = ANY($1)")).
		WithArgs(pq.Array([]int64{7})).
		WillReturnRows(sqlmock.NewRows(imageCols).AddRow(1, 7, "k", "u", 0))

	goods, total, err := repo.ListGoods(ctx, 1, q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 3 || len(goods) != 1 || goods[0].ID != 7 {
		t.Fatalf("unexpected result: %+v total=%d", goods, total)
	}
	if !goods[0].Price.Equal(decimal.RequireFromString("10.5")) {
		t.Errorf("unexpected price: %s", goods[0].Price)
	}
	if len(goods[0].Images) != 1 || goods[0].Images[0].URL != "u" {
		t.Errorf("images not attached: %+v", goods[0].Images)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

// TestListGoods_OutOfRange: страница за пределами диапазона пустая и без SELECT
func TestListGoods_OutOfRange(t *testing.T) {
	repo, mock, done := newMock(t)
	defer done()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM goods WHERE genre_id=$1")).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	goods, total, err := repo.ListGoods(context.Background(), 1, model.ListQuery{Page: 9})
	if err != nil || total != 2 || len(goods) != 0 || goods == nil {
		t.Errorf("unexpected result: %+v total=%d err=%v", goods, total, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

// TestListGoods_Last: page=last читает последнюю страницу по общему числу записей
func TestListGoods_Last(t *testing.T) {
	repo, mock, done := newMock(t)
	defer done()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM goods WHERE genre_id=$1")).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY name ASC, id ASC LIMIT $2 OFFSET $3")).
		WithArgs(1, model.PageSize, 4).
		WillReturnRows(sqlmock.NewRows(goodCols).AddRow(9, 1, "Я", "А", "1"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM good_images WHERE good_id = ANY($1)")).
		WithArgs(pq.Array([]int64{9})).
		WillReturnRows(sqlmock.NewRows(imageCols))

	goods, total, err := repo.ListGoods(context.Background(), 1, model.ListQuery{Page: 1, Last: true})
	if err != nil || total != 5 || len(goods) != 1 || goods[0].ID != 9 {
		t.Errorf("unexpected result: %+v total=%d err=%v", goods, total, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestListGoods_CountError(t *testing.T) {
	repo, mock, done := newMock(t)
	defer done()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM goods")).WillReturnError(errors.New("count failed"))
	_, _, err := repo.ListGoods(context.Background(), 1, model.ListQuery{Page: 1})
	if err == nil || !strings.Contains(err.Error(), "count failed") {
		t.Errorf("expected count error, got %v", err)
	}
}

// Тест получения товара по идентификатору вместе с изображениями
func TestGetGood(t *testing.T) {
	repo, mock, done := newMock(t)
	defer done()
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, genre_id, name, author, price FROM goods WHERE id=$1")).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows(goodCols).AddRow(1, 2, "Name", "Author", "3.00"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, good_id, object_key, url, position FROM good_images WHERE good_id=$1 ORDER BY position, id")).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows(imageCols).AddRow(5, 1, "k5", "u5", 0).AddRow(6, 1, "k6", "u6", 1))

	good, err := repo.GetGood(ctx, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if good.GenreID != 2 || good.Author != "Author" || len(good.Images) != 2 || good.Images[1].ID != 6 {
		t.Errorf("unexpected good: %+v", good)
	}

	// не найдено
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, genre_id, name, author, price FROM goods WHERE id=$1")).
		WithArgs(3).
		WillReturnError(sql.ErrNoRows)
	if _, err = repo.GetGood(ctx, 3); !errors.Is(err, ErrNotFound) {
		t.Error("expected ErrNotFound")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

// Тест создания товара: RETURNING id
func TestCreateGood(t *testing.T) {
	repo, mock, done := newMock(t)
	defer done()
	price := decimal.RequireFromString("12.30")

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO goods(genre_id, name, author, price)")).
		WithArgs(1, "Название", "Автор", price).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(10))

	good, err := repo.CreateGood(context.Background(), model.Good{GenreID: 1, Name: "Название", Author: "Автор", Price: price})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if good.ID != 10 || good.GenreID != 1 || good.Images == nil {
		t.Errorf("unexpected good result: %+v", good)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

// TestCreateGood_InsertError: при ошибке INSERT возвращается соответствующая ошибка
func TestCreateGood_InsertError(t *testing.T) {
	repo, mock, done := newMock(t)
	defer done()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO goods(genre_id, name, author, price)")).
		WillReturnError(errors.New("insert failed"))
	_, err := repo.CreateGood(context.Background(), model.Good{GenreID: 1, Name: "n"})
	if err == nil || !strings.Contains(err.Error(), "insert failed") {
		t.Errorf("expected insert error, got %v", err)
	}
}

// Тест обновления товара: SELECT FOR UPDATE + UPDATE + COMMIT и отсутствие записи
func TestUpdateGood(t *testing.T) {
	repo, mock, done := newMock(t)
	defer done()
	ctx := context.Background()
	g := model.Good{ID: 1, GenreID: 2, Name: "New", Author: "A", Price: decimal.RequireFromString("1")}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM goods WHERE id=$1 FOR UPDATE")).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE goods SET genre_id=$1, name=$2, author=$3, price=$4 WHERE id=$5")).
		WithArgs(2, "New", "A", g.Price, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	good, err := repo.UpdateGood(ctx, g)
	if err != nil || good.Name != "New" {
		t.Errorf("unexpected result: %+v, %v", good, err)
	}

	// not found
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM goods WHERE id=$1 FOR UPDATE")).
		WithArgs(2).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()
	if _, err = repo.UpdateGood(ctx, model.Good{ID: 2}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

// TestUpdateGood_CommitError: при ошибке Commit возвращается ошибка
func TestUpdateGood_CommitError(t *testing.T) {
	repo, mock, done := newMock(t)
	defer done()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM goods WHERE id=$1 FOR UPDATE")).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE goods SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit().WillReturnError(errors.New("commit failed"))
	_, err := repo.UpdateGood(context.Background(), model.Good{ID: 1, Name: "n"})
	if err == nil || !strings.Contains(err.Error(), "commit failed") {
		t.Errorf("expected commit error, got %v", err)
	}
}

// Тест удаления товара: изображения возвращаются, удаление каскадное
func TestDeleteGood(t *testing.T) {
	repo, mock, done := newMock(t)
	defer done()
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM goods WHERE id=$1 FOR UPDATE")).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, good_id, object_key, url, position FROM good_images WHERE good_id=$1")).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows(imageCols).AddRow(1, 5, "k1", "u1", 0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM goods WHERE id=$1")).
		WithArgs(5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	images, err := repo.DeleteGood(ctx, 5)
	if err != nil || len(images) != 1 || images[0].ObjectKey != "k1" {
		t.Errorf("unexpected result: %+v, %v", images, err)
	}

	// not found
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM goods WHERE id=$1 FOR UPDATE")).
		WithArgs(6).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()
	if _, err = repo.DeleteGood(ctx, 6); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

// TestDeleteGood_ExecError: проверяем Rollback и возврат ошибки при ошибке DELETE
func TestDeleteGood_ExecError(t *testing.T) {
	repo, mock, done := newMock(t)
	defer done()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM goods WHERE id=$1 FOR UPDATE")).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, good_id, object_key, url, position FROM good_images")).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows(imageCols))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM goods WHERE id=$1")).
		WithArgs(5).
		WillReturnError(errors.New("delete exec failed"))
	mock.ExpectRollback()
	_, err := repo.DeleteGood(context.Background(), 5)
	if err == nil || !strings.Contains(err.Error(), "delete exec failed") {
		t.Errorf("expected delete exec error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestImageMutations(t *testing.T) {
	repo, mock, done := newMock(t)
	defer done()
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO good_images(good_id, object_key, url, position)")).
		WithArgs(1, "k", "u", 2).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9))
	img, err := repo.AddImage(ctx, model.GoodImage{GoodID: 1, ObjectKey: "k", URL: "u", Position: 2})
	if err != nil || img.ID != 9 {
		t.Errorf("unexpected result: %+v, %v", img, err)
	}

	mock.ExpectExec(regexp.QuoteMeta("UPDATE good_images SET object_key=$1, url=$2, position=$3 WHERE id=$4 AND good_id=$5")).
		WithArgs("k2", "u2", 0, 9, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := repo.UpdateImage(ctx, model.GoodImage{ID: 9, GoodID: 1, ObjectKey: "k2", URL: "u2"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	// изображение другого товара не меняется
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM good_images WHERE id=$1 AND good_id=$2")).
		WithArgs(9, 2).
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := repo.DeleteImage(ctx, 2, 9); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

// TestInTx: методы, вызванные внутри InTx, выполняются в одной транзакции
func TestInTx(t *testing.T) {
	repo, mock, done := newMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO goods(genre_id, name, author, price)")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	// вложенная транзакция UpdateGood не открывает новую
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM goods WHERE id=$1 FOR UPDATE")).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE goods SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	rollback := errors.New("rollback")
	err := repo.InTx(context.Background(), func(ctx context.Context) error {
		g, err := repo.CreateGood(ctx, model.Good{GenreID: 1, Name: "n"})
		if err != nil {
			return err
		}
		if _, err := repo.UpdateGood(ctx, *g); err != nil {
			return err
		}
		return rollback
	})
	if !errors.Is(err, rollback) {
		t.Errorf("expected rollback error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

// TestDeleteGood_RowsError: ошибка чтения изображений прерывает удаление до DELETE
func TestDeleteGood_RowsError(t *testing.T) {
	repo, mock, done := newMock(t)
	defer done()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM goods WHERE id=$1 FOR UPDATE")).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, good_id, object_key, url, position FROM good_images")).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows(imageCols).
			AddRow(1, 5, "k1", "u1", 0).
			AddRow(2, 5, "k2", "u2", 1).
			RowError(1, errors.New("connection reset")))
	mock.ExpectRollback()

	images, err := repo.DeleteGood(context.Background(), 5)
	if err == nil || !strings.Contains(err.Error(), "connection reset") {
		t.Errorf("expected rows error, got %v", err)
	}
	if images != nil {
		t.Errorf("expected no images on error, got %+v", images)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
