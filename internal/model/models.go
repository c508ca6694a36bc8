package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PageSize фиксированный размер страницы списка товаров
const PageSize = 2

// Коды сортировки и направления, приходящие в query string
const (
	SortByName  = "0"
	SortByPrice = "1"
	OrderAsc    = "A"
	OrderDesc   = "D"
)

// Genre представляет жанр (таблица genres)
type Genre struct {
	ID   int    `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// Good представляет сущность товара (таблица goods)
type Good struct {
	ID      int             `db:"id" json:"id"`
	GenreID int             `db:"genre_id" json:"genreId"`
	Name    string          `db:"name" json:"name"`
	Author  string          `db:"author" json:"author"`
	Price   decimal.Decimal `db:"price" json:"price"`
	Images  []GoodImage     `db:"-" json:"images"`
}

// GoodImage изображение товара (таблица good_images)
// Position задаёт порядок показа изображений
type GoodImage struct {
	ID        int    `db:"id" json:"id"`
	GoodID    int    `db:"good_id" json:"goodId"`
	ObjectKey string `db:"object_key" json:"-"`
	URL       string `db:"url" json:"url"`
	Position  int    `db:"position" json:"position"`
}

// ListQuery параметры запроса списка, живут в рамках одного запроса
type ListQuery struct {
	Search string `json:"search"`
	Sort   string `json:"sort"`
	Order  string `json:"order"`
	Page   int    `json:"page"`
	// Last запрашивает последнюю страницу (page=last)
	Last bool `json:"-"`
}

// ByPrice сообщает, выбрана ли сортировка по цене
func (q ListQuery) ByPrice() bool {
	return q.Sort == SortByPrice
}

// Descending сообщает, выбран ли обратный порядок
func (q ListQuery) Descending() bool {
	return q.Order == OrderDesc
}

// Offset смещение первой записи страницы
func (q ListQuery) Offset() int {
	if q.Page < 1 {
		return 0
	}
	return (q.Page - 1) * PageSize
}

// Page страница результата списка
type Page struct {
	Goods       []Good `json:"goods"`
	Number      int    `json:"number"`
	NumPages    int    `json:"numPages"`
	Total       int    `json:"total"`
	HasNext     bool   `json:"hasNext"`
	HasPrevious bool   `json:"hasPrevious"`
}

// NumPages число страниц для total записей, не меньше одной
func NumPages(total int) int {
	if total <= 0 {
		return 1
	}
	return (total + PageSize - 1) / PageSize
}

// NewPage собирает метаданные страницы по общему числу записей
func NewPage(goods []Good, number, total int) Page {
	numPages := NumPages(total)
	if goods == nil {
		goods = []Good{}
	}
	return Page{
		Goods:       goods,
		Number:      number,
		NumPages:    numPages,
		Total:       total,
		HasNext:     number < numPages,
		HasPrevious: number > 1,
	}
}

// Действия, попадающие в журнал событий
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// GoodEvent событие изменения товара, публикуется в NATS и пишется в ClickHouse
type GoodEvent struct {
	Action  string          `json:"action"`
	ID      int             `json:"id"`
	GenreID int             `json:"genreId"`
	Name    string          `json:"name"`
	Author  string          `json:"author"`
	Price   decimal.Decimal `json:"price"`
	Images  int             `json:"images"`
	At      time.Time       `json:"at"`
}

// NewGoodEvent формирует событие по состоянию товара
func NewGoodEvent(action string, g *Good) GoodEvent {
	return GoodEvent{
		Action:  action,
		ID:      g.ID,
		GenreID: g.GenreID,
		Name:    g.Name,
		Author:  g.Author,
		Price:   g.Price,
		Images:  len(g.Images),
		At:      time.Now().UTC(),
	}
}
