package http

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"GoodsCatalog/internal/model"
)

// Значения по умолчанию для page, sort и order в адресе редиректа
const (
	defaultPage  = "1"
	defaultSort  = model.SortByName
	defaultOrder = model.OrderAsc
)

// queryState параметры списка из query string, как их прислал клиент.
// Шаблон использует их для ссылок пагинации и действия форм
type queryState struct {
	Search string `json:"search"`
	Sort   string `json:"sort"`
	Order  string `json:"order"`
	Page   string `json:"page"`
}

func stateOf(r *http.Request) queryState {
	v := r.URL.Query()
	return queryState{
		Search: v.Get("search"),
		Sort:   v.Get("sort"),
		Order:  v.Get("order"),
		Page:   v.Get("page"),
	}
}

// listQuery разбирает параметры списка. Неизвестные sort и order дают сортировку
// по имени по возрастанию, нечисловая или меньшая 1 страница даёт первую
func listQuery(r *http.Request) model.ListQuery {
	v := r.URL.Query()
	q := model.ListQuery{
		Search: strings.TrimSpace(v.Get("search")),
		Sort:   model.SortByName,
		Order:  model.OrderAsc,
		Page:   1,
	}
	if v.Get("sort") == model.SortByPrice {
		q.Sort = model.SortByPrice
	}
	if v.Get("order") == model.OrderDesc {
		q.Order = model.OrderDesc
	}
	switch page := v.Get("page"); {
	case page == "last":
		q.Last = true
	default:
		if n, err := strconv.Atoi(page); err == nil && n > 0 {
			q.Page = n
		}
	}
	return q
}

func valueOr(v url.Values, key, fallback string) string {
	if s := v.Get(key); s != "" {
		return s
	}
	return fallback
}

// listingURL адрес списка жанра с page, sort и order из входящего запроса.
// Отсутствующие параметры заменяются значениями по умолчанию
func listingURL(genreID int, r *http.Request) string {
	v := r.URL.Query()
	return fmt.Sprintf("/goods/%d?page=%s&sort=%s&order=%s", genreID,
		url.QueryEscape(valueOr(v, "page", defaultPage)),
		url.QueryEscape(valueOr(v, "sort", defaultSort)),
		url.QueryEscape(valueOr(v, "order", defaultOrder)))
}
