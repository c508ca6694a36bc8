package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"GoodsCatalog/internal/model"
	"GoodsCatalog/internal/repository"
	cachepkg "GoodsCatalog/pkg/cache"
)

// memRepo реализует Repo в памяти с той же семантикой фильтра, сортировки и
// пагинации, что и SQL-запросы GoodRepository. InTx откатывает изменения при ошибке
type memRepo struct {
	genres    []model.Genre
	goods     map[int]model.Good
	images    map[int]model.GoodImage
	nextGood  int
	nextImage int

	listCalls   int
	txCalls     int
	addImageErr error
}

func newMemRepo(genres ...string) *memRepo {
	m := &memRepo{goods: map[int]model.Good{}, images: map[int]model.GoodImage{}}
	for i, name := range genres {
		m.genres = append(m.genres, model.Genre{ID: i + 1, Name: name})
	}
	return m
}

// seed добавляет товар в обход сервиса
func (m *memRepo) seed(genreID int, name, author, price string) int {
	m.nextGood++
	m.goods[m.nextGood] = model.Good{
		ID: m.nextGood, GenreID: genreID, Name: name, Author: author,
		Price: decimal.RequireFromString(price),
	}
	return m.nextGood
}

func (m *memRepo) seedImage(goodID int, key string, position int) model.GoodImage {
	m.nextImage++
	img := model.GoodImage{ID: m.nextImage, GoodID: goodID, ObjectKey: key, URL: "https://img/" + key, Position: position}
	m.images[img.ID] = img
	return img
}

func (m *memRepo) FirstGenre(ctx context.Context) (*model.Genre, error) {
	if len(m.genres) == 0 {
		return nil, repository.ErrNotFound
	}
	g := m.genres[0]
	return &g, nil
}

func (m *memRepo) GetGenre(ctx context.Context, id int) (*model.Genre, error) {
	for _, g := range m.genres {
		if g.ID == id {
			return &g, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memRepo) ListGenres(ctx context.Context) ([]model.Genre, error) {
	return append([]model.Genre{}, m.genres...), nil
}

func (m *memRepo) matching(genreID int, q model.ListQuery) []model.Good {
	term := strings.ToLower(q.Search)
	var out []model.Good
	for _, g := range m.goods {
		if g.GenreID != genreID {
			continue
		}
		if term != "" && !strings.Contains(strings.ToLower(g.Name), term) && !strings.Contains(strings.ToLower(g.Author), term) {
			continue
		}
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if q.ByPrice() {
			if c := a.Price.Cmp(b.Price); c != 0 {
				if q.Descending() {
					return c > 0
				}
				return c < 0
			}
			if a.Name != b.Name {
				return a.Name < b.Name
			}
			return a.ID < b.ID
		}
		if a.Name != b.Name {
			if q.Descending() {
				return a.Name > b.Name
			}
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
	return out
}

func (m *memRepo) ListGoods(ctx context.Context, genreID int, q model.ListQuery) ([]model.Good, int, error) {
	m.listCalls++
	all := m.matching(genreID, q)
	total := len(all)
	offset := q.Offset()
	if q.Last {
		offset = (model.NumPages(total) - 1) * model.PageSize
	}
	if offset >= total {
		return []model.Good{}, total, nil
	}
	page := all[offset:min(offset+model.PageSize, total)]
	goods := make([]model.Good, 0, len(page))
	for _, g := range page {
		g.Images = m.imagesOf(g.ID)
		goods = append(goods, g)
	}
	return goods, total, nil
}

func (m *memRepo) imagesOf(goodID int) []model.GoodImage {
	images := []model.GoodImage{}
	for _, img := range m.images {
		if img.GoodID == goodID {
			images = append(images, img)
		}
	}
	sort.Slice(images, func(i, j int) bool {
		if images[i].Position != images[j].Position {
			return images[i].Position < images[j].Position
		}
		return images[i].ID < images[j].ID
	})
	return images
}

func (m *memRepo) GetGood(ctx context.Context, id int) (*model.Good, error) {
	g, ok := m.goods[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	g.Images = m.imagesOf(id)
	return &g, nil
}

func (m *memRepo) ListImages(ctx context.Context, goodID int) ([]model.GoodImage, error) {
	return m.imagesOf(goodID), nil
}

func (m *memRepo) CreateGood(ctx context.Context, g model.Good) (*model.Good, error) {
	m.nextGood++
	g.ID = m.nextGood
	g.Images = nil
	m.goods[g.ID] = g
	g.Images = []model.GoodImage{}
	return &g, nil
}

func (m *memRepo) UpdateGood(ctx context.Context, g model.Good) (*model.Good, error) {
	if _, ok := m.goods[g.ID]; !ok {
		return nil, repository.ErrNotFound
	}
	stored := g
	stored.Images = nil
	m.goods[g.ID] = stored
	return &g, nil
}

func (m *memRepo) DeleteGood(ctx context.Context, id int) ([]model.GoodImage, error) {
	if _, ok := m.goods[id]; !ok {
		return nil, repository.ErrNotFound
	}
	images := m.imagesOf(id)
	for _, img := range images {
		delete(m.images, img.ID)
	}
	delete(m.goods, id)
	return images, nil
}

func (m *memRepo) AddImage(ctx context.Context, img model.GoodImage) (*model.GoodImage, error) {
	if m.addImageErr != nil {
		return nil, m.addImageErr
	}
	m.nextImage++
	img.ID = m.nextImage
	m.images[img.ID] = img
	return &img, nil
}

func (m *memRepo) UpdateImage(ctx context.Context, img model.GoodImage) error {
	cur, ok := m.images[img.ID]
	if !ok || cur.GoodID != img.GoodID {
		return repository.ErrNotFound
	}
	m.images[img.ID] = img
	return nil
}

func (m *memRepo) DeleteImage(ctx context.Context, goodID, id int) error {
	cur, ok := m.images[id]
	if !ok || cur.GoodID != goodID {
		return repository.ErrNotFound
	}
	delete(m.images, id)
	return nil
}

func (m *memRepo) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.txCalls++
	goods := make(map[int]model.Good, len(m.goods))
	for k, v := range m.goods {
		goods[k] = v
	}
	images := make(map[int]model.GoodImage, len(m.images))
	for k, v := range m.images {
		images[k] = v
	}
	if err := fn(ctx); err != nil {
		m.goods, m.images = goods, images
		return err
	}
	return nil
}

// memCache кэш в памяти; err, если задан, возвращается всеми методами
type memCache struct {
	data map[string][]byte
	gens map[string]int64
	err  error
}

func newMemCache() *memCache {
	return &memCache{data: map[string][]byte{}, gens: map[string]int64{}}
}

func (c *memCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if c.err != nil {
		return c.err
	}
	c.data[key] = value
	return nil
}

func (c *memCache) Get(ctx context.Context, key string) ([]byte, error) {
	if c.err != nil {
		return nil, c.err
	}
	v, ok := c.data[key]
	if !ok {
		return nil, cachepkg.ErrCacheMiss
	}
	return v, nil
}

func (c *memCache) Invalidate(ctx context.Context, keys ...string) error {
	if c.err != nil {
		return c.err
	}
	for _, k := range keys {
		delete(c.data, k)
	}
	return nil
}

func (c *memCache) Generation(ctx context.Context, key string) (int64, error) {
	if c.err != nil {
		return 0, c.err
	}
	return c.gens[key], nil
}

func (c *memCache) Bump(ctx context.Context, key string) (int64, error) {
	if c.err != nil {
		return 0, c.err
	}
	c.gens[key]++
	return c.gens[key], nil
}

// mockPublisher запоминает опубликованные события
type mockPublisher struct {
	events []model.GoodEvent
	err    error
}

func (p *mockPublisher) Publish(event interface{}) error {
	if ev, ok := event.(model.GoodEvent); ok {
		p.events = append(p.events, ev)
	}
	return p.err
}

// memStore хранилище объектов в памяти
type memStore struct {
	objects map[string][]byte
	putErr  error
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}}
}

func (s *memStore) Put(ctx context.Context, key string, data []byte) (string, error) {
	if s.putErr != nil {
		return "", s.putErr
	}
	s.objects[key] = data
	return "https://img/" + key, nil
}

func (s *memStore) Delete(ctx context.Context, key string) error {
	if _, ok := s.objects[key]; !ok {
		return errors.New("no such key")
	}
	delete(s.objects, key)
	return nil
}

type fixture struct {
	svc   *CatalogService
	repo  *memRepo
	cache *memCache
	pub   *mockPublisher
	store *memStore
}

func newFixture(repo *memRepo, atomic bool) *fixture {
	f := &fixture{repo: repo, cache: newMemCache(), pub: &mockPublisher{}, store: newMemStore()}
	n := 0
	f.svc = NewCatalogService(repo, f.cache, f.pub, f.store, Options{
		AtomicFormsets: atomic,
		MaxImageBytes:  1 << 20,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		ImageKey: func(goodID int, filename string) string {
			n++
			return fmt.Sprintf("goods/%d/%d.png", goodID, n)
		},
	})
	return f
}
