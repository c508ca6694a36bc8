package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"GoodsCatalog/internal/form"
	"GoodsCatalog/internal/model"
	"GoodsCatalog/internal/repository"
	"GoodsCatalog/pkg/storage"
)

// Repo определяет интерфейс репозитория каталога: жанры, товары и их изображения.
// InTx выполняет fn в одной транзакции; вызовы Repo с переданным ctx идут в неё
type Repo interface {
	FirstGenre(ctx context.Context) (*model.Genre, error)
	GetGenre(ctx context.Context, id int) (*model.Genre, error)
	ListGenres(ctx context.Context) ([]model.Genre, error)
	ListGoods(ctx context.Context, genreID int, q model.ListQuery) ([]model.Good, int, error)
	GetGood(ctx context.Context, id int) (*model.Good, error)
	ListImages(ctx context.Context, goodID int) ([]model.GoodImage, error)
	CreateGood(ctx context.Context, g model.Good) (*model.Good, error)
	UpdateGood(ctx context.Context, g model.Good) (*model.Good, error)
	DeleteGood(ctx context.Context, id int) ([]model.GoodImage, error)
	AddImage(ctx context.Context, img model.GoodImage) (*model.GoodImage, error)
	UpdateImage(ctx context.Context, img model.GoodImage) error
	DeleteImage(ctx context.Context, goodID, id int) error
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Cache определяет интерфейс кэширования (Redis).
// Generation и Bump ведут счётчик поколения, который входит в ключи списков
type Cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Invalidate(ctx context.Context, keys ...string) error
	Generation(ctx context.Context, key string) (int64, error)
	Bump(ctx context.Context, key string) (int64, error)
}

// Publisher отправляет события изменения товаров (NATS)
type Publisher interface {
	Publish(event interface{}) error
}

// ImageStore хранилище файлов изображений (S3)
type ImageStore interface {
	Put(ctx context.Context, key string, data []byte) (string, error)
	Delete(ctx context.Context, key string) error
}

// ErrValidation базовая ошибка для отклонённых форм
var ErrValidation = errors.New("validation failed")

// ValidationError возвращается, когда форма товара или набор изображений не прошли проверку.
// Good заполнен, если товар успел сохраниться до отказа набора изображений
type ValidationError struct {
	Good   *model.Good
	Form   *form.GoodForm
	Images *form.ImageFormset
}

func (e *ValidationError) Error() string {
	return ErrValidation.Error()
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Options настройки CatalogService
type Options struct {
	// AtomicFormsets сохраняет товар и изображения в одной транзакции:
	// отклонённый набор изображений откатывает и товар
	AtomicFormsets bool
	// MaxImageBytes предельный размер файла изображения, 0 без ограничения
	MaxImageBytes int64
	CacheTTL      time.Duration
	Logger        *slog.Logger
	// ImageKey формирует ключ объекта, по умолчанию storage.ImageKey
	ImageKey func(goodID int, filename string) string
}

// CatalogService реализует операции каталога над товарами жанра
type CatalogService struct {
	repo  Repo
	cache Cache
	pub   Publisher
	store ImageStore

	atomic   bool
	maxBytes int64
	ttl      time.Duration
	imageKey func(goodID int, filename string) string
	log      *slog.Logger
}

// NewCatalogService создаёт сервис каталога
func NewCatalogService(r Repo, c Cache, p Publisher, st ImageStore, opts Options) *CatalogService {
	s := &CatalogService{
		repo:     r,
		cache:    c,
		pub:      p,
		store:    st,
		atomic:   opts.AtomicFormsets,
		maxBytes: opts.MaxImageBytes,
		ttl:      opts.CacheTTL,
		imageKey: opts.ImageKey,
		log:      opts.Logger,
	}
	if s.ttl <= 0 {
		s.ttl = time.Minute
	}
	if s.imageKey == nil {
		s.imageKey = storage.ImageKey
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

// Listing результат операции List
type Listing struct {
	// Genre активный жанр, nil если жанров нет
	Genre  *model.Genre
	Genres []model.Genre
	Query  model.ListQuery
	Page   model.Page
}

func goodKey(id int) string {
	return fmt.Sprintf("good:%d", id)
}

func generationKey(genreID int) string {
	return fmt.Sprintf("goods:gen:%d", genreID)
}

func listKey(genreID int, gen int64, q model.ListQuery) string {
	page := strconv.Itoa(q.Page)
	if q.Last {
		page = "last"
	}
	return fmt.Sprintf("goods:list:%d:%d:%s:%s:%s:%s", genreID, gen, q.Sort, q.Order, page, url.QueryEscape(q.Search))
}

// ResolveGenre возвращает жанр по id или первый жанр, если id не задан.
// Без жанров в базе возвращает nil без ошибки
func (s *CatalogService) ResolveGenre(ctx context.Context, genreID *int) (*model.Genre, error) {
	if genreID != nil {
		return s.repo.GetGenre(ctx, *genreID)
	}
	g, err := s.repo.FirstGenre(ctx)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return g, err
}

// Genres возвращает все жанры в порядке создания
func (s *CatalogService) Genres(ctx context.Context) ([]model.Genre, error) {
	return s.repo.ListGenres(ctx)
}

// List возвращает страницу товаров жанра с поиском и сортировкой
func (s *CatalogService) List(ctx context.Context, genreID *int, q model.ListQuery) (*Listing, error) {
	genre, err := s.ResolveGenre(ctx, genreID)
	if err != nil {
		return nil, err
	}
	genres, err := s.repo.ListGenres(ctx)
	if err != nil {
		return nil, err
	}
	if q.Page < 1 {
		q.Page = 1
	}
	res := &Listing{Genre: genre, Genres: genres, Query: q}
	if genre == nil {
		res.Page = model.NewPage(nil, q.Page, 0)
		return res, nil
	}
	page, err := s.listPage(ctx, genre.ID, q)
	if err != nil {
		return nil, err
	}
	res.Page = page
	return res, nil
}

func (s *CatalogService) listPage(ctx context.Context, genreID int, q model.ListQuery) (model.Page, error) {
	key := ""
	if gen, err := s.cache.Generation(ctx, generationKey(genreID)); err == nil {
		key = listKey(genreID, gen, q)
		if data, err := s.cache.Get(ctx, key); err == nil {
			var p model.Page
			if err := json.Unmarshal(data, &p); err == nil {
				return p, nil
			}
		}
	} else {
		s.log.Warn("cache generation unavailable", "genre", genreID, "error", err)
	}
	goods, total, err := s.repo.ListGoods(ctx, genreID, q)
	if err != nil {
		return model.Page{}, err
	}
	number := q.Page
	if q.Last {
		number = model.NumPages(total)
	}
	page := model.NewPage(goods, number, total)
	if key != "" {
		s.cacheSet(ctx, key, page)
	}
	return page, nil
}

// Get возвращает товар с изображениями, сначала из кэша
func (s *CatalogService) Get(ctx context.Context, id int) (*model.Good, error) {
	key := goodKey(id)
	if data, err := s.cache.Get(ctx, key); err == nil {
		var g model.Good
		if err := json.Unmarshal(data, &g); err == nil {
			return &g, nil
		}
	}
	good, err := s.repo.GetGood(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, key, good)
	return good, nil
}

// Edit возвращает товар для формы редактирования в обход кэша
func (s *CatalogService) Edit(ctx context.Context, id int) (*model.Good, error) {
	return s.repo.GetGood(ctx, id)
}

func (s *CatalogService) cacheSet(ctx context.Context, key string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
		s.log.Warn("cache set failed", "key", key, "error", err)
	}
}

// validateGood проверяет форму и существование выбранного жанра
func (s *CatalogService) validateGood(ctx context.Context, gf *form.GoodForm) (bool, error) {
	gf.Validate()
	if !gf.Errors.Has(form.FieldGenre) {
		_, err := s.repo.GetGenre(ctx, gf.GenreID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			gf.AddError(form.FieldGenre, form.ErrInvalidChoice)
		case err != nil:
			return false, err
		}
	}
	return gf.Valid(), nil
}

// run выполняет обе фазы сохранения, в транзакции если включён атомарный режим
func (s *CatalogService) run(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.atomic {
		return s.repo.InTx(ctx, fn)
	}
	return fn(ctx)
}

// Create проверяет форму товара, сохраняет товар, затем проверяет и сохраняет изображения.
// Без атомарного режима товар остаётся сохранённым, даже если изображения отклонены
func (s *CatalogService) Create(ctx context.Context, gf *form.GoodForm, fs *form.ImageFormset) (*model.Good, error) {
	var (
		saved *model.Good
		objs  objects
	)
	err := s.run(ctx, func(ctx context.Context) error {
		ok, err := s.validateGood(ctx, gf)
		if err != nil {
			return err
		}
		if !ok {
			return &ValidationError{Form: gf, Images: fs}
		}
		var g model.Good
		gf.Apply(&g)
		saved, err = s.repo.CreateGood(ctx, g)
		if err != nil {
			return err
		}
		if !fs.Validate(nil, s.maxBytes) {
			return &ValidationError{Good: saved, Form: gf, Images: fs}
		}
		if err := s.saveImages(ctx, saved.ID, fs.Changes(), &objs); err != nil {
			return err
		}
		saved.Images, err = s.repo.ListImages(ctx, saved.ID)
		return err
	})
	s.settle(ctx, &objs, err)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) && s.atomic {
			verr.Good = nil
		}
		if !s.atomic && saved != nil {
			s.changed(ctx, model.ActionCreated, saved, saved.GenreID)
		}
		return nil, err
	}
	s.log.Info("good created", "id", saved.ID, "genre", saved.GenreID, "images", len(saved.Images))
	s.changed(ctx, model.ActionCreated, saved, saved.GenreID)
	return saved, nil
}

// Update изменяет товар id и его изображения по тем же правилам, что и Create
func (s *CatalogService) Update(ctx context.Context, id int, gf *form.GoodForm, fs *form.ImageFormset) (*model.Good, error) {
	current, err := s.repo.GetGood(ctx, id)
	if err != nil {
		return nil, err
	}
	var (
		saved *model.Good
		objs  objects
	)
	err = s.run(ctx, func(ctx context.Context) error {
		ok, err := s.validateGood(ctx, gf)
		if err != nil {
			return err
		}
		if !ok {
			return &ValidationError{Form: gf, Images: fs}
		}
		g := *current
		gf.Apply(&g)
		saved, err = s.repo.UpdateGood(ctx, g)
		if err != nil {
			return err
		}
		if !fs.Validate(current.Images, s.maxBytes) {
			return &ValidationError{Good: saved, Form: gf, Images: fs}
		}
		if err := s.saveImages(ctx, saved.ID, fs.Changes(), &objs); err != nil {
			return err
		}
		saved.Images, err = s.repo.ListImages(ctx, saved.ID)
		return err
	})
	s.settle(ctx, &objs, err)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) && s.atomic {
			verr.Good = nil
		}
		if !s.atomic && saved != nil {
			s.changed(ctx, model.ActionUpdated, saved, current.GenreID, saved.GenreID)
		}
		return nil, err
	}
	s.log.Info("good updated", "id", saved.ID, "genre", saved.GenreID, "images", len(saved.Images))
	s.changed(ctx, model.ActionUpdated, saved, current.GenreID, saved.GenreID)
	return saved, nil
}

// Delete удаляет товар вместе с изображениями и возвращает удалённый товар,
// чтобы вызывающий знал его жанр
func (s *CatalogService) Delete(ctx context.Context, id int) (*model.Good, error) {
	good, err := s.repo.GetGood(ctx, id)
	if err != nil {
		return nil, err
	}
	images, err := s.repo.DeleteGood(ctx, id)
	if err != nil {
		return nil, err
	}
	objs := objects{}
	for _, img := range images {
		objs.obsolete = append(objs.obsolete, img.ObjectKey)
	}
	s.settle(ctx, &objs, nil)
	s.log.Info("good deleted", "id", good.ID, "genre", good.GenreID)
	s.changed(ctx, model.ActionDeleted, good, good.GenreID)
	return good, nil
}

// changed сбрасывает кэш затронутых жанров и товара и публикует событие
func (s *CatalogService) changed(ctx context.Context, action string, g *model.Good, genreIDs ...int) {
	seen := make(map[int]bool, len(genreIDs))
	for _, id := range genreIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		if _, err := s.cache.Bump(ctx, generationKey(id)); err != nil {
			s.log.Warn("cache bump failed", "genre", id, "error", err)
		}
	}
	if err := s.cache.Invalidate(ctx, goodKey(g.ID)); err != nil {
		s.log.Warn("cache invalidate failed", "id", g.ID, "error", err)
	}
	if err := s.pub.Publish(model.NewGoodEvent(action, g)); err != nil {
		s.log.Error("failed to publish event", "action", action, "id", g.ID, "error", err)
	}
}
