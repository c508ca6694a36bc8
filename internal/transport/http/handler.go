package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"

	"GoodsCatalog/internal/form"
	"GoodsCatalog/internal/model"
	"GoodsCatalog/internal/repository"
	"GoodsCatalog/internal/service"
)

// CatalogService задаёт интерфейс бизнес-логики каталога, используемый хендлером
type CatalogService interface {
	List(ctx context.Context, genreID *int, q model.ListQuery) (*service.Listing, error)
	Get(ctx context.Context, id int) (*model.Good, error)
	Edit(ctx context.Context, id int) (*model.Good, error)
	ResolveGenre(ctx context.Context, genreID *int) (*model.Genre, error)
	Genres(ctx context.Context) ([]model.Genre, error)
	Create(ctx context.Context, gf *form.GoodForm, fs *form.ImageFormset) (*model.Good, error)
	Update(ctx context.Context, id int, gf *form.GoodForm, fs *form.ImageFormset) (*model.Good, error)
	Delete(ctx context.Context, id int) (*model.Good, error)
}

// ReadinessCheck проверка зависимости для /readyz
type ReadinessCheck func(ctx context.Context) error

type namedCheck struct {
	name  string
	check ReadinessCheck
}

// Handler содержит зависимости и реализует HTTP-эндпоинты каталога
type Handler struct {
	srv      CatalogService
	sessions sessions.Store
	log      *slog.Logger
	checks   []namedCheck
}

// NewHandler создаёт новый HTTP Handler. store хранит flash-сообщения между запросами
func NewHandler(srv CatalogService, store sessions.Store, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{srv: srv, sessions: store, log: log}
}

// AddReadinessCheck регистрирует проверку зависимости name.
// Проверки выполняются в порядке регистрации
func (h *Handler) AddReadinessCheck(name string, check ReadinessCheck) {
	h.checks = append(h.checks, namedCheck{name: name, check: check})
}

// RegisterRoutes регистрирует маршруты каталога
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/healthz", h.Healthz).Methods("GET")
	r.HandleFunc("/readyz", h.Readyz).Methods("GET")

	r.HandleFunc("/goods", h.List).Methods("GET")
	r.HandleFunc("/goods/{genreId:[0-9]+}", h.List).Methods("GET")
	r.HandleFunc("/goods/add", h.CreateForm).Methods("GET")
	r.HandleFunc("/goods/add", h.Create).Methods("POST")
	r.HandleFunc("/goods/{genreId:[0-9]+}/add", h.CreateForm).Methods("GET")
	r.HandleFunc("/goods/{genreId:[0-9]+}/add", h.Create).Methods("POST")
	r.HandleFunc("/goods/good/{id:[0-9]+}", h.Detail).Methods("GET")
	r.HandleFunc("/goods/good/{id:[0-9]+}/edit", h.EditForm).Methods("GET")
	r.HandleFunc("/goods/good/{id:[0-9]+}/edit", h.Update).Methods("POST")
	r.HandleFunc("/goods/good/{id:[0-9]+}/delete", h.DeleteConfirm).Methods("GET")
	r.HandleFunc("/goods/good/{id:[0-9]+}/delete", h.Delete).Methods("POST")
}

// ErrorResponse модель ошибки API
type ErrorResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details"`
}

func writeError(w http.ResponseWriter, status int, resp ErrorResponse) {
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// fail переводит ошибку сервиса в ответ: ErrNotFound даёт 404, остальное 500
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, ErrorResponse{3, "errors.common.notFound", map[string]interface{}{}})
		return
	}
	h.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, ErrorResponse{1, err.Error(), map[string]interface{}{}})
}

// pathInt читает числовую переменную маршрута; false, если её нет или она не помещается в int
func pathInt(r *http.Request, name string) (int, bool) {
	v, ok := mux.Vars(r)[name]
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// genreParam id жанра из пути или nil, если жанр не указан.
// Значение, не помещающееся в int, считается несуществующим жанром
func genreParam(r *http.Request) (*int, error) {
	if _, ok := mux.Vars(r)["genreId"]; !ok {
		return nil, nil
	}
	id, ok := pathInt(r, "genreId")
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &id, nil
}

// goodID id товара из пути; непредставимое значение даёт ErrNotFound
func goodID(r *http.Request) (int, error) {
	id, ok := pathInt(r, "id")
	if !ok {
		return 0, repository.ErrNotFound
	}
	return id, nil
}

// Healthz возвращает статус работы сервиса
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// Readyz возвращает готовность сервиса: 503, если одна из зависимостей недоступна
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	for _, c := range h.checks {
		if err := c.check(ctx); err != nil {
			h.log.Warn("readiness check failed", "dependency", c.name, "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "dependency": c.name})
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}
