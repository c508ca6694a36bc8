package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"GoodsCatalog/internal/form"
	"GoodsCatalog/internal/model"
	"GoodsCatalog/internal/service"
)

const (
	// maxRequestBytes предельный размер тела формы с файлами
	maxRequestBytes = 64 << 20
	// maxMemory часть multipart-формы, которая держится в памяти, остальное уходит во временные файлы
	maxMemory = 32 << 20
)

// ListView модель страницы списка товаров жанра
type ListView struct {
	Genre    *model.Genre  `json:"genre"`
	Genres   []model.Genre `json:"genres"`
	Page     model.Page    `json:"page"`
	Search   string        `json:"search"`
	Sort     string        `json:"sort"`
	Order    string        `json:"order"`
	Query    queryState    `json:"query"`
	Messages []string      `json:"messages"`
}

// DetailView модель страницы товара
type DetailView struct {
	Good     *model.Good `json:"good"`
	Query    queryState  `json:"query"`
	Messages []string    `json:"messages"`
}

// FormView модель страницы создания или редактирования товара
type FormView struct {
	Genre   *model.Genre       `json:"genre"`
	Genres  []model.Genre      `json:"genres"`
	Good    *model.Good        `json:"good,omitempty"`
	Form    *form.GoodForm     `json:"form"`
	Formset *form.ImageFormset `json:"formset"`
	Query   queryState         `json:"query"`
}

// DeleteView модель страницы подтверждения удаления
type DeleteView struct {
	Good  *model.Good `json:"good"`
	Query queryState  `json:"query"`
}

// List обрабатывает GET /goods и GET /goods/{genreId}
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	genreID, err := genreParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q := listQuery(r)
	res, err := h.srv.List(r.Context(), genreID, q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ListView{
		Genre:    res.Genre,
		Genres:   res.Genres,
		Page:     res.Page,
		Search:   res.Query.Search,
		Sort:     res.Query.Sort,
		Order:    res.Query.Order,
		Query:    stateOf(r),
		Messages: h.messages(w, r),
	})
}

// Detail обрабатывает GET /goods/good/{id}
func (h *Handler) Detail(w http.ResponseWriter, r *http.Request) {
	id, err := goodID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	good, err := h.srv.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DetailView{Good: good, Query: stateOf(r), Messages: h.messages(w, r)})
}

// formView собирает модель формы с жанром genreID (или первым жанром) и списком жанров
func (h *Handler) formView(r *http.Request, genreID *int) (FormView, error) {
	genre, err := h.srv.ResolveGenre(r.Context(), genreID)
	if err != nil {
		return FormView{}, err
	}
	genres, err := h.srv.Genres(r.Context())
	if err != nil {
		return FormView{}, err
	}
	return FormView{Genre: genre, Genres: genres, Query: stateOf(r)}, nil
}

// CreateForm обрабатывает GET /goods/add и GET /goods/{genreId}/add
func (h *Handler) CreateForm(w http.ResponseWriter, r *http.Request) {
	genreID, err := genreParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	view, err := h.formView(r, genreID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	view.Form = form.NewGoodForm(view.Genre)
	view.Formset = form.NewImageFormset(nil)
	writeJSON(w, http.StatusOK, view)
}

// Create обрабатывает POST /goods/add и POST /goods/{genreId}/add
// 1. Разбирает multipart-форму товара и набор изображений
// 2. Вызывает сервис Create
// 3. При ошибках проверки возвращает 422 с привязанными формами
// 4. При успехе добавляет flash-сообщение и перенаправляет на список жанра товара
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	genreID, err := genreParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	view, err := h.formView(r, genreID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	gf, fs, err := bindForms(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{1, "invalid form data", map[string]interface{}{"error": err.Error()}})
		return
	}
	good, err := h.srv.Create(r.Context(), gf, fs)
	if err != nil {
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			view.Good, view.Form, view.Formset = verr.Good, verr.Form, verr.Images
			writeJSON(w, http.StatusUnprocessableEntity, view)
			return
		}
		h.fail(w, r, err)
		return
	}
	h.flash(w, r, msgCreated)
	http.Redirect(w, r, listingURL(good.GenreID, r), http.StatusFound)
}

// EditForm обрабатывает GET /goods/good/{id}/edit
func (h *Handler) EditForm(w http.ResponseWriter, r *http.Request) {
	id, err := goodID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	good, err := h.srv.Edit(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	view, err := h.formView(r, &good.GenreID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	view.Good = good
	view.Form = form.GoodFormFor(good)
	view.Formset = form.NewImageFormset(good.Images)
	writeJSON(w, http.StatusOK, view)
}

// Update обрабатывает POST /goods/good/{id}/edit
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := goodID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	current, err := h.srv.Edit(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	gf, fs, err := bindForms(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{1, "invalid form data", map[string]interface{}{"error": err.Error()}})
		return
	}
	good, err := h.srv.Update(r.Context(), id, gf, fs)
	if err != nil {
		var verr *service.ValidationError
		if !errors.As(err, &verr) {
			h.fail(w, r, err)
			return
		}
		view, err := h.formView(r, &current.GenreID)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		view.Good, view.Form, view.Formset = current, verr.Form, verr.Images
		if verr.Good != nil {
			view.Good = verr.Good
		}
		writeJSON(w, http.StatusUnprocessableEntity, view)
		return
	}
	h.flash(w, r, msgUpdated)
	http.Redirect(w, r, listingURL(good.GenreID, r), http.StatusFound)
}

// DeleteConfirm обрабатывает GET /goods/good/{id}/delete
func (h *Handler) DeleteConfirm(w http.ResponseWriter, r *http.Request) {
	id, err := goodID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	good, err := h.srv.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteView{Good: good, Query: stateOf(r)})
}

// Delete обрабатывает POST /goods/good/{id}/delete и перенаправляет на список жанра удалённого товара
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := goodID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	good, err := h.srv.Delete(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.flash(w, r, msgDeleted)
	http.Redirect(w, r, listingURL(good.GenreID, r), http.StatusFound)
}

// bindForms разбирает тело запроса (multipart или urlencoded) в форму товара и набор изображений
func bindForms(w http.ResponseWriter, r *http.Request) (*form.GoodForm, *form.ImageFormset, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxMemory); err != nil {
			return nil, nil, fmt.Errorf("failed to parse multipart form: %w", err)
		}
	} else if err := r.ParseForm(); err != nil {
		return nil, nil, fmt.Errorf("failed to parse form: %w", err)
	}
	files := map[string]*form.Upload{}
	if r.MultipartForm != nil {
		for key, headers := range r.MultipartForm.File {
			if len(headers) == 0 {
				continue
			}
			fh := headers[0]
			f, err := fh.Open()
			if err != nil {
				return nil, nil, fmt.Errorf("failed to open %s: %w", key, err)
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				return nil, nil, fmt.Errorf("failed to read %s: %w", key, err)
			}
			files[key] = &form.Upload{Filename: fh.Filename, Data: data}
		}
	}
	return form.BindGood(r.PostForm), form.BindImages(r.PostForm, files), nil
}
