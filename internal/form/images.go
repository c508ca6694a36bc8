package form

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"GoodsCatalog/internal/model"
)

// ImagesPrefix префикс полей набора форм изображений
const ImagesPrefix = "images"

// MaxForms предельное число форм в наборе
const MaxForms = 1000

// Имена полей управляющей формы и форм набора
const (
	totalFormsField   = "TOTAL_FORMS"
	initialFormsField = "INITIAL_FORMS"
	FieldID           = "id"
	FieldOrder        = "ORDER"
	FieldDelete       = "DELETE"
	FieldImage        = "image"
)

// Upload файл из multipart-формы, уже прочитанный в память
type Upload struct {
	Filename string
	Data     []byte
}

// FieldKey полное имя поля формы с индексом i, например images-0-ORDER
func FieldKey(i int, field string) string {
	return fmt.Sprintf("%s-%d-%s", ImagesPrefix, i, field)
}

func managementKey(field string) string {
	return ImagesPrefix + "-" + field
}

// ImageForm одна форма набора: существующее изображение или новое
type ImageForm struct {
	Index    int    `json:"index"`
	ID       int    `json:"id,omitempty"`
	Order    *int   `json:"order,omitempty"`
	Delete   bool   `json:"delete,omitempty"`
	URL      string `json:"url,omitempty"`
	Filename string `json:"filename,omitempty"`
	Errors   Errors `json:"errors,omitempty"`

	File *Upload `json:"-"`

	rawID    string
	rawOrder string
	instance *model.GoodImage
	empty    bool
}

// ImageFormset набор форм изображений, привязанный к товару
type ImageFormset struct {
	Forms         []*ImageForm `json:"forms"`
	NonFormErrors []string     `json:"nonFormErrors,omitempty"`

	initial   int
	bound     bool
	validated bool
}

// NewImageFormset непривязанный набор для показа существующих изображений
func NewImageFormset(images []model.GoodImage) *ImageFormset {
	fs := &ImageFormset{Forms: make([]*ImageForm, 0, len(images)), initial: len(images)}
	for i := range images {
		img := images[i]
		pos := img.Position
		fs.Forms = append(fs.Forms, &ImageForm{
			Index:    i,
			ID:       img.ID,
			Order:    &pos,
			URL:      img.URL,
			instance: &img,
		})
	}
	return fs
}

// BindImages разбирает поля набора форм из значений запроса и загруженных файлов.
// files индексируется полным именем поля, например images-0-image
func BindImages(values url.Values, files map[string]*Upload) *ImageFormset {
	fs := &ImageFormset{Forms: []*ImageForm{}, bound: true}
	total, err1 := strconv.Atoi(values.Get(managementKey(totalFormsField)))
	initial, err2 := strconv.Atoi(values.Get(managementKey(initialFormsField)))
	if err1 != nil || err2 != nil || total < 0 || initial < 0 || initial > total {
		fs.NonFormErrors = append(fs.NonFormErrors, "ManagementForm data is missing or has been tampered with.")
		return fs
	}
	if total > MaxForms {
		fs.NonFormErrors = append(fs.NonFormErrors, fmt.Sprintf("Please submit at most %d forms.", MaxForms))
		return fs
	}
	fs.initial = initial
	for i := 0; i < total; i++ {
		f := &ImageForm{
			Index:    i,
			Errors:   Errors{},
			rawID:    strings.TrimSpace(values.Get(FieldKey(i, FieldID))),
			rawOrder: strings.TrimSpace(values.Get(FieldKey(i, FieldOrder))),
			Delete:   checkbox(values.Get(FieldKey(i, FieldDelete))),
			File:     files[FieldKey(i, FieldImage)],
		}
		if f.File != nil {
			f.Filename = f.File.Filename
		}
		fs.Forms = append(fs.Forms, f)
	}
	return fs
}

func checkbox(v string) bool {
	switch strings.ToLower(v) {
	case "on", "true", "1", "yes":
		return true
	}
	return false
}

// Bound сообщает, пришёл ли набор из запроса
func (fs *ImageFormset) Bound() bool {
	return fs.bound
}

// Validate проверяет набор против изображений товара existing.
// maxBytes ограничивает размер одного файла, 0 отключает проверку
func (fs *ImageFormset) Validate(existing []model.GoodImage, maxBytes int64) bool {
	if !fs.bound {
		return false
	}
	fs.validated = true
	byID := make(map[int]*model.GoodImage, len(existing))
	for i := range existing {
		byID[existing[i].ID] = &existing[i]
	}
	seen := make(map[int]bool)
	for _, f := range fs.Forms {
		f.validate(byID, seen, f.Index < fs.initial, maxBytes)
	}
	return fs.Valid()
}

func (f *ImageForm) validate(byID map[int]*model.GoodImage, seen map[int]bool, initial bool, maxBytes int64) {
	switch {
	case f.rawID != "":
		id, err := strconv.Atoi(f.rawID)
		img, ok := byID[id]
		if err != nil || !ok || seen[id] {
			f.Errors.Add(FieldID, ErrInvalidChoice)
			return
		}
		seen[id] = true
		f.ID = id
		f.URL = img.URL
		f.instance = img
	case initial:
		f.Errors.Add(FieldID, "This field is required.")
		return
	case f.File == nil:
		// лишняя форма без файла ничего не меняет
		f.empty = true
		return
	}
	// формы, отмеченные на удаление, не проверяются
	if f.Delete {
		return
	}
	if f.rawOrder != "" {
		n, err := strconv.Atoi(f.rawOrder)
		if err != nil {
			f.Errors.Add(FieldOrder, "Enter a whole number.")
		} else {
			f.Order = &n
		}
	}
	if f.File != nil {
		f.validateFile(maxBytes)
	}
}

func (f *ImageForm) validateFile(maxBytes int64) {
	if len(f.File.Data) == 0 {
		f.Errors.Add(FieldImage, "The submitted file is empty.")
		return
	}
	if maxBytes > 0 && int64(len(f.File.Data)) > maxBytes {
		f.Errors.Add(FieldImage, fmt.Sprintf("The file is too large (at most %d bytes).", maxBytes))
		return
	}
	if mt := mimetype.Detect(f.File.Data); !strings.HasPrefix(mt.String(), "image/") {
		f.Errors.Add(FieldImage, "Upload a valid image. The file you uploaded was either not an image or a corrupted image.")
	}
}

// Valid сообщает, что набор проверен и ошибок нет
func (fs *ImageFormset) Valid() bool {
	if !fs.bound || !fs.validated || len(fs.NonFormErrors) > 0 {
		return false
	}
	for _, f := range fs.Forms {
		if len(f.Errors) > 0 {
			return false
		}
	}
	return true
}

// NewImage изображение, которое нужно загрузить и сохранить
type NewImage struct {
	Upload   *Upload
	Position int
}

// ImageUpdate изменение существующего изображения: позиция и, возможно, новый файл
type ImageUpdate struct {
	Image    model.GoodImage
	Position int
	Upload   *Upload
}

// Changes изменения набора изображений, вычисленные из проверенного набора форм
type Changes struct {
	Create []NewImage
	Update []ImageUpdate
	Delete []model.GoodImage
}

// Empty сообщает, что изменений нет
func (c Changes) Empty() bool {
	return len(c.Create) == 0 && len(c.Update) == 0 && len(c.Delete) == 0
}

// Changes вычисляет изменения. Позиции нумеруются с нуля в порядке ORDER,
// формы без ORDER идут последними в порядке отправки
func (fs *ImageFormset) Changes() Changes {
	var ch Changes
	var kept []*ImageForm
	for _, f := range fs.Forms {
		switch {
		case f.empty:
		case f.Delete && f.instance != nil:
			ch.Delete = append(ch.Delete, *f.instance)
		case f.Delete:
			// новая форма, отмеченная на удаление, игнорируется
		default:
			kept = append(kept, f)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		a, b := kept[i], kept[j]
		if (a.Order == nil) != (b.Order == nil) {
			return a.Order != nil
		}
		if a.Order != nil && *a.Order != *b.Order {
			return *a.Order < *b.Order
		}
		return a.Index < b.Index
	})
	for pos, f := range kept {
		if f.instance == nil {
			ch.Create = append(ch.Create, NewImage{Upload: f.File, Position: pos})
			continue
		}
		if f.File == nil && f.instance.Position == pos {
			continue
		}
		ch.Update = append(ch.Update, ImageUpdate{Image: *f.instance, Position: pos, Upload: f.File})
	}
	return ch
}
