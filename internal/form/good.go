package form

import (
	"errors"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"GoodsCatalog/internal/model"
)

// Имена полей формы товара
const (
	FieldName   = "name"
	FieldAuthor = "author"
	FieldPrice  = "price"
	FieldGenre  = "genre"
)

// ErrInvalidChoice текст ошибки для несуществующего жанра
const ErrInvalidChoice = "Select a valid choice. That choice is not one of the available choices."

// priceDecimalPlaces допустимое число знаков после запятой в цене
const priceDecimalPlaces = 2

// GoodForm привязанная форма товара
// Data хранит введённые строки как есть, чтобы вернуть их при повторном показе формы
type GoodForm struct {
	Name    string          `form:"name" json:"-" validate:"required,max=50"`
	Author  string          `form:"author" json:"-" validate:"required,max=50"`
	Price   decimal.Decimal `form:"price" json:"-" validate:"gte=0,lt=100000000"`
	GenreID int             `form:"genre" json:"-" validate:"gt=0"`

	Data   map[string]string `form:"-" json:"data"`
	Errors Errors            `form:"-" json:"errors"`

	bound bool
}

// NewGoodForm пустая форма создания с жанром по умолчанию
func NewGoodForm(genre *model.Genre) *GoodForm {
	f := &GoodForm{Data: map[string]string{}, Errors: Errors{}}
	if genre != nil {
		f.GenreID = genre.ID
		f.Data[FieldGenre] = strconv.Itoa(genre.ID)
	}
	return f
}

// GoodFormFor форма редактирования, заполненная значениями товара
func GoodFormFor(g *model.Good) *GoodForm {
	return &GoodForm{
		Name:    g.Name,
		Author:  g.Author,
		Price:   g.Price,
		GenreID: g.GenreID,
		Data: map[string]string{
			FieldName:   g.Name,
			FieldAuthor: g.Author,
			FieldPrice:  g.Price.StringFixed(priceDecimalPlaces),
			FieldGenre:  strconv.Itoa(g.GenreID),
		},
		Errors: Errors{},
	}
}

// BindGood разбирает значения формы; ошибки разбора сохраняются сразу,
// остальные проверки выполняет Validate
func BindGood(values url.Values) *GoodForm {
	f := &GoodForm{Data: map[string]string{}, Errors: Errors{}, bound: true}
	for _, k := range []string{FieldName, FieldAuthor, FieldPrice, FieldGenre} {
		f.Data[k] = strings.TrimSpace(values.Get(k))
	}
	f.Name = f.Data[FieldName]
	f.Author = f.Data[FieldAuthor]

	if raw := f.Data[FieldPrice]; raw == "" {
		f.Errors.Add(FieldPrice, "This field is required.")
	} else if d, err := decimal.NewFromString(raw); err != nil {
		f.Errors.Add(FieldPrice, "Enter a number.")
	} else {
		f.Price = d
	}

	if raw := f.Data[FieldGenre]; raw == "" {
		f.Errors.Add(FieldGenre, "This field is required.")
	} else if id, err := strconv.Atoi(raw); err != nil {
		f.Errors.Add(FieldGenre, ErrInvalidChoice)
	} else {
		f.GenreID = id
	}
	return f
}

// Bound сообщает, пришла ли форма из запроса
func (f *GoodForm) Bound() bool {
	return f.bound
}

// Validate проверяет поля формы и возвращает true, если ошибок нет
func (f *GoodForm) Validate() bool {
	if !f.bound {
		return false
	}
	err := validate.Struct(f)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			// ошибку разбора не дублируем
			if f.Errors.Has(fe.Field()) {
				continue
			}
			f.Errors.Add(fe.Field(), message(fe))
		}
	}
	if !f.Errors.Has(FieldPrice) && !f.Price.Equal(f.Price.Truncate(priceDecimalPlaces)) {
		f.Errors.Add(FieldPrice, "Ensure that there are no more than 2 decimal places.")
	}
	return f.Valid()
}

// Valid сообщает об отсутствии ошибок
func (f *GoodForm) Valid() bool {
	return f.bound && len(f.Errors) == 0
}

// AddError добавляет ошибку поля, выявленную вне формы (например, жанр не найден)
func (f *GoodForm) AddError(field, msg string) {
	f.Errors.Add(field, msg)
}

// Apply переносит проверенные значения в товар
func (f *GoodForm) Apply(g *model.Good) {
	g.Name = f.Name
	g.Author = f.Author
	g.Price = f.Price
	g.GenreID = f.GenreID
}
