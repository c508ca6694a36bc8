// Пакет form отвечает за привязку и валидацию данных форм товара и набора изображений
package form

import (
	"fmt"
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Errors ошибки по полям формы: имя поля -> сообщения
type Errors map[string][]string

// Add добавляет сообщение к полю
func (e Errors) Add(field, msg string) {
	e[field] = append(e[field], msg)
}

// Has сообщает, есть ли ошибки у поля
func (e Errors) Has(field string) bool {
	return len(e[field]) > 0
}

// validate единый экземпляр валидатора, он кэширует разобранные структуры
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// в сообщениях используем имена полей формы, а не Go-структуры
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		if name := fld.Tag.Get("form"); name != "" && name != "-" {
			return name
		}
		return fld.Name
	})
	// decimal.Decimal сравнивается как число
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// message переводит ошибку валидатора в текст для пользователя
func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "max":
		return fmt.Sprintf("Ensure this value has at most %s characters (it has %d).", fe.Param(), len([]rune(fmt.Sprint(fe.Value()))))
	case "gte":
		return fmt.Sprintf("Ensure this value is greater than or equal to %s.", fe.Param())
	case "lt":
		return fmt.Sprintf("Ensure this value is less than %s.", fe.Param())
	case "gt":
		return "Select a valid choice. That choice is not one of the available choices."
	default:
		return fmt.Sprintf("Invalid value (%s).", fe.Tag())
	}
}
