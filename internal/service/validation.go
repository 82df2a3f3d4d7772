package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"anggaran/pkg/money"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// 错误信息里使用 json 字段名
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// validateStruct 返回第一个违规字段
func validateStruct(req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &ValidationError{Field: "request", Message: err.Error()}
	}

	fe := fieldErrs[0]
	return &ValidationError{Field: fe.Field(), Message: tagMessage(fe)}
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "wajib diisi"
	case "datetime":
		return "format tanggal harus YYYY-MM-DD"
	case "max":
		return fmt.Sprintf("maksimal %s karakter", fe.Param())
	case "min":
		return fmt.Sprintf("minimal %s karakter", fe.Param())
	case "oneof":
		return fmt.Sprintf("harus salah satu dari: %s", fe.Param())
	}
	return "tidak valid"
}

// parseAmount 金额必须能解析且大于 0
func parseAmount(field string, in money.Input) (decimal.Decimal, error) {
	d, err := money.ParsePositive(in.String())
	if err != nil {
		switch {
		case errors.Is(err, money.ErrNotPositive):
			return d, &ValidationError{Field: field, Message: "harus lebih besar dari 0"}
		case errors.Is(err, money.ErrTooPrecise):
			return d, &ValidationError{Field: field, Message: fmt.Sprintf("maksimal %d angka desimal", money.MaxScale)}
		case errors.Is(err, money.ErrTooLarge):
			return d, &ValidationError{Field: field, Message: fmt.Sprintf("maksimal %d digit sebelum desimal", money.MaxIntegerDigits)}
		}
		return d, &ValidationError{Field: field, Message: "harus berupa angka"}
	}
	return d, nil
}

func parseDate(field, s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return t, &ValidationError{Field: field, Message: "format tanggal harus YYYY-MM-DD"}
	}
	return t, nil
}

// optionalString 空白字符串视为未填写
func optionalString(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
