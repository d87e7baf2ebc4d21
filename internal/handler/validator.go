package handler

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/jobtrail/internal/model"
)

// RequestValidator はgo-playground/validatorのタグでリクエストボディを検証する。
type RequestValidator struct {
	validate *validator.Validate
}

// NewRequestValidator はJSONタグ名をフィールド名として報告するRequestValidatorを生成する。
func NewRequestValidator() *RequestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &RequestValidator{validate: v}
}

// Validate は構造体を検証し、最初の違反をValidation APIErrorとして返す。
func (v *RequestValidator) Validate(i any) error {
	err := v.validate.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return model.NewValidationError(fe.Field(), describeTag(fe))
	}
	return fmt.Errorf("failed to validate request: %w", err)
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "必須です"
	case "max":
		return fmt.Sprintf("%s文字以内で入力してください", fe.Param())
	case "oneof":
		return fmt.Sprintf("%s のいずれかを指定してください", fe.Param())
	case "url", "http_url":
		return "URL形式で入力してください"
	case "datetime":
		return fmt.Sprintf("%s 形式で入力してください", fe.Param())
	default:
		return fmt.Sprintf("%s の条件を満たしていません", fe.Tag())
	}
}
