// internal/app/system/inputval/inputval.go
package inputval

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/dalemusser/handspm/internal/domain/models"
	"github.com/go-playground/validator/v10"
)

// Error is a user-facing validation failure. Handlers map it to 400.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string { return e.Message }

// New returns a validation error for field.
func New(field, format string, args ...interface{}) error {
	return &Error{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a validation error.
func IsValidation(err error) bool {
	var ve *Error
	return errors.As(err, &ve)
}

// FieldError is one failed rule.
type FieldError struct {
	Field   string
	Message string
}

// Result collects every failed rule of a Validate call.
type Result struct {
	Errors []FieldError
}

// HasErrors reports whether any rule failed.
func (r *Result) HasErrors() bool { return len(r.Errors) > 0 }

// First returns the first message, or "".
func (r *Result) First() string {
	if len(r.Errors) == 0 {
		return ""
	}
	return r.Errors[0].Message
}

// All joins every message with "; ".
func (r *Result) All() string {
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Message)
	}
	return strings.Join(msgs, "; ")
}

// Err returns the first failure as *Error, or nil.
func (r *Result) Err() error {
	if !r.HasErrors() {
		return nil
	}
	return &Error{Field: r.Errors[0].Field, Message: r.Errors[0].Message}
}

var (
	once sync.Once
	v    *validator.Validate
)

func instance() *validator.Validate {
	once.Do(func() {
		v = validator.New()
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			if l := f.Tag.Get("label"); l != "" {
				return l
			}
			return f.Name
		})
		_ = v.RegisterValidation("department", oneOf(models.Departments))
		_ = v.RegisterValidation("voucherreason", oneOf(models.VoucherReasons))
		_ = v.RegisterValidation("memberchangetype", oneOf(models.MemberChangeTypes))
		_ = v.RegisterValidation("role", func(fl validator.FieldLevel) bool {
			return models.IsValidRole(fl.Field().String())
		})
		_ = v.RegisterValidation("urgency", func(fl validator.FieldLevel) bool {
			return models.IsValidUrgency(fl.Field().String())
		})
		_ = v.RegisterValidation("projectstatus", func(fl validator.FieldLevel) bool {
			return models.IsValidProjectStatus(fl.Field().String())
		})
		_ = v.RegisterValidation("date", func(fl validator.FieldLevel) bool {
			_, err := time.Parse(models.DateLayout, fl.Field().String())
			return err == nil
		})
	})
	return v
}

func oneOf(allowed []string) validator.Func {
	return func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		for _, a := range allowed {
			if a == s {
				return true
			}
		}
		return false
	}
}

// Validate runs the `validate` struct tags of s. Field names in messages
// come from the `label` tag.
func Validate(s interface{}) *Result {
	res := &Result{}
	err := instance().Struct(s)
	if err == nil {
		return res
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		res.Errors = append(res.Errors, FieldError{Message: err.Error()})
		return res
	}
	for _, fe := range verrs {
		res.Errors = append(res.Errors, FieldError{Field: fe.StructField(), Message: message(fe)})
	}
	return res
}

func message(fe validator.FieldError) string {
	label := fe.Field()
	switch fe.Tag() {
	case "required":
		return label + "為必填"
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s至少需 %s 個字元", label, fe.Param())
		}
		return fmt.Sprintf("%s必須大於或等於 %s", label, fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s最多 %s 個字元", label, fe.Param())
		}
		return fmt.Sprintf("%s必須小於或等於 %s", label, fe.Param())
	case "gt":
		return fmt.Sprintf("%s必須大於 %s", label, fe.Param())
	case "email":
		return "請輸入有效的電子郵件"
	case "date":
		return label + "格式須為 YYYY-MM-DD"
	}
	return label + "格式不正確"
}

// IsValidEmail reports whether s is a plain addr-spec email address.
func IsValidEmail(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	return instance().Var(s, "email") == nil
}
