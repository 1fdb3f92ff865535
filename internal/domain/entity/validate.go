package entity

import (
	"errors"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	apperrors "novel2video/pkg/errors"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate 按结构体标签校验模型输出，失败即为契约违例
func Validate(v any) error {
	err := validatorInstance().Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fe.Namespace()+":"+fe.Tag())
		}
		return apperrors.ErrSchemaViolation.WithDetail(strings.Join(fields, ", "))
	}
	return apperrors.ErrSchemaViolation.WithError(err)
}
