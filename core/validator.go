package core

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

var nicknamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

func init() {
	validate.RegisterValidation("nickname", func(fl validator.FieldLevel) bool {
		return nicknamePattern.MatchString(fl.Field().String())
	})
}
