package handler

import (
	"sync"

	"github.com/SergeiKhy/rentcard-share/internal/models"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var registerOnce sync.Once

// registerValidators регистрирует теги доменных перечислений в валидаторе gin
func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("channel", func(fl validator.FieldLevel) bool {
			return models.Channel(fl.Field().String()).Valid()
		})
		_ = v.RegisterValidation("viewsource", func(fl validator.FieldLevel) bool {
			return models.ViewSource(fl.Field().String()).Valid()
		})
		_ = v.RegisterValidation("resourcetype", func(fl validator.FieldLevel) bool {
			return models.ResourceType(fl.Field().String()).Valid()
		})
		_ = v.RegisterValidation("viewaction", func(fl validator.FieldLevel) bool {
			return models.ViewAction(fl.Field().String()).Valid()
		})
		_ = v.RegisterValidation("intereststatus", func(fl validator.FieldLevel) bool {
			return models.InterestStatus(fl.Field().String()).Valid()
		})
	})
}
