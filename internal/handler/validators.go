package handler

import (
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/flicky/coffeeshop/internal/model"
)

var registerOnce sync.Once

// RegisterValidators teaches gin's validator the grind and weight tags used by
// the catalog and cart payloads.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("grind", func(fl validator.FieldLevel) bool {
			return model.IsKnownGrindType(fl.Field().String())
		})
		_ = v.RegisterValidation("weight", func(fl validator.FieldLevel) bool {
			return model.IsKnownWeight(fl.Field().String())
		})
	})
}
