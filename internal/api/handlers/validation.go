package handlers

import (
	"regexp"

	"example.com/jonoshongjog/services/relief/internal/models"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9]{10,15}$`)

// RegisterValidations adds the custom binding rules to gin's validator
func RegisterValidations() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("unexpected gin validator engine")
	}
	if err := v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	}); err != nil {
		return errors.Wrap(err, "failed to register phone validation")
	}
	if err := v.RegisterValidation("lat", func(fl validator.FieldLevel) bool {
		f := fl.Field().Float()
		return f >= -90 && f <= 90
	}); err != nil {
		return errors.Wrap(err, "failed to register lat validation")
	}
	if err := v.RegisterValidation("lng", func(fl validator.FieldLevel) bool {
		f := fl.Field().Float()
		return f >= -180 && f <= 180
	}); err != nil {
		return errors.Wrap(err, "failed to register lng validation")
	}
	return nil
}

// PointBody is a coordinate in request bodies
type PointBody struct {
	Lat float64 `json:"lat" binding:"lat"`
	Lng float64 `json:"lng" binding:"lng"`
}

func (p *PointBody) point() *models.Point {
	if p == nil {
		return nil
	}
	return &models.Point{Lat: p.Lat, Lng: p.Lng}
}
