package school

import (
	"regexp"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/masomo-portal/core"
	"github.com/trezcool/masomo-portal/core/session"
)

var (
	slugTag   = "schoolslug"
	slugText  = "only lowercase letters, digits and dashes are allowed"
	slugRegex = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

	slugFreeTag  = "slugfree"
	slugFreeText = "this slug is reserved"
)

// School is a tenant, addressed in URLs by its Slug.
type School struct {
	ID        string    `json:"id"`
	Slug      string    `json:"slug"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

// NewSchool contains information needed to create a new School.
type NewSchool struct {
	Slug string `json:"slug" validate:"required,max=63,schoolslug,slugfree"`
	Name string `json:"name" validate:"required"`
}

func (ns *NewSchool) Validate(validate *validator.Validate) error {
	ns.Slug = core.CleanString(ns.Slug, true /* lower */)
	ns.Name = core.CleanString(ns.Name)
	return validate.Struct(ns)
}

// GetFilter selects a single School; the first non-empty field wins.
type GetFilter struct {
	ID   string
	Slug string
}

// InitValidators registers the school validators.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(slugTag, slugValidation)
	core.RegisterCustomTranslation(validate, translator, slugTag, slugText)

	_ = validate.RegisterValidation(slugFreeTag, slugFreeValidation)
	core.RegisterCustomTranslation(validate, translator, slugFreeTag, slugFreeText)
}

func slugValidation(fl validator.FieldLevel) bool {
	return slugRegex.MatchString(fl.Field().String())
}

// slugFreeValidation rejects slugs that portal paths reserve for roles & app pages.
func slugFreeValidation(fl validator.FieldLevel) bool {
	return !session.IsReservedSlug(fl.Field().String())
}
