package echoapi

import (
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/masomo-portal/core"
	"github.com/trezcool/masomo-portal/core/auth"
	"github.com/trezcool/masomo-portal/core/user"
)

type (
	LoginRequest struct {
		Role  string `json:"role" validate:"required,userrole"`
		Email string `json:"email" validate:"omitempty,email"`
		Code  string `json:"code"`
	}

	LoginResponse struct {
		User     user.User `json:"user"`
		Redirect string    `json:"redirect"`
	}

	ValidateResponse struct {
		IsValid bool       `json:"isValid"`
		User    *user.User `json:"user"`
		Error   string     `json:"error,omitempty"`
	}

	RedirectResponse struct {
		Redirect string `json:"redirect"`
	}

	DashboardResponse struct {
		School string    `json:"school"`
		Role   string    `json:"role"`
		Page   string    `json:"page"`
		User   user.User `json:"user"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Role = core.CleanString(lr.Role, true /* lower */)
	lr.Email = core.CleanString(lr.Email, true /* lower */)
	lr.Code = user.NormalizeAccessCode(lr.Code)
	if err := validate.Struct(lr); err != nil {
		return err
	}

	fld, missing := "email", lr.Email == ""
	if user.UsesAccessCode(lr.Role) {
		fld, missing = "code", lr.Code == ""
	}
	if missing {
		return core.NewValidationError(nil, core.FieldError{Field: fld, Error: "this field is required"})
	}
	return nil
}

func (lr LoginRequest) Credentials(schoolSlug string) auth.Credentials {
	return auth.Credentials{SchoolSlug: schoolSlug, Role: lr.Role, Email: lr.Email, Code: lr.Code}
}
