// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entranslations "github.com/go-playground/validator/v10/translations/en"
	"github.com/samber/oops"

	"github.com/holomush/accountd/internal/account"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

type registerRequest struct {
	Name     string `json:"name" validate:"required,handle"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,password"`
}

type loginRequest struct {
	Name     string `json:"name" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,password"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type resetPasswordRequest struct {
	NewPassword string `json:"newPassword" validate:"required,password"`
}

// requestValidator checks request DTOs and renders failures in English.
type requestValidator struct {
	validate *validator.Validate
	trans    ut.Translator
}

func newRequestValidator() (*requestValidator, error) {
	locale := en.New()
	trans, _ := ut.New(locale, locale).GetTranslator("en")

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	if err := entranslations.RegisterDefaultTranslations(v, trans); err != nil {
		return nil, oops.Code("HTTP_VALIDATOR_FAILED").Wrap(err)
	}

	rules := []struct {
		tag   string
		check func(string) error
		text  string
	}{
		{"handle", account.ValidateHandle, "{0} must be 3-30 letters, numbers or underscores and start with a letter"},
		{"password", account.ValidatePassword, fmt.Sprintf("{0} must be at most %d bytes", account.MaxPasswordBytes)},
	}
	for _, rule := range rules {
		if err := registerRule(v, trans, rule.tag, rule.check, rule.text); err != nil {
			return nil, oops.Code("HTTP_VALIDATOR_FAILED").With("tag", rule.tag).Wrap(err)
		}
	}

	return &requestValidator{validate: v, trans: trans}, nil
}

// registerRule adds a validation tag backed by an account policy check,
// with its English message.
func registerRule(v *validator.Validate, trans ut.Translator, tag string, check func(string) error, text string) error {
	if err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		return check(fl.Field().String()) == nil
	}); err != nil {
		return err
	}
	return v.RegisterTranslation(tag, trans,
		func(t ut.Translator) error {
			return t.Add(tag, text, true)
		},
		func(t ut.Translator, fe validator.FieldError) string {
			msg, _ := t.T(tag, fe.Field())
			return msg
		},
	)
}

// check returns translated field errors, or nil when s is valid.
func (rv *requestValidator) check(s any) map[string]string {
	err := rv.validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"": err.Error()}
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Translate(rv.trans)
	}
	return fields
}

// bind decodes the JSON body into dst and validates it. On failure it writes
// a 400 response and returns false.
func (rv *requestValidator) bind(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, msgInvalidBody, nil)
		return false
	}
	if fields := rv.check(dst); fields != nil {
		respondError(w, http.StatusBadRequest, msgValidationFailed, fields)
		return false
	}
	return true
}
