package http

import (
	"errors"
	"net/http"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const minPasswordLength = 10

var (
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9._]+$`)
	registerOnce    sync.Once
	registerErr     error
)

// fieldMessages cubre los codigos derivados de errores de validacion.
var fieldMessages = map[string]string{
	"EMAIL_REQUIRED":          "Please provide an email.",
	"INVALID_EMAIL":           "Please provide a valid email address.",
	"USERNAME_REQUIRED":       "Please provide a username.",
	"INVALID_USERNAME":        "Please enter only letters, numbers, dots, and underscores, up to 20 characters.",
	"PASSWORD_REQUIRED":       "Please provide a password.",
	"INVALID_PASSWORD":        "Your password must contain at least one uppercase letter, one lowercase letter, one number, and one special character!",
	"INVALID_PASSWORD_LENGTH": "Please choose a password that is at least 10 characters long.",
	"IDENTIFIER_REQUIRED":     "Please provide username or email.",
	"CODE_REQUIRED":           "Please provide a code.",
	"TOKEN_REQUIRED":          "Please provide a token.",
	"TYPE_REQUIRED":           "Please provide a type.",
	"INVALID_TYPE":            "Provided type is invalid.",
	"GRANT_TYPE_REQUIRED":     "Please provide a grant type.",
	"INVALID_GRANT_TYPE":      "Provided grant type is invalid.",
	"CLIENT_ID_REQUIRED":      "Please provide a client id.",
	"CLIENT_SECRET_REQUIRED":  "Please provide a client secret.",
	"REDIRECT_URL_REQUIRED":   "Please provide a redirect url.",
	"INVALID_URL":             "Please provide a valid url.",
	"SCOPES_REQUIRED":         "Please provide scopes.",
	"EMPTY_ARRAY":             "Array cannot be empty.",
	"REFRESH_TOKEN_REQUIRED":  "Please provide a refresh token.",
	"UUID_REQUIRED":           "Please provide a uuid.",
	"INVALID_UUID":            "Please provide a valid uuid.",
	codeInvalidInputData:      "Provided data are invalid.",
	codeInvalidRequest:        "Cannot process the request.",
}

// registerValidators instala las reglas propias en el validador de gin.
func registerValidators() error {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			registerErr = errors.New("unexpected validator engine")
			return
		}
		v.RegisterTagNameFunc(fieldName)
		if err := v.RegisterValidation("password", validatePassword); err != nil {
			registerErr = err
			return
		}
		registerErr = v.RegisterValidation("username", validateUsername)
	})
	return registerErr
}

func fieldName(f reflect.StructField) string {
	for _, tag := range []string{"json", "uri", "form"} {
		name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
		if name != "" && name != "-" {
			return name
		}
	}
	return f.Name
}

func validatePassword(fl validator.FieldLevel) bool {
	var upper, lower, digit, special bool
	for _, r := range fl.Field().String() {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r) || unicode.IsSpace(r):
			special = true
		}
	}
	return upper && lower && digit && special
}

func validateUsername(fl validator.FieldLevel) bool {
	return usernamePattern.MatchString(fl.Field().String())
}

// fieldErrorCode elige el codigo publico para una regla fallida.
func fieldErrorCode(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		code := strings.ToUpper(field) + "_REQUIRED"
		if field == "id" {
			code = "UUID_REQUIRED"
		}
		if _, ok := fieldMessages[code]; ok {
			return code
		}
	case "email":
		return "INVALID_EMAIL"
	case "username":
		return "INVALID_USERNAME"
	case "password":
		return "INVALID_PASSWORD"
	case "uuid", "uuid4":
		return "INVALID_UUID"
	case "url":
		return "INVALID_URL"
	case "oneof":
		if field == "grant_type" {
			return "INVALID_GRANT_TYPE"
		}
		return "INVALID_TYPE"
	case "min", "max":
		switch {
		case field == "password":
			return "INVALID_PASSWORD_LENGTH"
		case field == "username":
			return "INVALID_USERNAME"
		case fe.Kind() == reflect.Slice:
			return "EMPTY_ARRAY"
		}
	}
	return codeInvalidInputData
}

func validationItems(err error, location string) []errorItem {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []errorItem{newErrorItem(codeInvalidRequest, fieldMessages[codeInvalidRequest], nil)}
	}
	items := make([]errorItem, 0, len(verrs))
	for _, fe := range verrs {
		code := fieldErrorCode(fe)
		items = append(items, newErrorItem(code, fieldMessages[code], gin.H{
			"location": location,
			"path":     fe.Field(),
		}))
	}
	return items
}

// bindJSON vincula el body; ante error responde 400 con un item por campo.
func bindJSON(c *gin.Context, logger *zap.Logger, req any) bool {
	if err := c.ShouldBindBodyWith(req, binding.JSON); err != nil {
		logger.Debug("invalid request body", zap.String("path", c.FullPath()), zap.Error(err))
		respondErrors(c, http.StatusBadRequest, validationItems(err, "body")...)
		return false
	}
	return true
}

func bindURI(c *gin.Context, logger *zap.Logger, req any) bool {
	if err := c.ShouldBindUri(req); err != nil {
		logger.Debug("invalid request params", zap.String("path", c.FullPath()), zap.Error(err))
		respondErrors(c, http.StatusBadRequest, validationItems(err, "params")...)
		return false
	}
	return true
}
