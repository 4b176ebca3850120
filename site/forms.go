package site

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"inkblog/apperr"
	"inkblog/constants"
	"inkblog/views"

	"github.com/go-playground/validator/v10"
)

type registerForm struct {
	Email    string `form:"email" validate:"required,email,emaillen"`
	Password string `form:"password" validate:"required,passwordlen" trim:"false"`
	Name     string `form:"name" validate:"required,namelen"`
}

type loginForm struct {
	Email    string `form:"email" validate:"required,email,emaillen"`
	Password string `form:"password" validate:"required" trim:"false"`
}

type postForm struct {
	Title    string `form:"title" validate:"required,titlelen"`
	Subtitle string `form:"subtitle" validate:"required,titlelen"`
	ImgURL   string `form:"img_url" validate:"required,url,urllen"`
	Body     string `form:"body" validate:"required"`
}

type commentForm struct {
	Body string `form:"body" validate:"required,commentlen"`
}

type contactForm struct {
	Name    string `form:"name" validate:"required,namelen"`
	Email   string `form:"email" validate:"required,email,emaillen"`
	Phone   string `form:"phone" validate:"max=50"`
	Message string `form:"message" validate:"required,messagelen"`
}

// maxBytes bounds the encoded length of a string, where max counts characters.
func maxBytes(fl validator.FieldLevel) bool {
	n, err := strconv.Atoi(fl.Param())
	return err == nil && len(fl.Field().String()) <= n
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("maxbytes", maxBytes); err != nil {
		panic(err)
	}
	for alias, max := range map[string]int{
		"titlelen":   constants.MAX_TITLE_LENGTH,
		"namelen":    constants.MAX_NAME_LENGTH,
		"emaillen":   constants.MAX_EMAIL_LENGTH,
		"urllen":     constants.MAX_URL_LENGTH,
		"commentlen": constants.MAX_COMMENT_LENGTH,
		"messagelen": constants.MAX_MESSAGE_LENGTH,
	} {
		v.RegisterAlias(alias, fmt.Sprintf("max=%d", max))
	}
	v.RegisterAlias("passwordlen", fmt.Sprintf("maxbytes=%d", constants.MAX_PASSWORD_LENGTH))
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("form"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeForm copies posted values into the string fields of dst named by their form tag.
func decodeForm(r *http.Request, dst any) error {
	if err := r.ParseForm(); err != nil {
		return err
	}
	rv := reflect.ValueOf(dst).Elem()
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		name := field.Tag.Get("form")
		if name == "" || field.Type.Kind() != reflect.String {
			continue
		}
		value := r.PostForm.Get(name)
		if field.Tag.Get("trim") != "false" {
			value = strings.TrimSpace(value)
		}
		rv.Field(i).SetString(value)
	}
	return nil
}

// formState turns a decoded form back into values for re-rendering.
func formState(src any) views.FormState {
	state := views.NewFormState()
	rv := reflect.Indirect(reflect.ValueOf(src))
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		if name := rt.Field(i).Tag.Get("form"); name != "" {
			state.Values[name] = rv.Field(i).String()
		}
	}
	return state
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.ActualTag() {
	case "required":
		return "This field is required."
	case "email":
		return "Invalid email address."
	case "url":
		return "Invalid URL."
	case "max":
		return fmt.Sprintf("Must be at most %s characters.", fe.Param())
	case "maxbytes":
		return fmt.Sprintf("Must be at most %s bytes.", fe.Param())
	default:
		return "Invalid value."
	}
}

// validateForm checks dst against its validate tags. Field errors come back as an
// *apperr.ValidationError keyed by form field name.
func (s *Server) validateForm(dst any) error {
	err := s.validate.Struct(dst)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	ve := &apperr.ValidationError{Fields: map[string]string{}}
	for _, fe := range fieldErrs {
		ve.Fields[fe.Field()] = fieldMessage(fe)
	}
	return ve
}

// withErrors copies field errors from err onto state, if err is a validation error.
func withErrors(state views.FormState, err error) views.FormState {
	var ve *apperr.ValidationError
	if errors.As(err, &ve) {
		for k, v := range ve.Fields {
			state.Errors[k] = v
		}
	}
	return state
}
