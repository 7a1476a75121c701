package actions

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entranslations "github.com/go-playground/validator/v10/translations/en"

	"github.com/xynes/accounts-service/pkg/apperr"
)

// Slug must be lowercase alphanumeric and hyphens only, 2-64 chars.
var slugRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,63}$`)

var (
	validate = validator.New()
	trans, _ = ut.New(en.New(), en.New()).GetTranslator("en")
)

func init() {
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	if err := entranslations.RegisterDefaultTranslations(validate, trans); err != nil {
		panic(fmt.Sprintf("register default translations: %v", err))
	}
	if err := validate.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return slugRegex.MatchString(fl.Field().String())
	}); err != nil {
		panic(fmt.Sprintf("register slug validation: %v", err))
	}
	if err := validate.RegisterTranslation("slug", trans,
		func(t ut.Translator) error {
			return t.Add("slug", "{0} must be 2-64 lowercase letters, numbers or hyphens", true)
		},
		func(t ut.Translator, fe validator.FieldError) string {
			msg, _ := t.T("slug", fe.Field())
			return msg
		},
	); err != nil {
		panic(fmt.Sprintf("register slug translation: %v", err))
	}
}

// Normalizer is implemented by payloads that clean their fields (trimming,
// case folding) before validation.
type Normalizer interface {
	Normalize()
}

// Decode strictly decodes raw into dst and validates it. A null or absent
// payload is treated as an empty object; unknown fields are rejected.
func Decode(raw json.RawMessage, dst interface{}) error {
	body := bytes.TrimSpace(raw)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		body = []byte("{}")
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return invalidPayload(decodeIssue(err))
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return invalidPayload(apperr.Issue{Path: []string{}, Message: "unexpected data after payload", Code: "invalid_json"})
	}

	if n, ok := dst.(Normalizer); ok {
		n.Normalize()
	}

	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return apperr.Wrap(apperr.KindInternal, "Payload schema is invalid", err)
		}
		issues := make([]apperr.Issue, 0, len(verrs))
		for _, fe := range verrs {
			issues = append(issues, apperr.Issue{
				Path:    fieldPath(fe.Namespace()),
				Message: fe.Translate(trans),
				Code:    fe.Tag(),
			})
		}
		return invalidPayload(issues...)
	}
	return nil
}

func invalidPayload(issues ...apperr.Issue) error {
	return apperr.WithDetails(apperr.KindValidation, "Payload validation failed", &apperr.Details{Issues: issues})
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) []string {
	parts := strings.Split(ns, ".")
	if len(parts) <= 1 {
		return []string{}
	}
	return parts[1:]
}

func decodeIssue(err error) apperr.Issue {
	var typeErr *json.UnmarshalTypeError
	var syntaxErr *json.SyntaxError
	switch {
	case errors.As(err, &typeErr):
		path := []string{}
		if typeErr.Field != "" {
			path = strings.Split(typeErr.Field, ".")
		}
		return apperr.Issue{
			Path:    path,
			Message: fmt.Sprintf("expected %s, received %s", jsonKind(typeErr.Type), typeErr.Value),
			Code:    "invalid_type",
		}
	case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
		return apperr.Issue{Path: []string{}, Message: "payload is not valid JSON", Code: "invalid_json"}
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		field := strings.Trim(strings.TrimPrefix(err.Error(), "json: unknown field "), `"`)
		return apperr.Issue{Path: []string{}, Message: "Unrecognized key: " + field, Code: "unrecognized_keys"}
	default:
		return apperr.Issue{Path: []string{}, Message: err.Error(), Code: "invalid_payload"}
	}
}

func jsonKind(t reflect.Type) string {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Struct, reflect.Map:
		return "object"
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return "number"
	default:
		return t.String()
	}
}

// Empty is the payload of actions that take no input. Any field is rejected.
type Empty struct{}

// ValidVar reports whether value satisfies the validator tag.
func ValidVar(value interface{}, tag string) bool {
	return validate.Var(value, tag) == nil
}
