package validator

import (
	"regexp"
	"strings"
	"unicode"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
)

// Custom validation tags
const (
	TagIdent        = "ident"        // SQL identifier: letter or underscore, then alphanumerics/underscore
	TagResourceName = "resourcename" // DNS-1123 label used for descriptor namespace/name
	TagNoWhitespace = "nowhitespace" // No whitespace characters
)

var (
	identRegex        = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
	resourceNameRegex = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?$`)
)

func (v *Validator) registerCustomRules() {
	_ = v.validate.RegisterValidation(TagIdent, func(fl validator.FieldLevel) bool {
		return identRegex.MatchString(fl.Field().String())
	})
	_ = v.validate.RegisterValidation(TagResourceName, func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return len(s) <= 63 && resourceNameRegex.MatchString(s)
	})
	_ = v.validate.RegisterValidation(TagNoWhitespace, func(fl validator.FieldLevel) bool {
		return !strings.ContainsFunc(fl.Field().String(), unicode.IsSpace)
	})
}

func (v *Validator) registerCustomTranslations() {
	messages := map[string]map[string]string{
		LangEN: {
			TagIdent:        "{0} must start with a letter or underscore and contain only letters, numbers and underscores",
			TagResourceName: "{0} must be a lowercase DNS label (letters, numbers and '-', at most 63 characters)",
			TagNoWhitespace: "{0} must not contain whitespace characters",
		},
		LangZH: {
			TagIdent:        "{0}必须以字母或下划线开头，只能包含字母、数字和下划线",
			TagResourceName: "{0}必须是小写 DNS 标签（字母、数字和'-'，最多63个字符）",
			TagNoWhitespace: "{0}不能包含空白字符",
		},
	}

	for lang, m := range messages {
		trans := v.translator(lang)
		for tag, message := range m {
			registerTranslation(v.validate, trans, tag, message)
		}
	}
}

func registerTranslation(validate *validator.Validate, trans ut.Translator, tag, message string) {
	_ = validate.RegisterTranslation(tag, trans,
		func(ut ut.Translator) error {
			return ut.Add(tag, message, true)
		},
		func(ut ut.Translator, fe validator.FieldError) string {
			t, _ := ut.T(tag, fe.Field())
			return t
		},
	)
}
