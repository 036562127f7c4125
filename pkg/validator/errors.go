package validator

import "strings"

// FieldError 是单个字段的校验失败。Field 取 json 标签名。
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message"`
}

// ValidationErrors 汇总一次校验的全部失败，作为 Errno 的 cause 返回给调用方。
type ValidationErrors struct {
	Errors []FieldError `json:"errors"`
}

// NewValidationError wraps a single failure.
func NewValidationError(field, tag, message string) *ValidationErrors {
	return &ValidationErrors{Errors: []FieldError{{Field: field, Tag: tag, Message: message}}}
}

func (v *ValidationErrors) Error() string {
	if !v.HasErrors() {
		return ""
	}
	msgs := make([]string, len(v.Errors))
	for i, fe := range v.Errors {
		msgs[i] = fe.Message
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// HasErrors reports whether any field failed.
func (v *ValidationErrors) HasErrors() bool {
	return v != nil && len(v.Errors) > 0
}

// First 返回第一条失败信息，无失败时为空串。
func (v *ValidationErrors) First() string {
	if !v.HasErrors() {
		return ""
	}
	return v.Errors[0].Message
}

// ByField groups messages by field; nil when there is nothing to report.
func (v *ValidationErrors) ByField() map[string][]string {
	if !v.HasErrors() {
		return nil
	}
	out := make(map[string][]string, len(v.Errors))
	for _, fe := range v.Errors {
		out[fe.Field] = append(out[fe.Field], fe.Message)
	}
	return out
}
