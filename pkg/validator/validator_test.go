package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Namespace string   `json:"namespace" validate:"required,resourcename"`
	Tables    []string `json:"tables" validate:"dive,ident"`
	Key       string   `json:"key" validate:"omitempty,nowhitespace"`
}

func TestStruct(t *testing.T) {
	assert.NoError(t, Struct(&sample{Namespace: "team-a", Tables: []string{"orders", "_tmp1"}}))

	err := Struct(&sample{Namespace: "Team_A", Tables: []string{"1orders"}, Key: "a b"})
	require.Error(t, err)

	var verrs *ValidationErrors
	require.ErrorAs(t, err, &verrs)
	byField := verrs.ByField()
	assert.Contains(t, byField, "namespace")
	assert.Contains(t, byField, "tables[0]")
	assert.Contains(t, byField, "key")
}

func TestStructWithLang(t *testing.T) {
	errs := StructWithLang(&sample{}, LangZH)
	require.True(t, errs.HasErrors())
	assert.Equal(t, "namespace", errs.Errors[0].Field)
	assert.Equal(t, "required", errs.Errors[0].Tag)
	assert.Contains(t, errs.First(), "namespace")

	assert.Nil(t, StructWithLang(&sample{Namespace: "ok"}, LangEN))
}

func TestCustomMessages(t *testing.T) {
	errs := StructWithLang(&sample{Namespace: "x", Tables: []string{"a-b"}}, LangEN)
	require.NotNil(t, errs)
	assert.Contains(t, errs.First(), "must start with a letter or underscore")
}

func TestVar(t *testing.T) {
	assert.NoError(t, Var("orders_2024", TagIdent))
	assert.Error(t, Var("orders;drop", TagIdent))
	assert.Error(t, Var(string(make([]byte, 64)), TagResourceName))
}

func TestValidationErrorsNil(t *testing.T) {
	var v *ValidationErrors
	assert.Equal(t, "", v.Error())
	assert.False(t, v.HasErrors())
	assert.Equal(t, "", v.First())
	assert.Nil(t, v.ByField())
}
