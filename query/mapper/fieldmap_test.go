package mapper_test

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syurodev/system/query/executor"
	"github.com/syurodev/system/query/mapper"
	"github.com/syurodev/system/query/sqlgen"
)

func TestFieldNameMap_Normalize(t *testing.T) {
	m := mapper.DefaultFieldNames()

	nested := map[string]any{"user_id": "inner"}
	rec := m.Normalize(executor.RawRow{
		"id":         "s1",
		"user_id":    "u1",
		"expires_at": "2024-01-01",
		"metadata":   nested,
		"unknown":    1,
	})

	assert.Equal(t, mapper.Record{
		"id":        "s1",
		"userId":    "u1",
		"expiresAt": "2024-01-01",
		"metadata":  nested,
		"unknown":   1,
	}, rec)
	assert.Equal(t, "inner", rec["metadata"].(map[string]any)["user_id"], "nested keys are not renamed")
}

func TestFieldNameMap_NilAndScalars(t *testing.T) {
	m := mapper.DefaultFieldNames()

	assert.Nil(t, m.Normalize(nil))
	assert.Equal(t, 42, m.NormalizeValue(42))
	assert.Equal(t, "x", m.NormalizeValue("x"))
	assert.Nil(t, m.NormalizeValue(nil))
	assert.Equal(t, mapper.Record{"userId": 1}, m.NormalizeValue(map[string]any{"user_id": 1}))

	var none *mapper.FieldNameMap
	assert.Equal(t, "user_id", none.Field("user_id"))
	assert.Equal(t, mapper.Record{"user_id": 1}, none.Normalize(executor.RawRow{"user_id": 1}))
}

func TestFieldNameMap_RoundTrip(t *testing.T) {
	m := mapper.DefaultFieldNames()

	for _, p := range m.Pairs() {
		row := executor.RawRow(m.Denormalize(mapper.Record{p.Field: true, "plain": 1}))
		rec := m.Normalize(row)
		assert.Equal(t, mapper.Record{p.Field: true, "plain": 1}, rec, p.Column)
	}
}

func TestFieldNameMap_Aliases(t *testing.T) {
	m := mapper.DefaultFieldNames()

	assert.Equal(t, "accessTokenExpiresAt", m.Field("access_token_expiresat"))
	assert.Equal(t, "refreshTokenExpiresAt", m.Field("refresh_tokene_xpiresat"))
	assert.Equal(t, "credentialID", m.Field("credential_id"))
	assert.Equal(t, "access_token_expires_at", m.Column("accessTokenExpiresAt"), "aliases are never written")
}

func TestFieldNameMap_Conflicts(t *testing.T) {
	_, err := mapper.NewFieldNameMap([]mapper.Pair{
		{Column: "a_b", Field: "aB"},
		{Column: "a_b", Field: "ab"},
	}, nil)
	assert.ErrorIs(t, err, mapper.ErrConflictingName)

	_, err = mapper.NewFieldNameMap([]mapper.Pair{
		{Column: "a_b", Field: "aB"},
		{Column: "ab", Field: "aB"},
	}, nil)
	assert.ErrorIs(t, err, mapper.ErrConflictingName)

	_, err = mapper.NewFieldNameMap([]mapper.Pair{{Column: "a_b", Field: "aB"}}, map[string]string{"a_b": "x"})
	assert.ErrorIs(t, err, mapper.ErrConflictingName)
}

func TestFieldNameMap_Conditions(t *testing.T) {
	m := mapper.DefaultFieldNames()

	conds := []sqlgen.Condition{sqlgen.Where("userId", "u1"), sqlgen.Where("id", "s1")}
	got := m.Conditions(conds)
	assert.Equal(t, "user_id", got[0].Field)
	assert.Equal(t, "id", got[1].Field)
	assert.Equal(t, "userId", conds[0].Field, "input is not modified")
}

func TestLoadFieldNameMap(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/fields.yaml", []byte(`
defaults: true
fields:
  - column: order_total
    field: orderTotal
aliases:
  ordertotal: orderTotal
`), 0o644))

	m, err := mapper.LoadFieldNameMap(fs, "/etc/fields.yaml")
	require.NoError(t, err)
	assert.Equal(t, "orderTotal", m.Field("order_total"))
	assert.Equal(t, "orderTotal", m.Field("ordertotal"))
	assert.Equal(t, "userId", m.Field("user_id"))

	_, err = mapper.LoadFieldNameMap(fs, "/missing.yaml")
	assert.Error(t, err)

	_, err = mapper.ParseFieldNameMap([]byte("fields: [oops"))
	assert.Error(t, err)
}
