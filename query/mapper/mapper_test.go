package mapper_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syurodev/system/query/mapper"
	"github.com/syurodev/system/query/sqlgen"
)

type base struct {
	ID        string    `db:"id" json:"id"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

type user struct {
	base
	Email    string  `db:"email" json:"email"`
	FullName *string `db:"full_name" json:"fullName"`
	Age      int     `db:"age" json:"age"`
	IsActive bool    `db:"is_active" json:"isActive"`
	Score    float64
	Ignored  string `db:"-"`
}

func TestResultMapper_MapToStruct(t *testing.T) {
	m := mapper.NewResultMapper()

	var u user
	err := m.MapToStruct(map[string]any{
		"id":         "u1",
		"created_at": "2024-05-01 10:00:00",
		"email":      "a@b.c",
		"full_name":  "Ann",
		"age":        int64(30),
		"is_active":  int64(1),
		"SCORE":      1.5,
		"Ignored":    "x",
	}, &u)
	require.NoError(t, err)

	assert.Equal(t, "u1", u.ID)
	assert.Equal(t, 2024, u.CreatedAt.Year())
	assert.Equal(t, "a@b.c", u.Email)
	require.NotNil(t, u.FullName)
	assert.Equal(t, "Ann", *u.FullName)
	assert.Equal(t, 30, u.Age)
	assert.True(t, u.IsActive)
	assert.Equal(t, 1.5, u.Score)
	assert.Empty(t, u.Ignored)
}

func TestResultMapper_JSONTagsForRecords(t *testing.T) {
	m := mapper.NewResultMapper()

	u, err := mapper.Map[user](m, map[string]any{"id": "u1", "createdAt": time.Unix(0, 0), "fullName": nil})
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
	assert.Nil(t, u.FullName)
}

func TestResultMapper_MapToStructSlice(t *testing.T) {
	m := mapper.NewResultMapper()
	rows := []map[string]any{{"id": "a"}, {"id": "b"}}

	var values []user
	require.NoError(t, m.MapToStructSlice(rows, &values))
	assert.Len(t, values, 2)

	var ptrs []*user
	require.NoError(t, m.MapToStructSlice(rows, &ptrs))
	assert.Equal(t, "b", ptrs[1].ID)

	assert.Error(t, m.MapToStructSlice(rows, values))
}

func TestResultMapper_Errors(t *testing.T) {
	m := mapper.NewResultMapper()

	var u user
	assert.Error(t, m.MapToStruct(map[string]any{"age": "old"}, &u))
	assert.Error(t, m.MapToStruct(map[string]any{}, u))
}

func TestStructToFields(t *testing.T) {
	name := "Ann"
	fields, err := mapper.StructToFields(&user{
		base:     base{ID: "u1"},
		Email:    "a@b.c",
		FullName: &name,
	}, true)
	require.NoError(t, err)

	assert.Equal(t, sqlgen.Fields{"id": "u1", "email": "a@b.c", "full_name": "Ann"}, fields)

	all, err := mapper.StructToFields(user{}, false)
	require.NoError(t, err)
	assert.Contains(t, all, "created_at")
	assert.Contains(t, all, "score")
	assert.Nil(t, all["full_name"])
	assert.NotContains(t, all, "Ignored")
}
