package internal

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseListParams(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  listParams
	}{
		{
			name:  "defaults",
			query: "",
			want:  listParams{limit: 50, offset: 0},
		},
		{
			name:  "explicit values",
			query: "limit=10&offset=30&q=laptop&sort=-created_at",
			want:  listParams{limit: 10, offset: 30, q: "laptop", sort: "-created_at"},
		},
		{
			name:  "limit capped at 200",
			query: "limit=9999",
			want:  listParams{limit: 200},
		},
		{
			name:  "garbage ignored",
			query: "limit=abc&offset=-5",
			want:  listParams{limit: 50, offset: 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/equipment?"+tt.query, nil)
			got := parseListParams(req)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildOrderBy(t *testing.T) {
	allowed := map[string]string{
		"id":         "e.id",
		"asset_tag":  "e.asset_tag",
		"created_at": "e.created_at",
	}

	tests := []struct {
		name string
		sort string
		want string
	}{
		{"empty falls back to id", "", " ORDER BY e.id ASC"},
		{"single column", "asset_tag", " ORDER BY e.asset_tag ASC"},
		{"descending", "-created_at", " ORDER BY e.created_at DESC"},
		{"multiple columns", "asset_tag,-created_at", " ORDER BY e.asset_tag ASC, e.created_at DESC"},
		{"unknown keys dropped", "password,asset_tag", " ORDER BY e.asset_tag ASC"},
		{"all unknown falls back", "password;drop table", " ORDER BY e.id ASC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, buildOrderBy(tt.sort, allowed))
		})
	}
}

func TestSendListResponse(t *testing.T) {
	w := httptest.NewRecorder()

	sendListResponse(w, []string{"a", "b"}, 42, listParams{limit: 2, offset: 10})

	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp listResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 42, resp.TotalCount)
	assert.Equal(t, 2, resp.Limit)
	assert.Equal(t, 10, resp.Offset)
}

func TestNullIfEmpty(t *testing.T) {
	assert.Nil(t, nullIfEmpty(nil))

	empty := "   "
	assert.Nil(t, nullIfEmpty(&empty))

	val := "hello"
	assert.Equal(t, "hello", nullIfEmpty(&val))
}
