package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julianstephens/beaver/internal/api"
	"github.com/julianstephens/beaver/internal/auth"
	"github.com/julianstephens/beaver/internal/completion"
	"github.com/julianstephens/beaver/internal/storage/file"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type testApp struct {
	srv   *api.Server
	token string
}

func setupTestApp(t *testing.T) *testApp {
	t.Helper()
	store := file.New(filepath.Join(t.TempDir(), "users"))
	require.NoError(t, store.Init(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		store.Close(ctx)
	})

	engine, err := completion.NewEngine(64)
	require.NoError(t, err)
	issuer, err := auth.NewIssuer(testSecret)
	require.NoError(t, err)

	user, err := store.EnsureUser(context.Background(), "alice@example.com")
	require.NoError(t, err)
	token, err := issuer.GenerateToken(user, time.Hour)
	require.NoError(t, err)

	srv := api.New(store, engine, issuer, api.Config{FirstDayOfWeek: time.Monday})
	return &testApp{srv: srv, token: token}
}

func (a *testApp) do(t *testing.T, method, path string, body interface{}) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.token)

	resp, err := a.srv.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

func (a *testApp) createHabit(t *testing.T, name string) string {
	t.Helper()
	code, body := a.do(t, http.MethodPost, "/api/v1/habits", map[string]string{"name": name})
	require.Equal(t, http.StatusCreated, code, string(body))
	var created struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	require.NoError(t, json.Unmarshal(body, &created))
	require.NotEmpty(t, created.ID)
	return created.ID
}

func decode[T any](t *testing.T, body []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(body, &v), string(body))
	return v
}

func TestAuthRequired(t *testing.T) {
	a := setupTestApp(t)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic " + a.token},
		{"garbage token", "Bearer not-a-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/habits", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := a.srv.App().Test(req, -1)
			require.NoError(t, err)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	}
}

func TestHealth(t *testing.T) {
	a := setupTestApp(t)
	resp, err := a.srv.App().Test(httptest.NewRequest(http.MethodGet, "/health", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))
}

func TestListHabitsWithoutList(t *testing.T) {
	a := setupTestApp(t)
	code, body := a.do(t, http.MethodGet, "/api/v1/habits", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Contains(t, string(body), "error")
}

func TestCreateAndListHabits(t *testing.T) {
	a := setupTestApp(t)
	readID := a.createHabit(t, "Read")
	runID := a.createHabit(t, "  Run  ")

	code, body := a.do(t, http.MethodGet, "/api/v1/habits", nil)
	require.Equal(t, http.StatusOK, code)
	habits := decode[[]map[string]string](t, body)
	require.Len(t, habits, 2)
	assert.Equal(t, map[string]string{"id": readID, "name": "Read"}, habits[0])
	assert.Equal(t, map[string]string{"id": runID, "name": "Run"}, habits[1])

	code, _ = a.do(t, http.MethodPost, "/api/v1/habits", map[string]string{"name": "  "})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = a.do(t, http.MethodPost, "/api/v1/habits", map[string]string{"name": strings.Repeat("x", 131)})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = a.do(t, http.MethodGet, "/api/v1/habits?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestHabitDetailUpdateDelete(t *testing.T) {
	a := setupTestApp(t)
	id := a.createHabit(t, "Read")

	code, body := a.do(t, http.MethodGet, "/api/v1/habits/"+id, nil)
	require.Equal(t, http.StatusOK, code)
	detail := decode[map[string]interface{}](t, body)
	assert.Equal(t, "Read", detail["name"])
	assert.Equal(t, "active", detail["status"])
	assert.Equal(t, false, detail["star"])
	assert.Nil(t, detail["period"])
	assert.Equal(t, []interface{}{}, detail["records"])

	code, body = a.do(t, http.MethodPut, "/api/v1/habits/"+id, map[string]interface{}{
		"name":   "Run",
		"star":   true,
		"period": "2/1W",
		"tags":   []string{"health"},
	})
	require.Equal(t, http.StatusOK, code, string(body))
	detail = decode[map[string]interface{}](t, body)
	assert.Equal(t, "Run", detail["name"])
	assert.Equal(t, true, detail["star"])
	assert.Equal(t, []interface{}{"health"}, detail["tags"])
	assert.Equal(t, map[string]interface{}{"period_type": "W", "period_count": 1.0, "target_count": 2.0}, detail["period"])

	// A bad field rejects the whole update
	code, _ = a.do(t, http.MethodPut, "/api/v1/habits/"+id, map[string]interface{}{
		"name":   "Swim",
		"status": "bogus",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = a.do(t, http.MethodPut, "/api/v1/habits/"+id, map[string]interface{}{"period": "0/1W"})
	assert.Equal(t, http.StatusBadRequest, code)
	_, body = a.do(t, http.MethodGet, "/api/v1/habits/"+id, nil)
	assert.Equal(t, "Run", decode[map[string]interface{}](t, body)["name"])

	// Clearing the period
	code, body = a.do(t, http.MethodPut, "/api/v1/habits/"+id, map[string]interface{}{"period": nil})
	require.Equal(t, http.StatusOK, code)
	assert.Nil(t, decode[map[string]interface{}](t, body)["period"])

	code, body = a.do(t, http.MethodDelete, "/api/v1/habits/"+id, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "soft_delete", decode[map[string]interface{}](t, body)["status"])

	_, body = a.do(t, http.MethodGet, "/api/v1/habits", nil)
	assert.Empty(t, decode[[]map[string]string](t, body))
	_, body = a.do(t, http.MethodGet, "/api/v1/habits?status=soft_delete", nil)
	assert.Len(t, decode[[]map[string]string](t, body), 1)

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		code, _ = a.do(t, method, "/api/v1/habits/missing", map[string]string{})
		assert.Equal(t, http.StatusNotFound, code, method)
	}
}

func TestHabitsMeta(t *testing.T) {
	a := setupTestApp(t)
	first := a.createHabit(t, "Read")
	second := a.createHabit(t, "Run")

	code, body := a.do(t, http.MethodPut, "/api/v1/habits/meta", map[string]interface{}{
		"order": []string{second, first, "stale"},
	})
	require.Equal(t, http.StatusOK, code, string(body))
	want := map[string][]string{"order": {second, first, "stale"}}
	assert.Equal(t, want, decode[map[string][]string](t, body))

	code, body = a.do(t, http.MethodGet, "/api/v1/habits/meta", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, want, decode[map[string][]string](t, body))

	// A body without order leaves it unchanged
	_, body = a.do(t, http.MethodPut, "/api/v1/habits/meta", map[string]interface{}{})
	assert.Equal(t, want, decode[map[string][]string](t, body))
}

func TestCompletions(t *testing.T) {
	a := setupTestApp(t)
	id := a.createHabit(t, "Read")
	base := "/api/v1/habits/" + id + "/completions"

	for _, d := range []string{"03-01-2024", "01-01-2024", "02-01-2024"} {
		code, body := a.do(t, http.MethodPost, base, map[string]interface{}{"date": d, "done": true})
		require.Equal(t, http.StatusOK, code, string(body))
		resp := decode[map[string]interface{}](t, body)
		assert.Equal(t, d, resp["day"])
		assert.Equal(t, true, resp["done"])
	}
	code, _ := a.do(t, http.MethodPost, base, map[string]interface{}{"date": "06-01-2024", "done": false, "text": "sick"})
	require.Equal(t, http.StatusOK, code)

	tests := []struct {
		name  string
		query url.Values
		code  int
		want  []string
	}{
		{
			name: "defaults",
			code: http.StatusOK,
			want: []string{"01-01-2024", "02-01-2024", "03-01-2024"},
		},
		{
			name:  "descending with limit",
			query: url.Values{"sort": {"desc"}, "limit": {"2"}},
			code:  http.StatusOK,
			want:  []string{"03-01-2024", "02-01-2024"},
		},
		{
			name:  "range",
			query: url.Values{"date_start": {"02-01-2024"}, "date_end": {"05-01-2024"}},
			code:  http.StatusOK,
			want:  []string{"02-01-2024", "03-01-2024"},
		},
		{
			name:  "custom format",
			query: url.Values{"date_fmt": {"%Y-%m-%d"}, "limit": {"1"}},
			code:  http.StatusOK,
			want:  []string{"2024-01-01"},
		},
		{
			name:  "unknown days",
			query: url.Values{"status[]": {"UNKNOWN"}, "date_start": {"01-01-2024"}, "date_end": {"06-01-2024"}},
			code:  http.StatusOK,
			want:  []string{"04-01-2024", "05-01-2024", "06-01-2024"},
		},
		{
			name:  "several states",
			query: url.Values{"status": {"DONE", "UNKNOWN"}, "limit": {"0"}},
			code:  http.StatusOK,
			want:  []string{"01-01-2024", "02-01-2024", "03-01-2024", "04-01-2024", "05-01-2024", "06-01-2024"},
		},
		{name: "only start", query: url.Values{"date_start": {"01-01-2024"}}, code: http.StatusBadRequest},
		{name: "bad sort", query: url.Values{"sort": {"sideways"}}, code: http.StatusBadRequest},
		{name: "bad limit", query: url.Values{"limit": {"-1"}}, code: http.StatusBadRequest},
		{name: "bad status", query: url.Values{"status": {"MAYBE"}}, code: http.StatusBadRequest},
		{
			name:  "bad date",
			query: url.Values{"date_start": {"2024-01-01"}, "date_end": {"03-01-2024"}},
			code:  http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := base
			if len(tt.query) > 0 {
				path += "?" + tt.query.Encode()
			}
			code, body := a.do(t, http.MethodGet, path, nil)
			require.Equal(t, tt.code, code, string(body))
			if tt.code == http.StatusOK {
				assert.Equal(t, tt.want, decode[[]string](t, body))
			}
		})
	}
}

func TestCompletionsEmptyHabit(t *testing.T) {
	a := setupTestApp(t)
	id := a.createHabit(t, "Read")
	code, body := a.do(t, http.MethodGet, "/api/v1/habits/"+id+"/completions", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "[]", string(body))

	code, _ = a.do(t, http.MethodGet, "/api/v1/habits/missing/completions", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestCompletionsPeriodDone(t *testing.T) {
	a := setupTestApp(t)
	id := a.createHabit(t, "Gym")
	code, _ := a.do(t, http.MethodPut, "/api/v1/habits/"+id, map[string]interface{}{
		"period": map[string]interface{}{"period_type": "W", "period_count": 1, "target_count": 1},
	})
	require.Equal(t, http.StatusOK, code)

	code, _ = a.do(t, http.MethodPost, "/api/v1/habits/"+id+"/completions",
		map[string]interface{}{"date": "2024-01-03", "date_fmt": "%Y-%m-%d", "done": true})
	require.Equal(t, http.StatusOK, code)

	q := url.Values{
		"status":     {"PERIOD_DONE"},
		"date_start": {"01-01-2024"},
		"date_end":   {"14-01-2024"},
		"limit":      {"0"},
	}
	code, body := a.do(t, http.MethodGet, "/api/v1/habits/"+id+"/completions?"+q.Encode(), nil)
	require.Equal(t, http.StatusOK, code, string(body))
	days := decode[[]string](t, body)
	assert.Len(t, days, 7)
	assert.Equal(t, "01-01-2024", days[0])
	assert.Equal(t, "07-01-2024", days[6])
}

func TestCompletionsPeriodDoneWithoutRange(t *testing.T) {
	a := setupTestApp(t)
	id := a.createHabit(t, "Swim")
	code, _ := a.do(t, http.MethodPut, "/api/v1/habits/"+id, map[string]interface{}{"period": "2/1W"})
	require.Equal(t, http.StatusOK, code)

	for _, d := range []string{"14-05-2024", "16-05-2024"} {
		code, body := a.do(t, http.MethodPost, "/api/v1/habits/"+id+"/completions",
			map[string]interface{}{"date": d, "done": true})
		require.Equal(t, http.StatusOK, code, string(body))
	}

	code, body := a.do(t, http.MethodGet, "/api/v1/habits/"+id+"/completions?status=PERIOD_DONE&limit=0", nil)
	require.Equal(t, http.StatusOK, code, string(body))
	assert.Equal(t, []string{
		"13-05-2024", "14-05-2024", "15-05-2024", "16-05-2024",
		"17-05-2024", "18-05-2024", "19-05-2024",
	}, decode[[]string](t, body))
}

func TestPostCompletionErrors(t *testing.T) {
	a := setupTestApp(t)
	id := a.createHabit(t, "Read")
	base := "/api/v1/habits/" + id + "/completions"

	tests := []struct {
		name string
		path string
		body interface{}
		code int
	}{
		{"bad date", base, map[string]interface{}{"date": "2024-01-01", "done": true}, http.StatusBadRequest},
		{"missing done", base, map[string]interface{}{"date": "01-01-2024"}, http.StatusBadRequest},
		{"note too long", base, map[string]interface{}{"date": "01-01-2024", "done": true, "text": strings.Repeat("n", 300)}, http.StatusBadRequest},
		{"unknown habit", "/api/v1/habits/missing/completions", map[string]interface{}{"date": "01-01-2024", "done": true}, http.StatusNotFound},
		{"not json", base, "nope", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := a.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.code, code, string(body))
		})
	}

	code, body := a.do(t, http.MethodPost, base, map[string]interface{}{"date": "01-01-2024", "skipped": true})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, decode[map[string]interface{}](t, body)["skipped"])
}

func TestBatchCompletions(t *testing.T) {
	a := setupTestApp(t)
	id := a.createHabit(t, "Read")
	path := "/api/v1/habits/" + id + "/batch-completions"

	// One bad date applies nothing
	code, _ := a.do(t, http.MethodPost, path, map[string]interface{}{
		"completions": []map[string]interface{}{
			{"date": "01-01-2024", "done": true},
			{"date": "not a date", "done": true},
		},
	})
	require.Equal(t, http.StatusBadRequest, code)
	_, body := a.do(t, http.MethodGet, "/api/v1/habits/"+id, nil)
	assert.Equal(t, []interface{}{}, decode[map[string]interface{}](t, body)["records"])

	code, body = a.do(t, http.MethodPost, path, map[string]interface{}{
		"date_fmt": "%Y-%m-%d",
		"completions": []map[string]interface{}{
			{"date": "2024-01-01", "done": true},
			{"date": "2024-01-02", "done": false},
		},
	})
	require.Equal(t, http.StatusOK, code, string(body))
	resp := decode[map[string]interface{}](t, body)
	assert.Equal(t, id, resp["habit_id"])
	assert.Len(t, resp["updated"], 2)

	_, body = a.do(t, http.MethodGet, "/api/v1/habits/"+id+"/completions", nil)
	assert.Equal(t, []string{"01-01-2024"}, decode[[]string](t, body))
}

func TestListsAndExport(t *testing.T) {
	a := setupTestApp(t)
	id := a.createHabit(t, "Read")
	code, _ := a.do(t, http.MethodPost, "/api/v1/habits/"+id+"/completions", map[string]interface{}{"date": "01-01-2024", "done": true})
	require.Equal(t, http.StatusOK, code)

	code, body := a.do(t, http.MethodGet, "/api/v1/lists", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "[]", string(body))

	code, body = a.do(t, http.MethodGet, "/api/v1/export", nil)
	require.Equal(t, http.StatusOK, code)
	doc := decode[map[string]interface{}](t, body)
	habits, ok := doc["habits"].([]interface{})
	require.True(t, ok)
	require.Len(t, habits, 1)
	assert.Equal(t, "Read", habits[0].(map[string]interface{})["name"])

	code, body = a.do(t, http.MethodGet, "/api/v1/export?format=csv", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Date,Read\n2024-01-01,1\n", string(body))

	code, _ = a.do(t, http.MethodGet, "/api/v1/export?format=xml", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestImport(t *testing.T) {
	a := setupTestApp(t)
	id := a.createHabit(t, "Read")

	payload := map[string]interface{}{
		"habits": []map[string]interface{}{
			{"name": "read", "records": []map[string]interface{}{{"day": "2024-01-05", "done": true}}},
			{"name": "Walk", "records": []map[string]interface{}{}},
		},
	}
	code, body := a.do(t, http.MethodPost, "/api/v1/import", payload)
	require.Equal(t, http.StatusOK, code, string(body))
	assert.Equal(t, 2.0, decode[map[string]interface{}](t, body)["habits"])

	// The imported record landed on the existing habit
	_, body = a.do(t, http.MethodGet, "/api/v1/habits/"+id+"/completions?date_fmt=%25Y-%25m-%25d", nil)
	assert.Equal(t, []string{"2024-01-05"}, decode[[]string](t, body))

	code, _ = a.do(t, http.MethodPost, "/api/v1/import", map[string]interface{}{"habits": []interface{}{}})
	assert.Equal(t, http.StatusBadRequest, code)
}
