package profile

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"

	"github.com/streamcatch/streamcatch/internal/catalog"
	"github.com/streamcatch/streamcatch/internal/identity"
	"github.com/streamcatch/streamcatch/internal/session"
	"github.com/streamcatch/streamcatch/internal/web"
)

type fakeUpdater struct {
	calls int
	data  map[string]any
	err   error
}

func (f *fakeUpdater) UpdateUser(ctx context.Context, data map[string]any) (*session.User, error) {
	f.calls++
	f.data = data
	if f.err != nil {
		return nil, f.err
	}
	st := session.FromContext(ctx)
	st.Session.User.DisplayName, _ = data["display_name"].(string)
	return &st.Session.User, nil
}

type testEnv struct {
	handler *Handler
	mock    pgxmock.PgxPoolIface
	updater *fakeUpdater
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("create pgxmock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	renderer, err := web.NewRenderer(nil)
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}
	u := &fakeUpdater{}
	return &testEnv{handler: NewHandler(catalog.New(mock), u, renderer), mock: mock, updater: u}
}

func withUser(r *http.Request) *http.Request {
	s := &session.Session{
		ID:          "s1",
		AccessToken: "access-token",
		User:        session.User{ID: "user-1", Email: "ann@example.com", DisplayName: "Ann"},
		Device:      "Firefox on Linux",
		Country:     "DE",
	}
	return r.WithContext(session.WithState(r.Context(), session.State{Session: s, User: &s.User}))
}

func expectAppUser(mock pgxmock.PgxPoolIface) {
	name := "Ann"
	mock.ExpectQuery(regexp.QuoteMeta(`FROM app_users WHERE id = $1`)).
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "display_name", "status", "created_at"}).
			AddRow("user-1", &name, "active", time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC)))
}

func post(name string, accept string) *http.Request {
	form := url.Values{"display_name": {name}}
	req := httptest.NewRequest(http.MethodPost, "/profile", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	return withUser(req)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) View {
	t.Helper()
	var v View
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func TestShow(t *testing.T) {
	env := newTestEnv(t)
	expectAppUser(env.mock)
	rec := httptest.NewRecorder()

	env.handler.Show(rec, withUser(httptest.NewRequest(http.MethodGet, "/profile", nil)))

	body := rec.Body.String()
	for _, want := range []string{"ann@example.com", `value="Ann"`, "November 3, 2025", "Firefox on Linux", "(DE)"} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in body", want)
		}
	}
}

func TestShow_MissingAppUser(t *testing.T) {
	env := newTestEnv(t)
	env.mock.ExpectQuery(regexp.QuoteMeta(`FROM app_users`)).
		WithArgs("user-1").
		WillReturnError(pgx.ErrNoRows)
	rec := httptest.NewRecorder()
	req := withUser(httptest.NewRequest(http.MethodGet, "/profile", nil))
	req.Header.Set("Accept", "application/json")

	env.handler.Show(rec, req)

	v := decode(t, rec)
	if v.Email != "ann@example.com" || v.Status != "" || v.Error != "" {
		t.Errorf("unexpected view %+v", v)
	}
}

func TestUpdate_Success(t *testing.T) {
	env := newTestEnv(t)
	expectAppUser(env.mock)
	rec := httptest.NewRecorder()

	env.handler.Update(rec, post("  Annie  ", "application/json"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	v := decode(t, rec)
	if v.Success != "Profile updated successfully" || v.DisplayName != "Annie" {
		t.Errorf("unexpected view %+v", v)
	}
	if env.updater.data["display_name"] != "Annie" {
		t.Errorf("expected trimmed display name sent, got %v", env.updater.data)
	}
}

func TestUpdate_NavFollowsNewName(t *testing.T) {
	env := newTestEnv(t)
	expectAppUser(env.mock)
	rec := httptest.NewRecorder()

	env.handler.Update(rec, post("Zed", ""))

	if !strings.Contains(rec.Body.String(), `class="avatar"`) || !strings.Contains(rec.Body.String(), ">Z<") {
		t.Error("expected navbar initial of the updated name")
	}
}

func TestUpdate_ProviderError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"provider message", &identity.Error{StatusCode: 422, Message: "Display name is reserved"}, "Display name is reserved"},
		{"no message", errors.New("connection reset"), "Failed to update profile"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.updater.err = tt.err
			expectAppUser(env.mock)
			rec := httptest.NewRecorder()

			env.handler.Update(rec, post("Annie", "application/json"))

			v := decode(t, rec)
			if v.Error != tt.want || v.Success != "" {
				t.Errorf("unexpected view %+v", v)
			}
			if v.DisplayName != "Annie" {
				t.Errorf("expected input preserved, got %q", v.DisplayName)
			}
		})
	}
}

func TestUpdate_TooLong(t *testing.T) {
	env := newTestEnv(t)
	expectAppUser(env.mock)
	rec := httptest.NewRecorder()

	env.handler.Update(rec, post(strings.Repeat("a", 101), "application/json"))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if env.updater.calls != 0 {
		t.Error("provider must not be called for invalid input")
	}
}
