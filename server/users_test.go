package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/onnwee/chat-moderator/backend/db"
)

type fakeUserLists struct {
	mu           sync.Mutex
	friends      []string
	undesirables map[string]string
	err          error
	lastQuery    string
}

func (f *fakeUserLists) AddFriend(_ context.Context, identity string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	for _, id := range f.friends {
		if id == identity {
			return false, nil
		}
	}
	delete(f.undesirables, identity)
	f.friends = append(f.friends, identity)
	return true, nil
}

func (f *fakeUserLists) AddUndesirable(_ context.Context, identity, reason string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	if f.undesirables == nil {
		f.undesirables = map[string]string{}
	}
	if _, ok := f.undesirables[identity]; ok {
		return false, nil
	}
	f.undesirables[identity] = reason
	return true, nil
}

func (f *fakeUserLists) RemoveFriend(_ context.Context, identity string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, id := range f.friends {
		if id == identity {
			f.friends = append(f.friends[:i], f.friends[i+1:]...)
			return true, nil
		}
	}
	return false, f.err
}

func (f *fakeUserLists) RemoveUndesirable(_ context.Context, identity string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.undesirables[identity]
	delete(f.undesirables, identity)
	return ok, f.err
}

func (f *fakeUserLists) Friends(context.Context) ([]db.ListedUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []db.ListedUser
	for _, id := range f.friends {
		out = append(out, db.ListedUser{Identity: id})
	}
	return out, f.err
}

func (f *fakeUserLists) Undesirables(context.Context) ([]db.ListedUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []db.ListedUser
	for id, reason := range f.undesirables {
		out = append(out, db.ListedUser{Identity: id, Reason: reason})
	}
	return out, f.err
}

func (f *fakeUserLists) SearchUsers(_ context.Context, q string) ([]db.UserMatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQuery = q
	var out []db.UserMatch
	for _, id := range f.friends {
		if strings.Contains(id, q) {
			out = append(out, db.UserMatch{Identity: id, Friend: true})
		}
	}
	return out, f.err
}

func noAdminAuth(t *testing.T) {
	t.Helper()
	t.Setenv("ADMIN_TOKEN", "")
	t.Setenv("ADMIN_USERNAME", "")
	t.Setenv("ADMIN_PASSWORD", "")
}

func TestAdminUsersLists(t *testing.T) {
	noAdminAuth(t)
	users := &fakeUserLists{}
	h := newTestMux(t, Deps{Pipeline: &fakeStatus{}, Users: users})

	post := func(path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		return serve(h, req)
	}

	rr := post("/admin/users/friends", `{"identity":"alice"}`)
	if rr.Code != http.StatusOK || strings.TrimSpace(rr.Body.String()) != `{"added":true}` {
		t.Fatalf("add friend: code=%d body=%s", rr.Code, rr.Body.String())
	}
	rr = post("/admin/users/friends", `{"identity":"alice"}`)
	if strings.TrimSpace(rr.Body.String()) != `{"added":false}` {
		t.Errorf("duplicate add body = %s", rr.Body.String())
	}
	rr = post("/admin/users/undesirables", `{"identity":"troll","reason":"spam"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("add undesirable code = %d", rr.Code)
	}
	if users.undesirables["troll"] != "spam" {
		t.Errorf("undesirables = %v", users.undesirables)
	}

	rr = serve(h, httptest.NewRequest(http.MethodGet, "/admin/users/undesirables", nil))
	var listed struct {
		Undesirables []db.ListedUser `json:"undesirables"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&listed); err != nil {
		t.Fatal(err)
	}
	if len(listed.Undesirables) != 1 || listed.Undesirables[0].Identity != "troll" || listed.Undesirables[0].Reason != "spam" {
		t.Errorf("undesirables = %+v", listed.Undesirables)
	}

	rr = serve(h, httptest.NewRequest(http.MethodDelete, "/admin/users/friends/alice", nil))
	if strings.TrimSpace(rr.Body.String()) != `{"removed":true}` {
		t.Errorf("remove body = %s", rr.Body.String())
	}
	rr = serve(h, httptest.NewRequest(http.MethodGet, "/admin/users/friends", nil))
	if body := strings.TrimSpace(rr.Body.String()); body != `{"friends":[]}` {
		t.Errorf("empty friends body = %s", body)
	}
}

func TestAdminUsersBadRequests(t *testing.T) {
	noAdminAuth(t)
	h := newTestMux(t, Deps{Pipeline: &fakeStatus{}, Users: &fakeUserLists{}})
	tests := []struct {
		name     string
		method   string
		path     string
		body     string
		wantCode int
	}{
		{"missing identity", http.MethodPost, "/admin/users/friends", `{"identity":"  "}`, http.StatusBadRequest},
		{"invalid json", http.MethodPost, "/admin/users/undesirables", `{`, http.StatusBadRequest},
		{"delete without identity", http.MethodDelete, "/admin/users/friends", "", http.StatusMethodNotAllowed},
		{"post with identity", http.MethodPost, "/admin/users/friends/alice", `{}`, http.StatusMethodNotAllowed},
		{"unknown list", http.MethodGet, "/admin/users/enemies", "", http.StatusNotFound},
		{"search without query", http.MethodGet, "/admin/users/search", "", http.StatusBadRequest},
		{"search wrong method", http.MethodPost, "/admin/users/search?q=a", "", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(h, httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body)))
			if rr.Code != tt.wantCode {
				t.Errorf("code = %d, want %d, body=%s", rr.Code, tt.wantCode, rr.Body.String())
			}
		})
	}
}

func TestAdminUsersSearch(t *testing.T) {
	noAdminAuth(t)
	users := &fakeUserLists{friends: []string{"bobby", "carla"}}
	h := newTestMux(t, Deps{Pipeline: &fakeStatus{}, Users: users})
	rr := serve(h, httptest.NewRequest(http.MethodGet, "/admin/users/search?q=bob", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("code = %d", rr.Code)
	}
	var resp struct {
		Users []db.UserMatch `json:"users"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if users.lastQuery != "bob" || len(resp.Users) != 1 || resp.Users[0].Identity != "bobby" || !resp.Users[0].Friend {
		t.Errorf("query=%q users=%+v", users.lastQuery, resp.Users)
	}
}

func TestAdminUsersStoreFailure(t *testing.T) {
	noAdminAuth(t)
	h := newTestMux(t, Deps{Pipeline: &fakeStatus{}, Users: &fakeUserLists{err: errors.New("connection refused")}})
	rr := serve(h, httptest.NewRequest(http.MethodGet, "/admin/users/friends", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("code = %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "connection refused") {
		t.Errorf("store error leaked to client: %s", rr.Body.String())
	}
}

func TestAdminUsersWithoutDatabase(t *testing.T) {
	noAdminAuth(t)
	h := newTestMux(t, Deps{Pipeline: &fakeStatus{}})
	rr := serve(h, httptest.NewRequest(http.MethodGet, "/admin/users/friends", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("code = %d", rr.Code)
	}
}

func TestAdminUsersRequireAuth(t *testing.T) {
	t.Setenv("ADMIN_TOKEN", "s3cret")
	t.Setenv("ADMIN_USERNAME", "")
	t.Setenv("ADMIN_PASSWORD", "")
	h := newTestMux(t, Deps{Pipeline: &fakeStatus{}, Users: &fakeUserLists{}})
	rr := serve(h, httptest.NewRequest(http.MethodDelete, "/admin/users/undesirables/troll", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated code = %d", rr.Code)
	}
	req := httptest.NewRequest(http.MethodDelete, "/admin/users/undesirables/troll", nil)
	req.Header.Set("X-Admin-Token", "s3cret")
	if rr = serve(h, req); rr.Code != http.StatusOK {
		t.Errorf("token code = %d", rr.Code)
	}
}
