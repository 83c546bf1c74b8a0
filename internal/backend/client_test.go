package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BlackMaN314/daily-routine-bot/internal/domain"
)

const testBotToken = "123:ABC"

// memStore is an in-memory TokenStore.
type memStore struct {
	mu    sync.Mutex
	creds map[int64]domain.Credentials
}

func newMemStore() *memStore { return &memStore{creds: make(map[int64]domain.Credentials)} }

func (m *memStore) put(c domain.Credentials) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds[c.TelegramID] = c
}

func (m *memStore) get(id int64) (domain.Credentials, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.creds[id]
	return c, ok
}

func (m *memStore) GetAccessToken(_ context.Context, id int64) (string, error) {
	c, _ := m.get(id)
	return c.AccessToken, nil
}

func (m *memStore) GetRefreshToken(_ context.Context, id int64) (string, error) {
	c, _ := m.get(id)
	return c.RefreshToken, nil
}

func (m *memStore) GetProfile(_ context.Context, id int64) (*domain.Profile, error) {
	c, ok := m.get(id)
	if !ok {
		return nil, nil
	}
	return &c.Profile, nil
}

func (m *memStore) SaveAll(_ context.Context, c *domain.Credentials) error {
	m.put(*c)
	return nil
}

func (m *memStore) UpdateAccessToken(_ context.Context, id int64, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.creds[id]; ok {
		c.AccessToken = token
		m.creds[id] = c
	}
	return nil
}

func (m *memStore) UpdateTokens(_ context.Context, id int64, access, refresh string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.creds[id]; ok {
		c.AccessToken, c.RefreshToken = access, refresh
		m.creds[id] = c
	}
	return nil
}

// fakeBackend records hits per path and serves configurable handlers.
type fakeBackend struct {
	t      *testing.T
	mu     sync.Mutex
	hits   map[string]int
	routes map[string]http.HandlerFunc
}

func newFakeBackend(t *testing.T) (*fakeBackend, *httptest.Server) {
	fb := &fakeBackend{t: t, hits: make(map[string]int), routes: make(map[string]http.HandlerFunc)}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		fb.mu.Lock()
		fb.hits[key]++
		h, ok := fb.routes[key]
		fb.mu.Unlock()
		if !ok {
			t.Errorf("unexpected request %s", key)
			w.WriteHeader(http.StatusNotImplemented)
			return
		}
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	return fb, srv
}

func (fb *fakeBackend) handle(key string, h http.HandlerFunc) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.routes[key] = h
}

func (fb *fakeBackend) count(key string) int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.hits[key]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func loginOK(t *testing.T, access, refresh string, userID int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		if payload["hash"] != Sign(testBotToken, payload) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "bad hash"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"user":   map[string]any{"id": userID},
			"tokens": map[string]string{"access_token": access, "refresh_token": refresh},
		})
	}
}

func requireBearer(expected string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+expected {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		h(w, r)
	}
}

func newTestClient(srv *httptest.Server, store TokenStore, opts ...Option) *Client {
	opts = append([]Option{WithClock(clockwork.NewFakeClockAt(time.Unix(1700000000, 0)))}, opts...)
	return New(srv.URL, testBotToken, store, zap.NewNop(), opts...)
}

func backendUser(v int64) *int64 { return &v }

func TestResolveTokenUsesCacheWithoutNetwork(t *testing.T) {
	fb, srv := newFakeBackend(t)
	store := newMemStore()
	store.put(domain.Credentials{TelegramID: 1, AccessToken: "cached", RefreshToken: "r", BackendUserID: backendUser(9)})
	client := newTestClient(srv, store)

	for i := 0; i < 3; i++ {
		token, err := client.ResolveToken(context.Background(), User{TelegramID: 1})
		require.NoError(t, err)
		assert.Equal(t, "cached", token)
	}
	assert.Empty(t, fb.hits)
}

func TestCallWithCachedTokenOnlyHitsTarget(t *testing.T) {
	fb, srv := newFakeBackend(t)
	fb.handle("GET /habits", requireBearer("cached", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, []any{})
	}))
	store := newMemStore()
	store.put(domain.Credentials{TelegramID: 1, AccessToken: "cached", RefreshToken: "r", BackendUserID: backendUser(9)})
	client := newTestClient(srv, store)

	_, err := client.Habits(context.Background(), User{TelegramID: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, fb.count("GET /habits"))
	assert.Zero(t, fb.count("POST /login/telegram"))
	assert.Zero(t, fb.count("POST /auth/getaccesstoken"))
}

func TestCallRegistersUserWithoutCredentials(t *testing.T) {
	fb, srv := newFakeBackend(t)
	fb.handle("POST /login/telegram", loginOK(t, "acc", "ref", 77))
	fb.handle("GET /habits", requireBearer("acc", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]any{
			{"id": 1, "title": "Run", "type": "count", "value": 5, "unit": "km", "is_done": false, "series": 3},
			{"id": 2, "title": "Read", "type": "count", "value": 1, "is_done": true},
		})
	}))
	store := newMemStore()
	client := newTestClient(srv, store)

	habits, err := client.Habits(context.Background(), User{TelegramID: 5, Profile: domain.Profile{Username: "bob"}})
	require.NoError(t, err)

	assert.Equal(t, 1, fb.count("POST /login/telegram"))
	require.Len(t, habits, 2)
	assert.False(t, habits[0].Completed)
	assert.Equal(t, 3, habits[0].Streak)
	assert.Equal(t, "km", habits[0].Unit)
	assert.True(t, habits[1].Completed)

	c, ok := store.get(5)
	require.True(t, ok)
	assert.Equal(t, "acc", c.AccessToken)
	assert.Equal(t, "ref", c.RefreshToken)
	require.NotNil(t, c.BackendUserID)
	assert.Equal(t, int64(77), *c.BackendUserID)
	assert.Equal(t, "bob", c.Profile.Username)
}

func TestCallRefreshesExpiredTokenAndRetriesOnce(t *testing.T) {
	fb, srv := newFakeBackend(t)
	fb.handle("POST /auth/getaccesstoken", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ref", body["refresh_token"])
		writeJSON(w, http.StatusOK, map[string]string{"access_token": "fresh"})
	})
	fb.handle("GET /habits", requireBearer("fresh", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, []any{})
	}))
	store := newMemStore()
	store.put(domain.Credentials{TelegramID: 1, AccessToken: "expired", RefreshToken: "ref", BackendUserID: backendUser(9)})
	client := newTestClient(srv, store)

	_, err := client.Habits(context.Background(), User{TelegramID: 1})
	require.NoError(t, err)

	assert.Equal(t, 2, fb.count("GET /habits"))
	assert.Equal(t, 1, fb.count("POST /auth/getaccesstoken"))
	assert.Zero(t, fb.count("POST /login/telegram"))
	c, _ := store.get(1)
	assert.Equal(t, "fresh", c.AccessToken)
	assert.Equal(t, "ref", c.RefreshToken)
}

func TestCallSecond401IsTerminal(t *testing.T) {
	fb, srv := newFakeBackend(t)
	fb.handle("POST /auth/getaccesstoken", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"access_token": "fresh"})
	})
	fb.handle("GET /habits", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	store := newMemStore()
	store.put(domain.Credentials{TelegramID: 1, AccessToken: "expired", RefreshToken: "ref", BackendUserID: backendUser(9)})
	client := newTestClient(srv, store)

	_, err := client.Habits(context.Background(), User{TelegramID: 1})
	require.Error(t, err)

	assert.Equal(t, KindAuthExpired, KindOf(err))
	assert.True(t, IsAuth(err))
	assert.Equal(t, 2, fb.count("GET /habits"))
	assert.Equal(t, 1, fb.count("POST /auth/getaccesstoken"))
}

func TestCallFallsBackToRegistrationWhenRefreshRejected(t *testing.T) {
	fb, srv := newFakeBackend(t)
	fb.handle("POST /auth/getaccesstoken", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	fb.handle("POST /login/telegram", loginOK(t, "new-acc", "new-ref", 9))
	fb.handle("GET /habits", requireBearer("new-acc", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, []any{})
	}))
	store := newMemStore()
	store.put(domain.Credentials{
		TelegramID: 1, AccessToken: "expired", RefreshToken: "stale", BackendUserID: backendUser(9),
		Profile: domain.Profile{FirstName: "Ann"},
	})
	client := newTestClient(srv, store)

	_, err := client.Habits(context.Background(), User{TelegramID: 1})
	require.NoError(t, err)

	assert.Equal(t, 1, fb.count("POST /login/telegram"))
	assert.Equal(t, 2, fb.count("GET /habits"))
	c, _ := store.get(1)
	assert.Equal(t, "new-acc", c.AccessToken)
	assert.Equal(t, "new-ref", c.RefreshToken)
	assert.Equal(t, "Ann", c.Profile.FirstName)
}

func TestCallWithoutRefreshTokenReRegisters(t *testing.T) {
	fb, srv := newFakeBackend(t)
	fb.handle("POST /login/telegram", loginOK(t, "new-acc", "new-ref", 9))
	fb.handle("GET /user/me/settings", requireBearer("new-acc", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"notify_times": []string{"08:00"}, "timezone": "Europe/Moscow"})
	}))
	store := newMemStore()
	store.put(domain.Credentials{TelegramID: 1, AccessToken: "expired", BackendUserID: backendUser(9)})
	client := newTestClient(srv, store)

	s, err := client.Settings(context.Background(), User{TelegramID: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"08:00"}, s.NotifyTimes)
	assert.Zero(t, fb.count("POST /auth/getaccesstoken"))
	assert.Equal(t, 1, fb.count("POST /login/telegram"))
}

func TestCallRecoveryFailureIsAuthExpired(t *testing.T) {
	fb, srv := newFakeBackend(t)
	fb.handle("POST /auth/getaccesstoken", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	fb.handle("POST /login/telegram", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	fb.handle("GET /habits", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	store := newMemStore()
	store.put(domain.Credentials{TelegramID: 1, AccessToken: "expired", RefreshToken: "stale", BackendUserID: backendUser(9)})
	client := newTestClient(srv, store)

	_, err := client.Habits(context.Background(), User{TelegramID: 1})
	assert.Equal(t, KindAuthExpired, KindOf(err))
	assert.Equal(t, 1, fb.count("GET /habits"))
}

func TestResolveTokenRegistrationFailureIsAuthUnavailable(t *testing.T) {
	fb, srv := newFakeBackend(t)
	fb.handle("POST /login/telegram", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "bad signature"})
	})
	client := newTestClient(srv, newMemStore())

	_, err := client.Habits(context.Background(), User{TelegramID: 3})
	require.Error(t, err)
	assert.Equal(t, KindAuthUnavailable, KindOf(err))
	assert.Equal(t, 1, fb.count("POST /login/telegram"))
	assert.Zero(t, fb.count("GET /habits"))
}

func TestCallBackendErrorIsNotRetried(t *testing.T) {
	fb, srv := newFakeBackend(t)
	fb.handle("PATCH /habits/4", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "habit not found"})
	})
	store := newMemStore()
	store.put(domain.Credentials{TelegramID: 1, AccessToken: "acc", BackendUserID: backendUser(9)})
	client := newTestClient(srv, store)

	_, err := client.CompleteHabit(context.Background(), User{TelegramID: 1}, 4)
	require.Error(t, err)
	assert.Equal(t, KindBackend, KindOf(err))
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "habit not found")
	assert.Equal(t, 1, fb.count("PATCH /habits/4"))
}

func TestCallUnreachable(t *testing.T) {
	_, srv := newFakeBackend(t)
	store := newMemStore()
	store.put(domain.Credentials{TelegramID: 1, AccessToken: "acc", BackendUserID: backendUser(9)})
	client := newTestClient(srv, store, WithTimeout(time.Second))
	srv.Close()

	_, err := client.Habits(context.Background(), User{TelegramID: 1})
	assert.Equal(t, KindUnreachable, KindOf(err))
	assert.Error(t, client.Ping(context.Background(), time.Second))
}

func TestStaticTokenMode(t *testing.T) {
	fb, srv := newFakeBackend(t)
	fb.handle("GET /habits", requireBearer("static", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, []any{})
	}))
	client := newTestClient(srv, newMemStore(), WithStaticToken("static"))

	_, err := client.Habits(context.Background(), User{})
	require.NoError(t, err)

	bare := newTestClient(srv, newMemStore())
	_, err = bare.Habits(context.Background(), User{})
	assert.Equal(t, KindAuthUnavailable, KindOf(err))
	assert.Equal(t, 1, fb.count("GET /habits"))
}

func TestSettingsCreatedWhenMissing(t *testing.T) {
	fb, srv := newFakeBackend(t)
	fb.handle("GET /user/me/settings", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	fb.handle("PUT /user/me/settings", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusCreated, map[string]any{"notify_times": []string{"09:00"}, "do_not_disturb": true})
	})
	store := newMemStore()
	store.put(domain.Credentials{TelegramID: 1, AccessToken: "acc", BackendUserID: backendUser(9)})
	client := newTestClient(srv, store)

	s, err := client.Settings(context.Background(), User{TelegramID: 1})
	require.NoError(t, err)
	assert.True(t, s.DoNotDisturb)
	assert.Equal(t, "UTC", s.Timezone)

	fb.handle("PUT /user/me/settings", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	s, err = client.Settings(context.Background(), User{TelegramID: 1})
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings, s)
}

func TestRotateTokens(t *testing.T) {
	fb, srv := newFakeBackend(t)
	fb.handle("POST /auth/getrefreshtoken", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"access_token": "a2", "refresh_token": "r2"})
	})
	store := newMemStore()
	store.put(domain.Credentials{TelegramID: 1, AccessToken: "a1", RefreshToken: "r1", BackendUserID: backendUser(9)})
	client := newTestClient(srv, store)

	token, err := client.RotateTokens(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "a2", token)
	c, _ := store.get(1)
	assert.Equal(t, "r2", c.RefreshToken)

	_, err = client.RotateTokens(context.Background(), 2)
	assert.ErrorIs(t, err, errNoRefreshToken)
}

func TestConcurrentUsersNeverShareHeaders(t *testing.T) {
	var mismatches atomic.Int32
	fb, srv := newFakeBackend(t)
	fb.handle("GET /habits", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer token-"+r.URL.Query().Get("u") {
			mismatches.Add(1)
		}
		writeJSON(w, http.StatusOK, []any{})
	})
	store := newMemStore()
	for _, id := range []int64{1, 2, 3, 4} {
		store.put(domain.Credentials{TelegramID: id, AccessToken: "token-" + strconv.FormatInt(id, 10), BackendUserID: backendUser(id)})
	}
	client := newTestClient(srv, store)

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		id := int64(i%4 + 1)
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := client.Call(context.Background(), Request{
				User:   User{TelegramID: id},
				Method: http.MethodGet,
				Path:   "/habits?u=" + strconv.FormatInt(id, 10),
			}, nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Zero(t, mismatches.Load())
	assert.Equal(t, 40, fb.count("GET /habits"))
}

func TestMapHabitConvertsWholeHours(t *testing.T) {
	progress := 60.0
	h := mapHabit(habitResource{ID: 1, Title: "Meditate", Type: "time", Value: 120, Unit: UnitMinutes, Progress: &progress})
	assert.Equal(t, 2.0, h.Goal)
	assert.Equal(t, 1.0, h.Progress)
	assert.Equal(t, UnitHours, h.Unit)
	assert.Equal(t, domain.HabitQuantity, h.Type)

	h = mapHabit(habitResource{Value: 90, Unit: UnitMinutes, IsDone: true, Type: "beneficial"})
	assert.Equal(t, 90.0, h.Goal)
	assert.Equal(t, 90.0, h.Progress)
	assert.Equal(t, "Habit", h.Title)
	assert.Equal(t, domain.HabitBoolean, h.Type)
}

func TestHabitMutations(t *testing.T) {
	fb, srv := newFakeBackend(t)
	var created map[string]any
	fb.handle("POST /habits", requireBearer("acc", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&created))
		writeJSON(w, http.StatusCreated, map[string]any{"id": 5, "title": "Stretch", "type": "beneficial"})
	}))
	fb.handle("PATCH /habits/5", requireBearer("acc", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]bool
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeJSON(w, http.StatusOK, map[string]any{"id": 5, "title": "Stretch", "is_done": body["is_done"]})
	}))
	fb.handle("DELETE /habits/5", requireBearer("acc", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	store := newMemStore()
	store.put(domain.Credentials{TelegramID: 1, AccessToken: "acc", BackendUserID: backendUser(9)})
	client := newTestClient(srv, store)
	ctx := context.Background()
	u := User{TelegramID: 1}

	h, err := client.CreateHabit(ctx, u, NewHabit{Title: "Stretch", Beneficial: true})
	require.NoError(t, err)
	assert.Equal(t, int64(5), h.ID)
	assert.Equal(t, "beneficial", created["type"])
	assert.Equal(t, "count", created["format"])
	assert.Equal(t, 1.0, created["value"])

	h, err = client.CompleteHabit(ctx, u, 5)
	require.NoError(t, err)
	assert.True(t, h.Completed)

	h, err = client.UndoHabit(ctx, u, 5)
	require.NoError(t, err)
	assert.False(t, h.Completed)

	require.NoError(t, client.DeleteHabit(ctx, u, 5))
	assert.Equal(t, 1, fb.count("DELETE /habits/5"))

	_, err = client.CreateHabit(ctx, u, NewHabit{})
	assert.Error(t, err)
}

func TestCompleteAllStopsAtFirstFailure(t *testing.T) {
	fb, srv := newFakeBackend(t)
	fb.handle("GET /habits", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]any{
			{"id": 1, "title": "A"},
			{"id": 2, "title": "B", "is_done": true},
			{"id": 3, "title": "C"},
			{"id": 4, "title": "D"},
		})
	})
	fb.handle("PATCH /habits/1", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"id": 1, "is_done": true})
	})
	fb.handle("PATCH /habits/3", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "locked"})
	})
	store := newMemStore()
	store.put(domain.Credentials{TelegramID: 1, AccessToken: "acc", BackendUserID: backendUser(9)})
	client := newTestClient(srv, store)

	n, err := client.CompleteAll(context.Background(), User{TelegramID: 1})
	assert.Equal(t, 1, n)
	assert.Equal(t, http.StatusBadRequest, StatusOf(err))
	assert.Zero(t, fb.count("PATCH /habits/2"))
	assert.Zero(t, fb.count("PATCH /habits/4"))
}

func TestSetNotifyTimesNormalizes(t *testing.T) {
	fb, srv := newFakeBackend(t)
	var sent map[string][]string
	fb.handle("PATCH /user/me/settings", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&sent))
		writeJSON(w, http.StatusOK, map[string]any{"notify_times": sent["notify_times"], "timezone": "Europe/Moscow"})
	})
	store := newMemStore()
	store.put(domain.Credentials{TelegramID: 1, AccessToken: "acc", BackendUserID: backendUser(9)})
	client := newTestClient(srv, store)

	s, err := client.SetNotifyTimes(context.Background(), User{TelegramID: 1}, []string{"7:05", "20:30"})
	require.NoError(t, err)
	assert.Equal(t, []string{"07:05", "20:30"}, sent["notify_times"])
	assert.Equal(t, "Europe/Moscow", s.Timezone)

	_, err = client.SetNotifyTimes(context.Background(), User{TelegramID: 1}, []string{"24:00"})
	assert.Error(t, err)
	assert.Equal(t, 1, fb.count("PATCH /user/me/settings"))
}

func TestAddProgressAccumulatesAndCompletes(t *testing.T) {
	fb, srv := newFakeBackend(t)
	fb.handle("GET /habits/6", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"id": 6, "title": "Water", "format": "count", "value": 2, "unit": "l", "current_value": 1.5})
	})
	var patch map[string]any
	fb.handle("PATCH /habits/6", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&patch))
		writeJSON(w, http.StatusOK, map[string]any{
			"id": 6, "title": "Water", "format": "count", "value": 2, "unit": "l",
			"current_value": patch["current_value"], "is_done": patch["is_done"],
		})
	})
	store := newMemStore()
	store.put(domain.Credentials{TelegramID: 1, AccessToken: "acc", BackendUserID: backendUser(9)})
	client := newTestClient(srv, store)

	h, err := client.AddProgress(context.Background(), User{TelegramID: 1}, 6, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 2.0, patch["current_value"])
	assert.Equal(t, true, patch["is_done"])
	assert.True(t, h.Completed)
	assert.Equal(t, 2.0, h.Progress)
}

func TestAddProgressConvertsHoursToStoredMinutes(t *testing.T) {
	fb, srv := newFakeBackend(t)
	fb.handle("GET /habits/8", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"id": 8, "title": "Focus", "format": "time", "value": 120, "unit": UnitMinutes})
	})
	var patch map[string]any
	fb.handle("PATCH /habits/8", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&patch))
		writeJSON(w, http.StatusOK, map[string]any{"id": 8, "title": "Focus", "format": "time", "value": 120, "unit": UnitMinutes, "current_value": patch["current_value"]})
	})
	store := newMemStore()
	store.put(domain.Credentials{TelegramID: 1, AccessToken: "acc", BackendUserID: backendUser(9)})
	client := newTestClient(srv, store)

	h, err := client.AddProgress(context.Background(), User{TelegramID: 1}, 8, 1.5)
	require.NoError(t, err)
	assert.Equal(t, 90.0, patch["current_value"])
	assert.Equal(t, false, patch["is_done"])
	assert.Equal(t, UnitHours, h.Unit)
	assert.Equal(t, 1.5, h.Progress)

	_, err = client.AddProgress(context.Background(), User{TelegramID: 1}, 8, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	assert.Equal(t, 1, fb.count("GET /habits/8"))
}

func TestProgressSummarizesHabits(t *testing.T) {
	fb, srv := newFakeBackend(t)
	fb.handle("GET /habits", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]any{
			{"id": 1, "title": "Run", "series": 4},
			{"id": 2, "title": "Read", "series": 9},
		})
	})
	store := newMemStore()
	store.put(domain.Credentials{TelegramID: 1, AccessToken: "acc", BackendUserID: backendUser(9)})
	client := newTestClient(srv, store)

	p, err := client.Progress(context.Background(), User{TelegramID: 1}, domain.PeriodWeek)
	require.NoError(t, err)
	assert.Equal(t, 11, p.Completed)
	assert.Equal(t, 14, p.Total)
	assert.Equal(t, "Read", p.BestTitle)
}

func TestCreateHabitStoresHoursAsMinutes(t *testing.T) {
	fb, srv := newFakeBackend(t)
	var created map[string]any
	fb.handle("POST /habits", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&created))
		writeJSON(w, http.StatusCreated, map[string]any{"id": 3, "title": "Focus", "format": "time", "value": 120, "unit": UnitMinutes})
	})
	store := newMemStore()
	store.put(domain.Credentials{TelegramID: 1, AccessToken: "acc", BackendUserID: backendUser(9)})
	client := newTestClient(srv, store)

	h, err := client.CreateHabit(context.Background(), User{TelegramID: 1}, NewHabit{Title: "Focus", Timed: true, Value: 2, Unit: UnitHours})
	require.NoError(t, err)
	assert.Equal(t, "time", created["format"])
	assert.Equal(t, 120.0, created["value"])
	assert.Equal(t, UnitMinutes, created["unit"])
	assert.Equal(t, UnitHours, h.Unit)
	assert.Equal(t, 2.0, h.Goal)
}
