package webserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-arena/infrastructure/store"
	"github.com/ahrav/go-arena/internal/application"
	"github.com/ahrav/go-arena/internal/domain"
	"github.com/ahrav/go-arena/internal/ports"
	"github.com/ahrav/go-arena/internal/testutils"
)

type fakeRoster struct{ candidates []domain.Candidate }

func (r fakeRoster) Candidates() []domain.Candidate { return r.candidates }

func (r fakeRoster) Client(key string) (ports.LLMClient, error) {
	return nil, fmt.Errorf("%w: %s", domain.ErrUnknownCandidate, key)
}

type fakeRunner struct {
	result *domain.BattleResult
	err    error
	got    application.BattleRequest
}

func (f *fakeRunner) Run(_ context.Context, req application.BattleRequest) (*domain.BattleResult, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	res := *f.result
	res.Prompt = req.Prompt
	res.Image = req.Image
	return &res, nil
}

var testCandidates = []domain.Candidate{
	{Key: "openai", DisplayName: "GPT-5.1"},
	{Key: "grok", DisplayName: "Grok 4.1 Fast"},
}

func battleResult() *domain.BattleResult {
	ratings := domain.RatingMatrix{}
	ratings.Set("openai", "openai", domain.Rating{Score: 8, Reasoning: "solid"})
	ratings.Set("openai", "grok", domain.Rating{Score: 6, Reasoning: "thin"})
	ratings.Set("grok", "openai", domain.Rating{Score: 9, Reasoning: "great"})
	ratings.Set("grok", "grok", domain.Rating{Score: 7, Reasoning: "ok"})
	return &domain.BattleResult{
		Candidates: testCandidates,
		Responses: domain.ResponseSet{
			{Candidate: "grok", Text: "grok answer"},
			{Candidate: "openai", Text: "openai answer"},
		},
		Ratings:       ratings,
		ParseModes:    map[string]domain.ParseMode{"openai": domain.ParseModeJSON, "grok": domain.ParseModeFallback},
		AverageScores: map[string]float64{"openai": 8.5, "grok": 6.5},
		Winner:        "openai",
		Tiebreak:      domain.TiebreakRecord{Method: domain.MethodAverageScore},
		Timing:        domain.Timing{Total: 3 * time.Second},
	}
}

func newTestServer(t *testing.T, runner BattleRunner, origins ...string) (http.Handler, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	srv := New(Config{
		AllowedOrigins: origins,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, "arena_battles_total 1\n")
		}),
	}, runner, st, fakeRoster{candidates: testCandidates})
	return srv.Handler(), st
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func seed(t *testing.T, st *store.MemoryStore, prompt string, created time.Time) int64 {
	t.Helper()
	res := battleResult()
	res.Prompt = prompt
	id, err := st.SaveBattle(t.Context(), domain.NewBattleRecord(res, created))
	require.NoError(t, err)
	return id
}

func TestHealthEndpoint(t *testing.T) {
	handler, _ := newTestServer(t, &fakeRunner{})

	rec := do(t, handler, http.MethodGet, "/api/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	body := decode[HealthResponse](t, rec)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, []string{"openai", "grok"}, body.Candidates)
}

// TestCreateBattle tests that a battle is run, stored and returned sorted by
// average score.
func TestCreateBattle(t *testing.T) {
	// Given a runner producing a two-model result
	runner := &fakeRunner{result: battleResult()}
	handler, st := newTestServer(t, runner)

	// When a battle with history and an image is posted
	rec := do(t, handler, http.MethodPost, "/api/battle", `{
		"prompt": "Explain TCP",
		"history": [{"role": "user", "content": "hi"}, {"role": "assistant", "content": "hello"}],
		"image": "data:image/png;base64,iVBORw0KGgo="
	}`)

	// Then the result is returned and persisted
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode[BattleResultView](t, rec)
	assert.Equal(t, int64(1), body.ID)
	assert.Equal(t, "openai", body.Winner)
	assert.Equal(t, "GPT-5.1", body.WinnerDisplay)
	require.Len(t, body.Responses, 2)
	assert.Equal(t, "openai", body.Responses[0].Model)
	assert.Equal(t, "GPT-5.1", body.Responses[0].ModelDisplay)
	assert.True(t, body.Responses[0].IsWinner)
	assert.Equal(t, "great", body.Responses[0].Ratings["grok"].Reasoning)
	assert.Equal(t, "fallback", body.ParseModes["grok"])
	assert.Equal(t, domain.MethodAverageScore, body.Tiebreak.Method)
	assert.InDelta(t, 3.0, body.Timing["total"], 1e-9)

	assert.Len(t, runner.got.History, 2)
	require.NotNil(t, runner.got.Image)
	assert.Equal(t, "image/png", runner.got.Image.MIMEType)

	stored, err := st.GetBattle(t.Context(), body.ID)
	require.NoError(t, err)
	assert.Equal(t, "Explain TCP", stored.Prompt)
	assert.Equal(t, "openai", stored.Winner())
}

func TestCreateBattle_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{"prompt":`},
		{name: "missing prompt", body: `{}`},
		{name: "bad history role", body: `{"prompt":"p","history":[{"role":"system","content":"x"}]}`},
		{name: "bad image", body: `{"prompt":"p","image":"data:image/png;hex,00"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{result: battleResult()}
			handler, _ := newTestServer(t, runner)

			rec := do(t, handler, http.MethodPost, "/api/battle", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, decode[ErrorResponse](t, rec).Detail)
			assert.Empty(t, runner.got.Prompt, "runner must not be called")
		})
	}
}

func TestCreateBattle_RunnerErrors(t *testing.T) {
	t.Run("blank prompt", func(t *testing.T) {
		handler, _ := newTestServer(t, &fakeRunner{err: domain.ErrEmptyPrompt})
		rec := do(t, handler, http.MethodPost, "/api/battle", `{"prompt":"   "}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("failure", func(t *testing.T) {
		handler, st := newTestServer(t, &fakeRunner{err: errors.New("roster exploded")})
		rec := do(t, handler, http.MethodPost, "/api/battle", `{"prompt":"p"}`)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "Battle failed: roster exploded", decode[ErrorResponse](t, rec).Detail)
		ids, err := st.ListBattleIDs(t.Context())
		require.NoError(t, err)
		assert.Empty(t, ids)
	})
}

func TestGetBattle(t *testing.T) {
	handler, st := newTestServer(t, &fakeRunner{})
	id := seed(t, st, "Explain TCP", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))

	rec := do(t, handler, http.MethodGet, fmt.Sprintf("/api/battle/%d", id), "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[BattleView](t, rec)
	assert.Equal(t, "Explain TCP", body.Prompt)
	require.NotNil(t, body.Winner)
	assert.Equal(t, "openai", *body.Winner)
	require.Len(t, body.Responses, 2)
	assert.Equal(t, "openai", body.Responses[0].Model)
	assert.Equal(t, "Grok 4.1 Fast", body.Responses[1].ModelDisplay)
}

func TestGetBattle_Errors(t *testing.T) {
	handler, _ := newTestServer(t, &fakeRunner{})

	rec := do(t, handler, http.MethodGet, "/api/battle/42", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Battle not found", decode[ErrorResponse](t, rec).Detail)

	rec = do(t, handler, http.MethodGet, "/api/battle/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteBattle(t *testing.T) {
	handler, st := newTestServer(t, &fakeRunner{})
	id := seed(t, st, "p", time.Now())

	rec := do(t, handler, http.MethodDelete, fmt.Sprintf("/api/battle/%d", id), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, fmt.Sprintf("Battle %d deleted successfully", id), decode[MessageResponse](t, rec).Message)

	rec = do(t, handler, http.MethodDelete, fmt.Sprintf("/api/battle/%d", id), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListBattles(t *testing.T) {
	handler, st := newTestServer(t, &fakeRunner{})
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := range 3 {
		seed(t, st, fmt.Sprintf("prompt %d", i), base.Add(time.Duration(i)*time.Minute))
	}

	rec := do(t, handler, http.MethodGet, "/api/battles?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]domain.BattleSummary](t, rec)
	require.Len(t, list, 2)
	assert.Equal(t, "prompt 2", list[0].Prompt)
	assert.Equal(t, "prompt 1", list[1].Prompt)

	rec = do(t, handler, http.MethodGet, "/api/battles", "")
	assert.Len(t, decode[[]domain.BattleSummary](t, rec), 3)

	rec = do(t, handler, http.MethodGet, "/api/battles?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListBattles_EmptyIsArray(t *testing.T) {
	handler, _ := newTestServer(t, &fakeRunner{})

	rec := do(t, handler, http.MethodGet, "/api/battles", "")

	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestStats(t *testing.T) {
	handler, st := newTestServer(t, &fakeRunner{})

	rec := do(t, handler, http.MethodGet, "/api/stats", "")
	assert.JSONEq(t, `{"leaderboard":[],"total_battles":0}`, rec.Body.String())

	seed(t, st, "a", time.Now())
	seed(t, st, "b", time.Now())

	rec = do(t, handler, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	lb := decode[domain.Leaderboard](t, rec)
	assert.Equal(t, 2, lb.TotalBattles)
	require.Len(t, lb.Entries, 2)
	assert.Equal(t, "openai", lb.Entries[0].Model)
	assert.Equal(t, 2, lb.Entries[0].Wins)
	assert.InDelta(t, 100.0, lb.Entries[0].WinRate, 1e-9)

	rec = do(t, handler, http.MethodDelete, "/api/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "All stats cleared successfully", decode[MessageResponse](t, rec).Message)

	rec = do(t, handler, http.MethodGet, "/api/stats", "")
	assert.Equal(t, 0, decode[domain.Leaderboard](t, rec).TotalBattles)
}

func TestMetricsEndpoint(t *testing.T) {
	handler, _ := newTestServer(t, &fakeRunner{})

	rec := do(t, handler, http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "arena_battles_total")
}

func TestUnknownRouteAndMethod(t *testing.T) {
	handler, _ := newTestServer(t, &fakeRunner{})

	assert.Equal(t, http.StatusNotFound, do(t, handler, http.MethodGet, "/", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, handler, http.MethodPut, "/api/stats", "").Code)
}

func TestCORSMiddleware(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("no origins configured means no CORS header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.Header.Set("Origin", "http://evil.com")
		rec := httptest.NewRecorder()
		CORSMiddleware(inner).ServeHTTP(rec, req)

		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("allowed origin is echoed with credentials", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		rec := httptest.NewRecorder()
		CORSMiddleware(inner, "http://localhost:5173").ServeHTTP(rec, req)

		assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "DELETE")
	})

	t.Run("preflight short-circuits", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/battle", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		rec := httptest.NewRecorder()
		CORSMiddleware(inner, "http://localhost:5173").ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func TestListenAndServe_ShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	srv := New(Config{Addr: addr, ShutdownTimeout: time.Second}, &fakeRunner{}, store.NewMemoryStore(),
		fakeRoster{candidates: testCandidates})
	ctx, cancel := context.WithCancel(t.Context())
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/api/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}

// TestCreateBattle_EndToEnd runs a real arena over scripted providers.
func TestCreateBattle_EndToEnd(t *testing.T) {
	// Given three providers that all prefer the second answer
	judgment := testutils.Judgment(6, 9, 7)
	roster, mocks := testutils.NewRoster(t,
		testutils.Candidate{Key: "openai", DisplayName: "GPT-5.1", Answer: "answer A", Judgment: judgment},
		testutils.Candidate{Key: "anthropic", DisplayName: "Claude", Answer: "answer B", Judgment: judgment},
		testutils.Candidate{Key: "google", DisplayName: "Gemini", Answer: "answer C", Judgment: judgment},
	)
	invoker := application.NewInvoker(roster, application.InvokerConfig{MaxAttempts: 1})
	arena := application.NewArena(roster, invoker)
	st := store.NewMemoryStore()
	handler := New(Config{}, arena, st, roster).Handler()

	// When a battle is posted
	rec := do(t, handler, http.MethodPost, "/api/battle", `{"prompt": "Explain TCP"}`)

	// Then the second candidate wins and every provider was asked twice
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode[BattleResultView](t, rec)
	assert.Equal(t, "anthropic", body.Winner)
	assert.Equal(t, "Claude", body.WinnerDisplay)
	require.Len(t, body.Responses, 3)
	assert.Equal(t, "anthropic", body.Responses[0].Model)
	assert.InDelta(t, 9.0, body.Responses[0].AverageScore, 1e-9)
	assert.Len(t, body.Responses[0].Ratings, 3)
	for key, m := range mocks {
		assert.Equal(t, 2, m.GetCallCount(), key)
	}

	rec = do(t, handler, http.MethodGet, "/api/stats", "")
	lb := decode[domain.Leaderboard](t, rec)
	assert.Equal(t, 1, lb.TotalBattles)
	assert.Equal(t, "anthropic", lb.Entries[0].Model)
}
