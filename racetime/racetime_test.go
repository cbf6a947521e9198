package racetime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/midoshouse/racebot"
)

func testClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return New(Config{
		Host:         u.Host,
		ClientID:     "bot-id",
		ClientSecret: "bot-secret",
		Scheme:       "http",
	}), srv
}

func TestToken_CachedUntilExpiry(t *testing.T) {
	ctx := context.Background()
	tokenRequests := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/o/token", func(w http.ResponseWriter, r *http.Request) {
		tokenRequests++
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostFormValue("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok1","expires_in":36000}`))
	})

	c, _ := testClient(t, mux)

	tok, err := c.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok1", tok)

	tok, err = c.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok1", tok)
	assert.Equal(t, 1, tokenRequests)
}

func TestToken_RefreshedWhenStale(t *testing.T) {
	ctx := context.Background()
	tokenRequests := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/o/token", func(w http.ResponseWriter, r *http.Request) {
		tokenRequests++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok","expires_in":10}`))
	})

	c, _ := testClient(t, mux)
	now := time.Now()
	c.now = func() time.Time { return now }

	_, err := c.Token(ctx)
	require.NoError(t, err)

	// Within 30 seconds of expiry the cached token must not be reused.
	now = now.Add(5 * time.Second)
	_, err = c.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, tokenRequests)
}

func TestStartRace(t *testing.T) {
	ctx := context.Background()
	mux := http.NewServeMux()
	mux.HandleFunc("/o/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok","expires_in":36000}`))
	})
	mux.HandleFunc("/o/ootr/startrace", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "Random settings league", r.PostFormValue("goal"))
		assert.Empty(t, r.PostFormValue("custom_goal"))
		assert.Equal(t, "true", r.PostFormValue("invitational"))
		assert.Equal(t, "false", r.PostFormValue("unlisted"))
		assert.Equal(t, "15", r.PostFormValue("start_delay"))
		assert.Equal(t, "24", r.PostFormValue("time_limit"))
		assert.Equal(t, "true", r.PostFormValue("auto_start"))
		assert.Equal(t, "0", r.PostFormValue("chat_message_delay"))
		w.Header().Set("Location", "/ootr/adequate-kirby-5023")
		w.WriteHeader(http.StatusCreated)
	})

	c, _ := testClient(t, mux)
	path, err := c.StartRace(ctx, "ootr", StartRace{
		Goal:             "Random settings league",
		Invitational:     true,
		StartDelay:       15,
		TimeLimit:        24,
		AutoStart:        true,
		AllowComments:    true,
		AllowPreraceChat: true,
		AllowMidraceChat: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "/ootr/adequate-kirby-5023", path)
}

func TestStartRace_CustomGoal(t *testing.T) {
	ctx := context.Background()
	mux := http.NewServeMux()
	mux.HandleFunc("/o/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok","expires_in":36000}`))
	})
	mux.HandleFunc("/o/ootr/startrace", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "Triforce Blitz S3", r.PostFormValue("custom_goal"))
		assert.Empty(t, r.PostFormValue("goal"))
		w.Header().Set("Location", "/ootr/x")
		w.WriteHeader(http.StatusCreated)
	})

	c, _ := testClient(t, mux)
	_, err := c.StartRace(ctx, "ootr", StartRace{Goal: "Triforce Blitz S3", GoalIsCustom: true})
	require.NoError(t, err)
}

func TestStartRace_ErrorSurfacesStatusAndBody(t *testing.T) {
	ctx := context.Background()
	mux := http.NewServeMux()
	mux.HandleFunc("/o/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok","expires_in":36000}`))
	})
	mux.HandleFunc("/o/ootr/startrace", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"goal": ["unknown goal"]}`, http.StatusUnprocessableEntity)
	})

	c, _ := testClient(t, mux)
	_, err := c.StartRace(ctx, "ootr", StartRace{Goal: "nonsense"})
	var httpErr *racebot.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusUnprocessableEntity, httpErr.StatusCode)
	assert.Contains(t, httpErr.Body, "unknown goal")
}
