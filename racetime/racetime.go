// Package racetime is a client for the realtime race service: OAuth2
// client-credentials auth, the room creation endpoint and a websocket
// connection per open race room.
package racetime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/midoshouse/racebot"
)

// tokenSlack is how long before expiry a cached token is discarded.
const tokenSlack = 30 * time.Second

// Config configures a Client.
type Config struct {
	// Host is the race service host, e.g. "racetime.gg" (required).
	Host string

	// ClientID and ClientSecret are the bot's OAuth2 application
	// credentials (required).
	ClientID     string
	ClientSecret string

	// HTTPClient is the client for REST calls (default:
	// http.DefaultClient).
	HTTPClient *http.Client

	// Scheme overrides "https" for REST and "wss" for websockets.
	// Tests point it at plain-text servers.
	Scheme string

	// Logger is an optional logger for observability.
	Logger *slog.Logger

	// Now is the clock (default: time.Now).
	Now func() time.Time
}

// Client talks to the race service's REST API and dials room
// websockets. It caches the OAuth2 access token until shortly before
// expiry.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

// New creates a Client. It applies default values for HTTPClient,
// Scheme, Logger and Now.
func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Scheme == "" {
		cfg.Scheme = "https"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Client{
		cfg:    cfg,
		http:   cfg.HTTPClient,
		logger: cfg.Logger.With("racetime_host", cfg.Host),
		now:    cfg.Now,
	}
}

func (c *Client) baseURL() string {
	return c.cfg.Scheme + "://" + c.cfg.Host
}

// Token returns a valid access token, fetching a fresh one via the
// client-credentials grant when the cached token is missing or about
// to expire.
func (c *Client) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Add(tokenSlack).Before(c.tokenExp) {
		return c.token, nil
	}

	form := url.Values{
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
		"grant_type":    {"client_credentials"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL()+"/o/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &racebot.HTTPError{StatusCode: resp.StatusCode, URL: req.URL.String(), Body: string(body)}
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decoding token response: %w", err)
	}
	c.token = payload.AccessToken
	c.tokenExp = c.now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	return c.token, nil
}

// StartRace is the configuration of a new or edited race room.
type StartRace struct {
	Goal         string
	GoalIsCustom bool

	TeamRace     bool
	Invitational bool
	Unlisted     bool

	InfoUser string
	InfoBot  string

	RequireEvenTeams bool

	// StartDelay is the countdown in seconds once everyone is ready.
	StartDelay int

	// TimeLimit is the maximum race duration in hours.
	TimeLimit             int
	TimeLimitAutoComplete bool

	StreamingRequired bool
	AutoStart         bool

	AllowComments       bool
	HideComments        bool
	AllowPreraceChat    bool
	AllowMidraceChat    bool
	AllowNonEntrantChat bool

	// ChatMessageDelay is the non-monitor chat delay in seconds.
	ChatMessageDelay int
}

func (r StartRace) form() url.Values {
	form := url.Values{}
	if r.GoalIsCustom {
		form.Set("custom_goal", r.Goal)
	} else {
		form.Set("goal", r.Goal)
	}
	form.Set("team_race", strconv.FormatBool(r.TeamRace))
	form.Set("invitational", strconv.FormatBool(r.Invitational))
	form.Set("unlisted", strconv.FormatBool(r.Unlisted))
	form.Set("info_user", r.InfoUser)
	form.Set("info_bot", r.InfoBot)
	form.Set("require_even_teams", strconv.FormatBool(r.RequireEvenTeams))
	form.Set("start_delay", strconv.Itoa(r.StartDelay))
	form.Set("time_limit", strconv.Itoa(r.TimeLimit))
	form.Set("time_limit_auto_complete", strconv.FormatBool(r.TimeLimitAutoComplete))
	form.Set("streaming_required", strconv.FormatBool(r.StreamingRequired))
	form.Set("auto_start", strconv.FormatBool(r.AutoStart))
	form.Set("allow_comments", strconv.FormatBool(r.AllowComments))
	form.Set("hide_comments", strconv.FormatBool(r.HideComments))
	form.Set("allow_prerace_chat", strconv.FormatBool(r.AllowPreraceChat))
	form.Set("allow_midrace_chat", strconv.FormatBool(r.AllowMidraceChat))
	form.Set("allow_non_entrant_chat", strconv.FormatBool(r.AllowNonEntrantChat))
	form.Set("chat_message_delay", strconv.Itoa(r.ChatMessageDelay))
	return form
}

// StartRace opens a new race room in the category and returns the
// room's path on the race service, e.g. "/ootr/adequate-kirby-5023".
func (c *Client) StartRace(ctx context.Context, category string, race StartRace) (string, error) {
	return c.postRace(ctx, fmt.Sprintf("/o/%s/startrace", category), race, http.StatusCreated)
}

// EditRace updates an existing room's configuration.
func (c *Client) EditRace(ctx context.Context, category, slug string, race StartRace) error {
	_, err := c.postRace(ctx, fmt.Sprintf("/o/%s/%s/edit", category, slug), race, http.StatusOK)
	return err
}

func (c *Client) postRace(ctx context.Context, path string, race StartRace, wantStatus int) (string, error) {
	token, err := c.Token(ctx)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL()+path, strings.NewReader(race.form().Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &racebot.HTTPError{StatusCode: resp.StatusCode, URL: req.URL.String(), Body: string(body)}
	}
	return resp.Header.Get("Location"), nil
}
