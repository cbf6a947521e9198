// Package web rolls seeds on the seed-generation web service. It is
// the preferred backend when the requested version is available there,
// since generation happens on the service's hardware and the patch is
// hosted for entrants directly.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/midoshouse/racebot"
	"github.com/midoshouse/racebot/gate"
	"github.com/midoshouse/racebot/gateway"
	"github.com/midoshouse/racebot/metrics"
	"github.com/midoshouse/racebot/source"
)

const (
	// DefaultBaseURL is the production seed service.
	DefaultBaseURL = "https://ootrandomizer.com"

	// MultiworldRateLimit is the request spacing the service asks for on
	// multiworld seed creation, which is far more expensive than solo.
	MultiworldRateLimit = 20 * time.Second

	// DefaultPollInterval is how often a pending seed's status is checked.
	DefaultPollInterval = time.Second

	// boundedAttempts is how many failed generations are retried before
	// the deadline decides whether to keep going.
	boundedAttempts = 3
)

// knownGoodVersions exist on the service despite not being listed by its
// version endpoint, which did not track supplementary version numbers at
// the time these were built.
var knownGoodVersions = []racebot.Version{
	{Branch: racebot.BranchDevR, Major: 6, Minor: 2, Patch: 238, Supplementary: 1},
	{Branch: racebot.BranchDevR, Major: 7, Minor: 1, Patch: 83, Supplementary: 1},
	{Branch: racebot.BranchDevR, Major: 7, Minor: 1, Patch: 143, Supplementary: 1},
	{Branch: racebot.BranchDevFenhl, Major: 6, Minor: 9, Patch: 14, Supplementary: 2},
}

// Config carries the dependencies and tunables for a web client.
type Config struct {
	// Gateway serializes and spaces requests to the service. Required.
	Gateway *gateway.Client

	// Gate bounds concurrent multiworld rolls across all races. Required
	// for multiworld requests.
	Gate *gate.Gate

	// APIKey authorizes ordinary seed creation.
	APIKey string

	// EncryptionAPIKey authorizes encrypted seed creation, used for
	// release-version seeds whose spoiler logs stay locked forever.
	EncryptionAPIKey string

	// BaseURL overrides the service root, for tests.
	BaseURL string

	// SeedDir is where downloaded patch files are written.
	SeedDir string

	// PollInterval overrides the seed status poll cadence, for tests.
	PollInterval time.Duration

	// KnownGood supplements the versions assumed present without
	// consulting the version endpoint.
	KnownGood []racebot.Version

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Client talks to the seed service API.
type Client struct {
	gw           *gateway.Client
	gate         *gate.Gate
	apiKey       string
	encryptKey   string
	baseURL      string
	seedDir      string
	pollInterval time.Duration
	knownGood    []racebot.Version
	now          func() time.Time
}

var _ source.Source = (*Client)(nil)

func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.KnownGood == nil {
		cfg.KnownGood = knownGoodVersions
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Client{
		gw:           cfg.Gateway,
		gate:         cfg.Gate,
		apiKey:       cfg.APIKey,
		encryptKey:   cfg.EncryptionAPIKey,
		baseURL:      cfg.BaseURL,
		seedDir:      cfg.SeedDir,
		pollInterval: cfg.PollInterval,
		knownGood:    cfg.KnownGood,
		now:          cfg.Now,
	}
}

// Versions reports what the service currently offers for a branch.
type Versions struct {
	// CurrentlyActive is the version new seeds roll on, when it could be
	// attributed to the branch.
	CurrentlyActive *racebot.Version

	// Available lists every version still hosted for the branch.
	Available []racebot.Version
}

// Versions queries the service's version endpoint for one branch.
func (c *Client) Versions(ctx context.Context, branch racebot.Branch, randomSettings bool) (*Versions, error) {
	webName, ok := branch.WebName(randomSettings)
	if !ok {
		return nil, racebot.ErrRandomSettingsWeb
	}
	resp, err := c.gw.Get(ctx, c.baseURL+"/api/version", url.Values{
		"key":    {c.apiKey},
		"branch": {webName},
	})
	if err != nil {
		return nil, err
	}
	var raw struct {
		CurrentlyActiveVersion string   `json:"currentlyActiveVersion"`
		AvailableVersions      []string `json:"availableVersions"`
	}
	if err := gateway.DecodeJSON(resp, &raw); err != nil {
		// The version endpoint sometimes returns HTML instead of JSON.
		return nil, err
	}
	out := &Versions{}
	if v, err := racebot.ParseVersion(branch, raw.CurrentlyActiveVersion); err == nil {
		if normalized, ok := normalizeVersion(v, branch); ok {
			out.CurrentlyActive = &normalized
		}
	}
	for _, s := range raw.AvailableVersions {
		v, err := racebot.ParseVersion(branch, s)
		if err != nil {
			continue
		}
		if normalized, ok := normalizeVersion(v, branch); ok {
			out.Available = append(out.Available, normalized)
		}
	}
	return out, nil
}

// normalizeVersion drops versions the endpoint cannot attribute: without a
// supplementary number, only dev and release versions are unambiguous.
func normalizeVersion(v racebot.Version, branch racebot.Branch) (racebot.Version, bool) {
	if v.Supplementary != 0 {
		return v, true
	}
	if branch == racebot.BranchDev || branch == racebot.BranchRelease {
		return v, true
	}
	return racebot.Version{}, false
}

// CanRoll checks whether a request is eligible for the web service, and
// if so, on which exact version. A nil result means the roll must fall
// back to another source. Eligibility is never cached: the service's
// version inventory changes underneath us.
func (c *Client) CanRoll(ctx context.Context, req racebot.SeedRequest) *racebot.Version {
	if req.Worlds > 3 {
		return nil
	}
	if req.Unlock == racebot.UnlockProgression {
		return nil
	}
	switch req.Version.Kind {
	case racebot.BranchRefPinned:
		v := req.Version.Version
		if req.RandomSettings {
			if _, ok := v.Branch.WebName(true); !ok {
				return nil
			}
		}
		for _, known := range c.knownGood {
			if known == v {
				return &v
			}
		}
		branch := v.Branch
		if v.IsRelease() {
			branch = racebot.BranchRelease
		}
		versions, err := c.Versions(ctx, branch, req.RandomSettings)
		if err != nil {
			return nil
		}
		for _, available := range versions.Available {
			if available == v {
				return &v
			}
		}
		return nil
	case racebot.BranchRefLatest:
		versions, err := c.Versions(ctx, req.Version.Branch, req.RandomSettings)
		if err != nil {
			return nil
		}
		return versions.CurrentlyActive
	default:
		// Custom forks never exist on the service.
		return nil
	}
}

var (
	attachmentRe = regexp.MustCompile(`^attachment; filename=(.+)$`)
	patchStemRe  = regexp.MustCompile(`^(.+)\.zpfz?$`)
)

// Roll submits the seed, waits for generation, downloads the patch, and
// returns the seed record. Multiworld rolls first pass through the
// concurrency gate, reporting queue positions along the way.
func (c *Client) Roll(ctx context.Context, req racebot.SeedRequest, report source.Reporter) (*racebot.SeedRecord, error) {
	if req.Version.Kind != racebot.BranchRefPinned {
		return nil, fmt.Errorf("web roll requires a pinned version, got %s", req.Version)
	}
	versionString, ok := req.Version.Version.WebString(req.RandomSettings)
	if !ok {
		return nil, racebot.ErrRandomSettingsWeb
	}

	// Encrypted seeds stay locked forever; for everything else the
	// locked flag mirrors whether the spoiler unlocks only later.
	encrypt := req.Version.Version.IsRelease() && req.Unlock == racebot.UnlockNever
	apiKey := c.apiKey
	if encrypt {
		apiKey = c.encryptKey
	}
	isMW := req.Worlds > 1
	passwordLock := req.Settings.PasswordLock()

	var permit *gate.Permit
	if isMW {
		var err error
		permit, err = c.gate.Acquire(ctx, gateProgress{report})
		if err != nil {
			return nil, err
		}
		defer permit.Release()
	}

	createQuery := url.Values{
		"key":          {apiKey},
		"version":      {versionString},
		"passwordLock": {boolString(passwordLock)},
	}
	if encrypt {
		createQuery.Set("encrypt", "true")
	} else {
		createQuery.Set("locked", boolString(req.Unlock != racebot.UnlockNow))
	}
	var createRateLimit time.Duration
	if isMW {
		createRateLimit = MultiworldRateLimit
	}

	var lastID int64
	for attempt := 0; ; attempt++ {
		if attempt >= boundedAttempts && (req.NotBefore.IsZero() || !c.now().Before(req.NotBefore)) {
			return nil, &racebot.RetryError{NumRetries: attempt, LastError: c.seedPageURL(lastID)}
		}
		if attempt == 0 && !req.RandomSettings {
			report.Started()
		}
		if attempt > 0 {
			metrics.NewCollector(string(racebot.StorageWeb)).IncRetry()
		}

		resp, err := c.gw.Post(ctx, c.baseURL+"/api/v2/seed/create", createQuery, req.Settings, createRateLimit)
		if err != nil {
			return nil, err
		}
		var created struct {
			ID json.Number `json:"id"`
		}
		if err := gateway.DecodeJSON(resp, &created); err != nil {
			return nil, err
		}
		id, err := created.ID.Int64()
		if err != nil {
			return nil, fmt.Errorf("seed creation returned non-numeric id %q", created.ID)
		}
		lastID = id

		failed, err := c.awaitSeed(ctx, apiKey, id)
		if err != nil {
			return nil, err
		}
		if failed {
			continue
		}

		// Generation succeeded; the scarce resource is no longer held
		// while we download the results.
		if permit != nil {
			permit.Release()
		}
		return c.fetchSeed(ctx, apiKey, id, passwordLock)
	}
}

// awaitSeed polls the status endpoint until the seed settles. It returns
// true if generation failed and should be retried.
func (c *Client) awaitSeed(ctx context.Context, apiKey string, id int64) (failed bool, _ error) {
	query := url.Values{"key": {apiKey}, "id": {fmt.Sprint(id)}}
	for {
		if err := sleep(ctx, c.pollInterval); err != nil {
			return false, err
		}
		resp, err := c.gw.Get(ctx, c.baseURL+"/api/v2/seed/status", query)
		if err != nil {
			return false, err
		}
		if resp.StatusCode == http.StatusNoContent {
			resp.Body.Close()
			continue
		}
		var status struct {
			Status int `json:"status"`
		}
		if err := gateway.DecodeJSON(resp, &status); err != nil {
			return false, err
		}
		switch status.Status {
		case 0: // still generating
			continue
		case 1: // generated
			return false, nil
		case 3: // failed to generate
			return true, nil
		default:
			return false, &racebot.SeedStatusError{Status: status.Status}
		}
	}
}

// fetchSeed downloads the details, patch file, and optional password of
// a generated seed.
func (c *Client) fetchSeed(ctx context.Context, apiKey string, id int64, passwordLock bool) (*racebot.SeedRecord, error) {
	query := url.Values{"key": {apiKey}, "id": {fmt.Sprint(id)}}

	details, err := c.seedDetails(ctx, query)
	if err != nil {
		return nil, err
	}

	resp, err := c.gw.Get(ctx, c.baseURL+"/api/v2/seed/patch", query)
	if err != nil {
		return nil, err
	}
	if err := gateway.ErrorForStatus(resp); err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	m := attachmentRe.FindStringSubmatch(resp.Header.Get("Content-Disposition"))
	if m == nil {
		return nil, racebot.ErrPatchHeader
	}
	patchName := m[1]
	stem := patchStemRe.FindStringSubmatch(patchName)
	if stem == nil {
		return nil, racebot.ErrPatchHeader
	}
	path := filepath.Join(c.seedDir, patchName)
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return nil, fmt.Errorf("downloading %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return nil, err
	}

	record := &racebot.SeedRecord{
		Storage:  racebot.StorageWeb,
		FileStem: stem[1],
		WebID:    id,
		GenTime:  details.genTime,
		FileHash: details.fileHash,
	}
	if passwordLock {
		record.Password, err = c.seedPassword(ctx, query)
		if err != nil {
			return nil, err
		}
	}
	return record, nil
}

type seedDetails struct {
	genTime  time.Time
	fileHash []racebot.HashIcon
}

func (c *Client) seedDetails(ctx context.Context, query url.Values) (*seedDetails, error) {
	resp, err := c.gw.Get(ctx, c.baseURL+"/api/v2/seed/details", query)
	if err != nil {
		return nil, err
	}
	var raw struct {
		CreationTimestamp time.Time `json:"creationTimestamp"`
		// The settings log is JSON nested inside a JSON string.
		SettingsLog string `json:"settingsLog"`
	}
	if err := gateway.DecodeJSON(resp, &raw); err != nil {
		return nil, err
	}
	var log struct {
		FileHash []string `json:"file_hash"`
	}
	if err := json.Unmarshal([]byte(raw.SettingsLog), &log); err != nil {
		return nil, fmt.Errorf("decoding settings log: %w", err)
	}
	details := &seedDetails{genTime: raw.CreationTimestamp}
	for _, name := range log.FileHash {
		icon, ok := racebot.ParseHashIcon(name)
		if !ok {
			return nil, fmt.Errorf("unknown hash icon %q", name)
		}
		details.fileHash = append(details.fileHash, icon)
	}
	return details, nil
}

func (c *Client) seedPassword(ctx context.Context, query url.Values) ([]racebot.OcarinaNote, error) {
	resp, err := c.gw.Get(ctx, c.baseURL+"/api/v2/seed/pw", query)
	if err != nil {
		return nil, err
	}
	var raw struct {
		Pw []string `json:"pw"`
	}
	if err := gateway.DecodeJSON(resp, &raw); err != nil {
		return nil, err
	}
	notes := make([]racebot.OcarinaNote, 0, len(raw.Pw))
	for _, s := range raw.Pw {
		note, ok := racebot.ParseOcarinaNote(s)
		if !ok {
			return nil, fmt.Errorf("unknown ocarina note %q", s)
		}
		notes = append(notes, note)
	}
	return notes, nil
}

// PatchFileStem resolves the patch file name of an already generated
// seed without downloading it.
func (c *Client) PatchFileStem(ctx context.Context, id int64) (string, error) {
	resp, err := c.gw.Head(ctx, c.baseURL+"/api/v2/seed/patch", url.Values{
		"key": {c.apiKey},
		"id":  {fmt.Sprint(id)},
	})
	if err != nil {
		return "", err
	}
	resp.Body.Close()
	if err := gateway.ErrorForStatus(resp); err != nil {
		return "", err
	}
	m := attachmentRe.FindStringSubmatch(resp.Header.Get("Content-Disposition"))
	if m == nil {
		return "", racebot.ErrPatchHeader
	}
	stem := patchStemRe.FindStringSubmatch(m[1])
	if stem == nil {
		return "", racebot.ErrPatchHeader
	}
	return stem[1], nil
}

// SpoilerLog downloads the spoiler log of an unlocked seed, verbatim
// as the service serves it.
func (c *Client) SpoilerLog(ctx context.Context, id int64) ([]byte, error) {
	resp, err := c.gw.Get(ctx, c.baseURL+"/api/v2/seed/details", url.Values{
		"key": {c.apiKey},
		"id":  {fmt.Sprint(id)},
	})
	if err != nil {
		return nil, err
	}
	var raw struct {
		SpoilerLog string `json:"spoilerLog"`
	}
	if err := gateway.DecodeJSON(resp, &raw); err != nil {
		return nil, err
	}
	return []byte(raw.SpoilerLog), nil
}

// UnlockSpoilerLog makes a seed's spoiler log publicly visible on the
// service. Unlocking an already unlocked seed is not an error.
func (c *Client) UnlockSpoilerLog(ctx context.Context, id int64) error {
	resp, err := c.gw.Post(ctx, c.baseURL+"/api/v2/seed/unlock", url.Values{
		"key": {c.apiKey},
		"id":  {fmt.Sprint(id)},
	}, nil, 0)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return gateway.ErrorForStatus(resp)
}

// SeedPageURL is the public page for a web seed, used in user-facing
// error and announcement messages.
func (c *Client) SeedPageURL(id int64) string {
	return fmt.Sprintf("%s/seed/get?id=%d", c.baseURL, id)
}

func (c *Client) seedPageURL(id int64) string {
	if id == 0 {
		return ""
	}
	return c.SeedPageURL(id)
}

// gateProgress adapts a roll reporter to the gate's progress callbacks.
type gateProgress struct {
	report source.Reporter
}

func (p gateProgress) Queued(pos int)       { p.report.Queued(pos) }
func (p gateProgress) MovedForward(pos int) { p.report.MovedForward(pos) }

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
