package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/midoshouse/racebot"
	"github.com/midoshouse/racebot/gate"
	"github.com/midoshouse/racebot/gateway"
	"github.com/midoshouse/racebot/source"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{
		Gateway:      gateway.New(gateway.Config{Spacing: time.Millisecond}),
		Gate:         gate.New(2),
		APIKey:       "test-key",
		BaseURL:      srv.URL,
		SeedDir:      t.TempDir(),
		PollInterval: time.Millisecond,
	})
}

func pinnedRelease(major, minor, patch int) racebot.BranchRef {
	return racebot.Pinned(racebot.Version{Branch: racebot.BranchRelease, Major: major, Minor: minor, Patch: patch})
}

func TestCanRoll_RejectsIneligibleRequests(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("eligibility should be decided without calling the API")
	}))

	req := racebot.SeedRequest{Version: pinnedRelease(8, 2, 0), Worlds: 4}
	assert.Nil(t, c.CanRoll(context.Background(), req), "more than 3 worlds")

	req = racebot.SeedRequest{Version: pinnedRelease(8, 2, 0), Worlds: 1, Unlock: racebot.UnlockProgression}
	assert.Nil(t, c.CanRoll(context.Background(), req), "progression spoiler unlock")

	req = racebot.SeedRequest{Version: racebot.Custom("somefork", "main"), Worlds: 1}
	assert.Nil(t, c.CanRoll(context.Background(), req), "custom fork")

	req = racebot.SeedRequest{
		Version:        racebot.Pinned(racebot.Version{Branch: racebot.BranchDev, Major: 8, Minor: 1, Patch: 0}),
		Worlds:         1,
		RandomSettings: true,
	}
	assert.Nil(t, c.CanRoll(context.Background(), req), "random settings on a branch without an RSL web variant")
}

func TestCanRoll_KnownGoodVersionSkipsVersionEndpoint(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("known-good versions must not hit the version endpoint")
	}))

	v := racebot.Version{Branch: racebot.BranchDevR, Major: 7, Minor: 1, Patch: 83, Supplementary: 1}
	got := c.CanRoll(context.Background(), racebot.SeedRequest{Version: racebot.Pinned(v), Worlds: 1})
	require.NotNil(t, got)
	assert.Equal(t, v, *got)
}

func TestCanRoll_ConsultsVersionEndpoint(t *testing.T) {
	var gotBranch string
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/version", r.URL.Path)
		gotBranch = r.URL.Query().Get("branch")
		json.NewEncoder(w).Encode(map[string]any{
			"currentlyActiveVersion": "8.2.50",
			"availableVersions":      []string{"8.2.50", "8.2.46"},
		})
	}))

	v := racebot.Version{Branch: racebot.BranchDev, Major: 8, Minor: 2, Patch: 46}
	got := c.CanRoll(context.Background(), racebot.SeedRequest{Version: racebot.Pinned(v), Worlds: 1})
	require.NotNil(t, got)
	assert.Equal(t, v, *got)
	assert.Equal(t, "dev", gotBranch)

	v.Patch = 40 // not listed
	assert.Nil(t, c.CanRoll(context.Background(), racebot.SeedRequest{Version: racebot.Pinned(v), Worlds: 1}))
}

func TestCanRoll_LatestUsesCurrentlyActiveVersion(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"currentlyActiveVersion": "8.2.50",
			"availableVersions":      []string{"8.2.50"},
		})
	}))

	got := c.CanRoll(context.Background(), racebot.SeedRequest{Version: racebot.Latest(racebot.BranchDev), Worlds: 1})
	require.NotNil(t, got)
	assert.Equal(t, racebot.Version{Branch: racebot.BranchDev, Major: 8, Minor: 2, Patch: 50}, *got)
}

// seedService scripts the service's responses for a full roll.
type seedService struct {
	t             *testing.T
	statuses      []int // returned by successive status polls; -1 means HTTP 204
	creates       int
	statusIndex   int
	patchFileName string
}

func (s *seedService) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/seed/create", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(s.t, http.MethodPost, r.Method)
		assert.Equal(s.t, "test-key", r.URL.Query().Get("key"))
		s.creates++
		fmt.Fprintf(w, `{"id": "%d"}`, 1000+s.creates)
	})
	mux.HandleFunc("/api/v2/seed/status", func(w http.ResponseWriter, r *http.Request) {
		require.Less(s.t, s.statusIndex, len(s.statuses), "unexpected extra status poll")
		code := s.statuses[s.statusIndex]
		s.statusIndex++
		if code == -1 {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		fmt.Fprintf(w, `{"status": %d}`, code)
	})
	mux.HandleFunc("/api/v2/seed/details", func(w http.ResponseWriter, r *http.Request) {
		log, _ := json.Marshal(map[string]any{
			"file_hash": []string{"Deku Stick", "Bow", "Slingshot", "SOLD OUT", "Frog"},
		})
		json.NewEncoder(w).Encode(map[string]any{
			"creationTimestamp": time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
			"settingsLog":       string(log),
		})
	})
	mux.HandleFunc("/api/v2/seed/patch", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", "attachment; filename="+s.patchFileName)
		w.Write([]byte("patch-bytes"))
	})
	mux.HandleFunc("/api/v2/seed/pw", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"pw": []string{"A", "^", "v", "<", ">", "A"}})
	})
	return mux
}

func TestRoll_Success(t *testing.T) {
	svc := &seedService{t: t, statuses: []int{-1, 0, 1}, patchFileName: "OoT_F1R3_12345.zpf"}
	c := testClient(t, svc.handler())

	req := racebot.NewSeedRequest(pinnedRelease(8, 2, 0), racebot.Settings{"world_count": 1}, racebot.UnlockAfter)
	seed, err := c.Roll(context.Background(), req, source.NopReporter{})
	require.NoError(t, err)

	assert.Equal(t, racebot.StorageWeb, seed.Storage)
	assert.Equal(t, "OoT_F1R3_12345", seed.FileStem)
	assert.Equal(t, int64(1001), seed.WebID)
	assert.Len(t, seed.FileHash, 5)
	assert.Empty(t, seed.Password)
	assert.Equal(t, 1, svc.creates)
	assert.FileExists(t, filepath.Join(c.seedDir, "OoT_F1R3_12345.zpf"))
}

func TestRoll_PasswordLock(t *testing.T) {
	svc := &seedService{t: t, statuses: []int{1}, patchFileName: "OoT_PW_1.zpf"}
	c := testClient(t, svc.handler())

	req := racebot.NewSeedRequest(pinnedRelease(8, 2, 0), racebot.Settings{"password_lock": true}, racebot.UnlockAfter)
	seed, err := c.Roll(context.Background(), req, source.NopReporter{})
	require.NoError(t, err)
	require.Len(t, seed.Password, 6)
	assert.Equal(t, []racebot.OcarinaNote{
		racebot.NoteA, racebot.NoteCUp, racebot.NoteCDown,
		racebot.NoteCLeft, racebot.NoteCRight, racebot.NoteA,
	}, seed.Password)
}

func TestRoll_ThreeFailuresWithoutDeadlineStopRetrying(t *testing.T) {
	svc := &seedService{t: t, statuses: []int{3, 3, 3}}
	c := testClient(t, svc.handler())

	req := racebot.NewSeedRequest(pinnedRelease(8, 2, 0), racebot.Settings{}, racebot.UnlockAfter)
	_, err := c.Roll(context.Background(), req, source.NopReporter{})
	var retryErr *racebot.RetryError
	require.ErrorAs(t, err, &retryErr)
	assert.Equal(t, 3, retryErr.NumRetries)
	assert.Contains(t, retryErr.LastError, "/seed/get?id=1003")
	assert.Equal(t, 3, svc.creates)
}

func TestRoll_KeepsRetryingUntilDeadline(t *testing.T) {
	svc := &seedService{t: t, statuses: []int{3, 3, 3, 3, 1}, patchFileName: "OoT_LATE_1.zpf"}
	c := testClient(t, svc.handler())

	// Hold the deadline open past the bounded attempts, then let it lapse.
	calls := 0
	base := time.Now()
	c.now = func() time.Time {
		calls++
		if calls <= 2 {
			return base
		}
		return base.Add(time.Hour)
	}

	req := racebot.NewSeedRequest(pinnedRelease(8, 2, 0), racebot.Settings{}, racebot.UnlockAfter)
	req.NotBefore = base.Add(30 * time.Minute)
	seed, err := c.Roll(context.Background(), req, source.NopReporter{})
	require.NoError(t, err)
	assert.Equal(t, 5, svc.creates)
	assert.Equal(t, int64(1005), seed.WebID)
}

func TestRoll_UnknownSeedStatusIsFatal(t *testing.T) {
	svc := &seedService{t: t, statuses: []int{7}}
	c := testClient(t, svc.handler())

	req := racebot.NewSeedRequest(pinnedRelease(8, 2, 0), racebot.Settings{}, racebot.UnlockAfter)
	_, err := c.Roll(context.Background(), req, source.NopReporter{})
	var statusErr *racebot.SeedStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, 7, statusErr.Status)
	assert.Equal(t, 1, svc.creates)
}

func TestRoll_EncryptedReleaseUsesEncryptionKey(t *testing.T) {
	var gotQuery map[string][]string
	svc := &seedService{t: t, statuses: []int{1}, patchFileName: "OoT_ENC_1.zpfz"}
	handler := svc.handler()
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v2/seed/create" {
			gotQuery = r.URL.Query()
			svc.creates++
			fmt.Fprintf(w, `{"id": "%d"}`, 1000+svc.creates)
			return
		}
		handler.ServeHTTP(w, r)
	}))
	c.encryptKey = "encrypt-key"
	c.apiKey = "test-key"

	req := racebot.NewSeedRequest(pinnedRelease(8, 2, 0), racebot.Settings{}, racebot.UnlockNever)
	seed, err := c.Roll(context.Background(), req, source.NopReporter{})
	require.NoError(t, err)
	assert.Equal(t, "OoT_ENC_1", seed.FileStem)
	require.NotNil(t, gotQuery)
	assert.Equal(t, []string{"encrypt-key"}, gotQuery["key"])
	assert.Equal(t, []string{"true"}, gotQuery["encrypt"])
	assert.NotContains(t, gotQuery, "locked")
}

func TestRoll_NonReleaseNeverRequestsLockedFalseOnlyForUnlockNow(t *testing.T) {
	for _, tc := range []struct {
		unlock racebot.UnlockPolicy
		locked string
	}{
		{racebot.UnlockNow, "false"},
		{racebot.UnlockAfter, "true"},
		{racebot.UnlockNever, "true"},
	} {
		var gotLocked string
		svc := &seedService{t: t, statuses: []int{1}, patchFileName: "OoT_L_1.zpf"}
		handler := svc.handler()
		c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/api/v2/seed/create" {
				gotLocked = r.URL.Query().Get("locked")
			}
			handler.ServeHTTP(w, r)
		}))

		version := racebot.Pinned(racebot.Version{Branch: racebot.BranchDev, Major: 8, Minor: 2, Patch: 50})
		req := racebot.NewSeedRequest(version, racebot.Settings{}, tc.unlock)
		_, err := c.Roll(context.Background(), req, source.NopReporter{})
		require.NoError(t, err, "unlock=%v", tc.unlock)
		assert.Equal(t, tc.locked, gotLocked, "unlock=%v", tc.unlock)
	}
}

func TestRoll_CancelledWhileQueuedReturnsContextError(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should be issued while queued")
	}))
	// Fill the gate so the roll queues.
	p1, err := c.gate.Acquire(context.Background(), gate.NopProgress{})
	require.NoError(t, err)
	defer p1.Release()
	p2, err := c.gate.Acquire(context.Background(), gate.NopProgress{})
	require.NoError(t, err)
	defer p2.Release()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	req := racebot.NewSeedRequest(pinnedRelease(8, 2, 0), racebot.Settings{"world_count": 3}, racebot.UnlockAfter)
	_, err = c.Roll(ctx, req, source.NopReporter{})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestPatchFileStem(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodHead, r.Method)
		require.Equal(t, "/api/v2/seed/patch", r.URL.Path)
		w.Header().Set("Content-Disposition", "attachment; filename=OoT_ABCDE_99.zpfz")
	}))
	stem, err := c.PatchFileStem(context.Background(), 99)
	require.NoError(t, err)
	assert.Equal(t, "OoT_ABCDE_99", stem)
}

func TestUnlockSpoilerLog(t *testing.T) {
	var unlocked []string
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v2/seed/unlock", r.URL.Path)
		unlocked = append(unlocked, r.URL.Query().Get("id"))
	}))
	require.NoError(t, c.UnlockSpoilerLog(context.Background(), 42))
	assert.Equal(t, []string{"42"}, unlocked)
}
