package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/midoshouse/racebot"
	"github.com/midoshouse/racebot/source"
)

// fakeRunner scripts command invocations.
type fakeRunner struct {
	t *testing.T

	// perCommand handlers keyed by command name.
	handlers map[string]func(dir string, args []string, stdin []byte) (stdout, stderr []byte, err error)

	calls []fakeCall
}

type fakeCall struct {
	dir   string
	name  string
	args  []string
	stdin []byte
}

func (f *fakeRunner) Run(ctx context.Context, dir, name string, args []string, stdin []byte) ([]byte, []byte, error) {
	f.calls = append(f.calls, fakeCall{dir: dir, name: name, args: args, stdin: stdin})
	handler, ok := f.handlers[name]
	if !ok {
		f.t.Fatalf("unexpected command %s %v", name, args)
	}
	return handler(dir, args, stdin)
}

func testGenerator(t *testing.T, runner *fakeRunner) (*Generator, string, string) {
	t.Helper()
	seedDir := t.TempDir()
	reposDir := t.TempDir()
	g := New(Config{
		SeedDir:  seedDir,
		ReposDir: reposDir,
		RomPath:  "/roms/base.z64",
		Runner:   runner,
	})
	return g, seedDir, reposDir
}

// makeCheckout creates an existing checkout directory so rolls take the
// git-pull path.
func makeCheckout(t *testing.T, reposDir string, elem ...string) string {
	t.Helper()
	dir := filepath.Join(append([]string{reposDir}, elem...)...)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "Output"), 0o755))
	return dir
}

func writeSpoiler(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, "Output", name)
	data, err := json.Marshal(map[string]any{
		"file_hash": []string{"Deku Stick", "Bow", "Slingshot", "SOLD OUT", "Frog"},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func latestDev() racebot.BranchRef { return racebot.Latest(racebot.BranchDev) }

func TestRoll_SoloSeed(t *testing.T) {
	runner := &fakeRunner{t: t, handlers: map[string]func(string, []string, []byte) ([]byte, []byte, error){}}
	g, seedDir, reposDir := testGenerator(t, runner)
	checkout := makeCheckout(t, reposDir, "OoTRandomizer", "OoT-Randomizer", "branch", "dev")
	spoilerPath := writeSpoiler(t, checkout, "OoT_12345_Spoiler.json")

	runner.handlers["git"] = func(dir string, args []string, stdin []byte) ([]byte, []byte, error) {
		assert.Equal(t, []string{"pull"}, args)
		return nil, nil, nil
	}
	runner.handlers["python3"] = func(dir string, args []string, stdin []byte) ([]byte, []byte, error) {
		assert.Equal(t, checkout, dir)
		assert.Equal(t, []string{"OoTRandomizer.py", "--no_log", "--settings=-"}, args)

		var settings map[string]any
		require.NoError(t, json.Unmarshal(stdin, &settings))
		assert.Equal(t, true, settings["create_patch_file"])
		assert.Equal(t, false, settings["create_compressed_rom"])
		assert.Equal(t, true, settings["create_spoiler"])
		assert.Equal(t, "/roms/base.z64", settings["rom"])

		require.NoError(t, os.WriteFile(filepath.Join(dir, "Output", "OoT_12345.zpf"), []byte("patch"), 0o644))
		stderr := "Patching ROM.\nCreating Patch File: OoT_12345.zpf\nCreated spoiler log at: OoT_12345_Spoiler.json\n"
		return nil, []byte(stderr), nil
	}

	req := racebot.NewSeedRequest(latestDev(), racebot.Settings{"world_count": 1}, racebot.UnlockAfter)
	seed, err := g.Roll(context.Background(), req, source.NopReporter{})
	require.NoError(t, err)

	assert.Equal(t, racebot.StorageLocal, seed.Storage)
	assert.Equal(t, "OoT_12345", seed.FileStem)
	assert.Equal(t, spoilerPath, seed.LockedSpoilerPath)
	assert.Len(t, seed.FileHash, 5)
	assert.FileExists(t, filepath.Join(seedDir, "OoT_12345.zpf"))
	assert.NoFileExists(t, filepath.Join(checkout, "Output", "OoT_12345.zpf"))
}

func TestRoll_MultiworldUsesArchiveMarker(t *testing.T) {
	runner := &fakeRunner{t: t, handlers: map[string]func(string, []string, []byte) ([]byte, []byte, error){}}
	g, seedDir, reposDir := testGenerator(t, runner)
	checkout := makeCheckout(t, reposDir, "OoTRandomizer", "OoT-Randomizer", "branch", "dev")
	writeSpoiler(t, checkout, "OoT_MW_Spoiler.json")

	runner.handlers["git"] = func(string, []string, []byte) ([]byte, []byte, error) { return nil, nil, nil }
	runner.handlers["python3"] = func(dir string, args []string, stdin []byte) ([]byte, []byte, error) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "Output", "OoT_MW.zpfz"), []byte("mw"), 0o644))
		stderr := "Creating Patch File: OoT_MW_W1.zpf\nCreated patch file archive at: OoT_MW.zpfz\nCreated spoiler log at: OoT_MW_Spoiler.json\n"
		return nil, []byte(stderr), nil
	}

	req := racebot.NewSeedRequest(latestDev(), racebot.Settings{"world_count": 3}, racebot.UnlockAfter)
	seed, err := g.Roll(context.Background(), req, source.NopReporter{})
	require.NoError(t, err)
	assert.Equal(t, "OoT_MW", seed.FileStem)
	assert.FileExists(t, filepath.Join(seedDir, "OoT_MW.zpfz"))
}

func TestRoll_NoSpoilerWhenLockedForever(t *testing.T) {
	runner := &fakeRunner{t: t, handlers: map[string]func(string, []string, []byte) ([]byte, []byte, error){}}
	g, _, reposDir := testGenerator(t, runner)
	makeCheckout(t, reposDir, "OoTRandomizer", "OoT-Randomizer", "branch", "dev")

	runner.handlers["git"] = func(string, []string, []byte) ([]byte, []byte, error) { return nil, nil, nil }
	runner.handlers["python3"] = func(dir string, args []string, stdin []byte) ([]byte, []byte, error) {
		var settings map[string]any
		require.NoError(t, json.Unmarshal(stdin, &settings))
		assert.Equal(t, false, settings["create_spoiler"])

		require.NoError(t, os.WriteFile(filepath.Join(dir, "Output", "OoT_NS.zpf"), []byte("p"), 0o644))
		return nil, []byte("Creating Patch File: OoT_NS.zpf\n"), nil
	}

	req := racebot.NewSeedRequest(latestDev(), racebot.Settings{}, racebot.UnlockNever)
	seed, err := g.Roll(context.Background(), req, source.NopReporter{})
	require.NoError(t, err)
	assert.Empty(t, seed.LockedSpoilerPath)
	assert.Empty(t, seed.FileHash)
}

func TestRoll_RetriesThenGivesUp(t *testing.T) {
	runner := &fakeRunner{t: t, handlers: map[string]func(string, []string, []byte) ([]byte, []byte, error){}}
	g, _, reposDir := testGenerator(t, runner)
	makeCheckout(t, reposDir, "OoTRandomizer", "OoT-Randomizer", "branch", "dev")

	generations := 0
	runner.handlers["git"] = func(string, []string, []byte) ([]byte, []byte, error) { return nil, nil, nil }
	runner.handlers["python3"] = func(dir string, args []string, stdin []byte) ([]byte, []byte, error) {
		generations++
		return nil, []byte(fmt.Sprintf("Traceback: fill failed (run %d)", generations)), errors.New("exit status 1")
	}

	req := racebot.NewSeedRequest(latestDev(), racebot.Settings{}, racebot.UnlockAfter)
	_, err := g.Roll(context.Background(), req, source.NopReporter{})
	var retryErr *racebot.RetryError
	require.ErrorAs(t, err, &retryErr)
	assert.Equal(t, 3, retryErr.NumRetries)
	assert.Contains(t, retryErr.LastError, "run 3")
	assert.Equal(t, 3, generations)
}

func TestRoll_RecoversAfterFailure(t *testing.T) {
	runner := &fakeRunner{t: t, handlers: map[string]func(string, []string, []byte) ([]byte, []byte, error){}}
	g, _, reposDir := testGenerator(t, runner)
	checkout := makeCheckout(t, reposDir, "OoTRandomizer", "OoT-Randomizer", "branch", "dev")
	writeSpoiler(t, checkout, "OoT_R_Spoiler.json")

	generations := 0
	runner.handlers["git"] = func(string, []string, []byte) ([]byte, []byte, error) { return nil, nil, nil }
	runner.handlers["python3"] = func(dir string, args []string, stdin []byte) ([]byte, []byte, error) {
		generations++
		if generations == 1 {
			return nil, []byte("fill failed"), errors.New("exit status 1")
		}
		require.NoError(t, os.WriteFile(filepath.Join(dir, "Output", "OoT_R.zpf"), []byte("p"), 0o644))
		return nil, []byte("Creating Patch File: OoT_R.zpf\nCreated spoiler log at: OoT_R_Spoiler.json\n"), nil
	}

	req := racebot.NewSeedRequest(latestDev(), racebot.Settings{}, racebot.UnlockAfter)
	seed, err := g.Roll(context.Background(), req, source.NopReporter{})
	require.NoError(t, err)
	assert.Equal(t, "OoT_R", seed.FileStem)
	assert.Equal(t, 2, generations)
}

func TestEnsureCheckout_ClonesMissingCustomBranch(t *testing.T) {
	runner := &fakeRunner{t: t, handlers: map[string]func(string, []string, []byte) ([]byte, []byte, error){}}
	g, _, reposDir := testGenerator(t, runner)

	var cloneDir string
	var cloneArgs []string
	runner.handlers["git"] = func(dir string, args []string, stdin []byte) ([]byte, []byte, error) {
		cloneDir = dir
		cloneArgs = args
		return nil, nil, nil
	}

	dir, err := g.ensureCheckout(context.Background(), racebot.Custom("somefork", "tournament-fixes"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(reposDir, "somefork", "OoT-Randomizer", "branch", "tournament-fixes"), dir)
	assert.Equal(t, filepath.Join(reposDir, "somefork", "OoT-Randomizer", "branch"), cloneDir)
	require.NotEmpty(t, cloneArgs)
	assert.Equal(t, "clone", cloneArgs[0])
	assert.Contains(t, cloneArgs, "https://github.com/somefork/OoT-Randomizer.git")
	assert.Contains(t, cloneArgs, "--branch=tournament-fixes")
}

func TestEnsureCheckout_PinnedReuseSkipsPull(t *testing.T) {
	runner := &fakeRunner{t: t, handlers: map[string]func(string, []string, []byte) ([]byte, []byte, error){}}
	g, _, reposDir := testGenerator(t, runner)
	pinnedDir := makeCheckout(t, reposDir, "OoTRandomizer", "OoT-Randomizer", "tag", "8.1.29")
	makeCheckout(t, reposDir, "OoTRandomizer", "OoT-Randomizer", "branch", "dev")

	var gitArgs [][]string
	runner.handlers["git"] = func(dir string, args []string, stdin []byte) ([]byte, []byte, error) {
		gitArgs = append(gitArgs, args)
		return nil, nil, nil
	}

	// Tag checkouts are detached; a pull there would fail.
	ref := racebot.Pinned(racebot.Version{Branch: racebot.BranchDev, Major: 8, Minor: 1, Patch: 29})
	dir, err := g.ensureCheckout(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, pinnedDir, dir)
	assert.Empty(t, gitArgs)

	// Branch checkouts still refresh.
	_, err = g.ensureCheckout(context.Background(), latestDev())
	require.NoError(t, err)
	require.Len(t, gitArgs, 1)
	assert.Equal(t, []string{"pull"}, gitArgs[0])
}

func TestRoll_PALRomRequiredForFrench(t *testing.T) {
	runner := &fakeRunner{t: t, handlers: map[string]func(string, []string, []byte) ([]byte, []byte, error){
		"git": func(string, []string, []byte) ([]byte, []byte, error) { return nil, nil, nil },
	}}
	g, _, reposDir := testGenerator(t, runner)
	makeCheckout(t, reposDir, "OoTRandomizer", "OoT-Randomizer", "branch", "dev")

	req := racebot.NewSeedRequest(latestDev(), racebot.Settings{"language": "french"}, racebot.UnlockAfter)
	_, err := g.Roll(context.Background(), req, source.NopReporter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PAL rom")
}
