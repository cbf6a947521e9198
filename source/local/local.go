// Package local rolls seeds by running the randomizer generator on
// this host. It is the fallback for requests the web service cannot
// take: too many worlds, progression spoilers, custom branches, or
// versions the service no longer hosts.
package local

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/midoshouse/racebot"
	"github.com/midoshouse/racebot/source"
)

const boundedAttempts = 3

// Generator output markers. The generator reports artifact locations on
// stderr; the patch marker differs between solo and multiworld.
const (
	patchMarkerSolo       = "Creating Patch File: "
	patchMarkerMultiworld = "Created patch file archive at: "
	spoilerMarker         = "Created spoiler log at: "
)

// branchOwner maps a generator branch to the fork hosting it.
var branchOwner = map[racebot.Branch]string{
	racebot.BranchDev:      "OoTRandomizer",
	racebot.BranchRelease:  "OoTRandomizer",
	racebot.BranchDevR:     "Roman971",
	racebot.BranchDevFenhl: "fenhl",
}

// Runner executes external commands. Tests substitute a fake.
type Runner interface {
	// Run executes name with args in dir, feeding stdin if non-nil, and
	// returns captured stdout and stderr. A non-zero exit is an error
	// with both streams still populated.
	Run(ctx context.Context, dir, name string, args []string, stdin []byte) (stdout, stderr []byte, err error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, dir, name string, args []string, stdin []byte) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Config carries the dependencies and paths for a local generator.
type Config struct {
	// SeedDir is the public directory patch files are moved into.
	SeedDir string

	// ReposDir is the root under which generator checkouts live, laid
	// out as <owner>/OoT-Randomizer/branch/<branch> or tag/<version>.
	ReposDir string

	// RomPath is the base rom handed to the generator.
	RomPath string

	// PALRomPath is the PAL rom, required for French and German seeds.
	PALRomPath string

	// Python is the interpreter used to run the generator. Defaults to
	// "python3".
	Python string

	// Runner overrides command execution, for tests.
	Runner Runner

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Generator rolls seeds with a local checkout of the randomizer.
type Generator struct {
	seedDir    string
	reposDir   string
	romPath    string
	palRomPath string
	python     string
	runner     Runner
	now        func() time.Time
}

var _ source.Source = (*Generator)(nil)

func New(cfg Config) *Generator {
	if cfg.Python == "" {
		cfg.Python = "python3"
	}
	if cfg.Runner == nil {
		cfg.Runner = ExecRunner{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Generator{
		seedDir:    cfg.SeedDir,
		reposDir:   cfg.ReposDir,
		romPath:    cfg.RomPath,
		palRomPath: cfg.PALRomPath,
		python:     cfg.Python,
		runner:     cfg.Runner,
		now:        cfg.Now,
	}
}

// Roll checks out the requested generator version, runs it until a seed
// generates or the attempt budget runs out, and moves the patch file
// into the public seed directory.
func (g *Generator) Roll(ctx context.Context, req racebot.SeedRequest, report source.Reporter) (*racebot.SeedRecord, error) {
	dir, err := g.ensureCheckout(ctx, req.Version)
	if err != nil {
		return nil, err
	}

	settings := make(racebot.Settings, len(req.Settings)+5)
	for k, v := range req.Settings {
		settings[k] = v
	}
	settings["rom"] = g.romPath
	if lang, _ := settings["language"].(string); lang == "french" || lang == "german" {
		if g.palRomPath == "" {
			return nil, fmt.Errorf("request needs a PAL rom for language %q but none is configured", lang)
		}
		settings["pal_rom"] = g.palRomPath
	}
	settings["create_patch_file"] = true
	settings["create_compressed_rom"] = false
	settings["create_spoiler"] = req.Unlock != racebot.UnlockNever
	stdin, err := json.Marshal(settings)
	if err != nil {
		return nil, err
	}

	var lastError string
	for attempt := 0; ; attempt++ {
		if attempt >= boundedAttempts && (req.NotBefore.IsZero() || !g.now().Before(req.NotBefore)) {
			return nil, &racebot.RetryError{NumRetries: attempt, LastError: lastError}
		}
		if attempt == 0 && !req.RandomSettings {
			report.Started()
		}

		_, stderr, err := g.runner.Run(ctx, dir, g.python, []string{"OoTRandomizer.py", "--no_log", "--settings=-"}, stdin)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err != nil {
			lastError = string(stderr)
			continue
		}
		return g.collect(dir, req, stderr)
	}
}

// collect locates the generated artifacts from the generator's stderr
// and moves the patch into the seed directory.
func (g *Generator) collect(dir string, req racebot.SeedRequest, stderr []byte) (*racebot.SeedRecord, error) {
	lines := strings.Split(string(stderr), "\n")

	patchMarker := patchMarkerSolo
	if req.Worlds > 1 {
		patchMarker = patchMarkerMultiworld
	}
	patchName, ok := lastWithPrefix(lines, patchMarker)
	if !ok {
		return nil, racebot.ErrPatchPath
	}
	patchPath := filepath.Join(dir, "Output", patchName)

	record := &racebot.SeedRecord{
		Storage:  racebot.StorageLocal,
		FileStem: strings.TrimSuffix(strings.TrimSuffix(patchName, ".zpfz"), ".zpf"),
	}

	if req.Unlock != racebot.UnlockNever {
		spoilerName, ok := lastWithPrefix(lines, spoilerMarker)
		if !ok {
			return nil, racebot.ErrSpoilerLogPath
		}
		record.LockedSpoilerPath = filepath.Join(dir, "Output", spoilerName)
		if hash, err := fileHashFromSpoiler(record.LockedSpoilerPath); err == nil {
			record.FileHash = hash
		}
	}

	if err := os.Rename(patchPath, filepath.Join(g.seedDir, patchName)); err != nil {
		return nil, err
	}
	return record, nil
}

// lastWithPrefix returns the suffix of the last line carrying prefix.
// The generator logs progress as it goes, so the last occurrence is the
// final artifact.
func lastWithPrefix(lines []string, prefix string) (string, bool) {
	for i := len(lines) - 1; i >= 0; i-- {
		if rest, ok := strings.CutPrefix(strings.TrimRight(lines[i], "\r"), prefix); ok {
			return rest, true
		}
	}
	return "", false
}

func fileHashFromSpoiler(path string) ([]racebot.HashIcon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var log struct {
		FileHash []string `json:"file_hash"`
	}
	if err := json.Unmarshal(data, &log); err != nil {
		return nil, err
	}
	hash := make([]racebot.HashIcon, 0, len(log.FileHash))
	for _, name := range log.FileHash {
		icon, ok := racebot.ParseHashIcon(name)
		if !ok {
			return nil, fmt.Errorf("unknown hash icon %q", name)
		}
		hash = append(hash, icon)
	}
	return hash, nil
}

// ensureCheckout makes sure the generator version is present on disk
// and returns its directory.
func (g *Generator) ensureCheckout(ctx context.Context, ref racebot.BranchRef) (string, error) {
	var owner, branch, dir string
	switch ref.Kind {
	case racebot.BranchRefPinned:
		v := ref.Version
		owner = branchOwner[v.Branch]
		branch = fmt.Sprintf("v%s", v)
		dir = filepath.Join(g.reposDir, owner, "OoT-Randomizer", "tag", v.String())
	case racebot.BranchRefLatest:
		owner = branchOwner[ref.Branch]
		name, okName := ref.Branch.WebName(false)
		if !okName {
			return "", fmt.Errorf("branch %s has no local checkout name", ref.Branch)
		}
		branch = name
		dir = filepath.Join(g.reposDir, owner, "OoT-Randomizer", "branch", name)
	case racebot.BranchRefCustom:
		owner = ref.Owner
		branch = ref.Custom
		dir = filepath.Join(g.reposDir, owner, "OoT-Randomizer", "branch", branch)
	default:
		return "", fmt.Errorf("unsupported version reference %s", ref)
	}
	if owner == "" {
		return "", fmt.Errorf("no known fork for %s", ref)
	}

	if _, err := os.Stat(dir); err == nil {
		// Tag checkouts are detached and never move; only branch
		// checkouts need refreshing.
		if ref.Kind != racebot.BranchRefPinned {
			if _, stderr, err := g.runner.Run(ctx, dir, "git", []string{"pull"}, nil); err != nil {
				return "", fmt.Errorf("git pull in %s: %w: %s", dir, err, stderr)
			}
		}
		return dir, nil
	}
	parent := filepath.Dir(dir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return "", err
	}
	cloneURL := fmt.Sprintf("https://github.com/%s/OoT-Randomizer.git", owner)
	args := []string{"clone", cloneURL, "--branch=" + branch, filepath.Base(dir)}
	if _, stderr, err := g.runner.Run(ctx, parent, "git", args, nil); err != nil {
		return "", fmt.Errorf("git clone %s: %w: %s", cloneURL, err, stderr)
	}
	return dir, nil
}
