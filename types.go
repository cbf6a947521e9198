package racebot

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// UnlockPolicy controls when the spoiler log of a seed becomes visible to
// race participants.
type UnlockPolicy int

const (
	// UnlockNow makes the spoiler log available as soon as the seed is rolled.
	UnlockNow UnlockPolicy = iota

	// UnlockAfter hides the spoiler log until the race finishes or is cancelled.
	UnlockAfter

	// UnlockProgression hides the full log permanently; only a progression
	// spoiler is ever published. Seeds with this policy can never be rolled
	// on the web service.
	UnlockProgression

	// UnlockNever hides the spoiler log permanently.
	UnlockNever
)

func (p UnlockPolicy) String() string {
	switch p {
	case UnlockNow:
		return "now"
	case UnlockAfter:
		return "after"
	case UnlockProgression:
		return "progression"
	case UnlockNever:
		return "never"
	default:
		return fmt.Sprintf("UnlockPolicy(%d)", int(p))
	}
}

// PrerollMode controls how far ahead of the race start a seed may be rolled.
// Remote seed IDs are sequential, so rolling at a predictable instant lets
// anyone who knows the roll time guess nearby seeds. Randomizing the roll
// start defeats this for rooms opened far in advance.
type PrerollMode int

const (
	// PrerollNone waits until the deadline and rolls exactly then.
	PrerollNone PrerollMode = iota

	// PrerollShort starts rolling at a random point within the last five
	// minutes before the deadline.
	PrerollShort

	// PrerollMedium starts rolling at a random point between now and fifteen
	// minutes before the deadline.
	PrerollMedium

	// PrerollLong starts rolling immediately. Used for goals whose seeds are
	// extremely likely to need many attempts, and for the preroll cache.
	PrerollLong
)

// Branch identifies a development branch of the randomizer.
type Branch string

const (
	BranchDev      Branch = "Dev"
	BranchDevR     Branch = "DevR"
	BranchDevFenhl Branch = "DevFenhl"
	BranchRelease  Branch = "Release"
)

// WebName returns the branch name the web API uses, or false if the branch
// is not available on web in the requested mode. Releases are listed under
// "master" by the API.
func (b Branch) WebName(randomSettings bool) (string, bool) {
	switch b {
	case BranchDev:
		if randomSettings {
			return "", false
		}
		return "dev", true
	case BranchDevR:
		if randomSettings {
			return "devRSL", true
		}
		return "devR", true
	case BranchDevFenhl:
		if randomSettings {
			return "devFenhlRSL", true
		}
		return "devFenhl", true
	case BranchRelease:
		return "master", true
	default:
		return "", false
	}
}

// Version is a fully qualified randomizer version. Supplementary is zero for
// release and dev versions, nonzero for branch builds.
type Version struct {
	Branch        Branch
	Major         int
	Minor         int
	Patch         int
	Supplementary int
}

func (v Version) String() string {
	if v.Supplementary != 0 {
		return fmt.Sprintf("%d.%d.%d-%d", v.Major, v.Minor, v.Patch, v.Supplementary)
	}
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// WebString returns the version string to pass to the web API's create-seed
// call, or false if the branch is not available on web in the requested mode.
func (v Version) WebString(randomSettings bool) (string, bool) {
	name, ok := v.Branch.WebName(randomSettings)
	if !ok {
		return "", false
	}
	if v.Branch == BranchRelease {
		return v.String(), true
	}
	return fmt.Sprintf("%s_%s", name, v.String()), true
}

// IsRelease reports whether this is a tagged release version.
func (v Version) IsRelease() bool {
	return v.Branch == BranchRelease
}

var versionRe = regexp.MustCompile(`^([0-9]+)\.([0-9]+)\.([0-9]+)(?:-([0-9]+))?$`)

// ParseVersion parses "major.minor.patch" or "major.minor.patch-supplementary"
// as returned by the web API's version endpoint. The branch must be supplied
// by the caller since the endpoint reports versions per branch. The endpoint
// occasionally returns malformed content, so parse failures are expected and
// reported as errors rather than panics.
func ParseVersion(branch Branch, s string) (Version, error) {
	m := versionRe.FindStringSubmatch(s)
	if m == nil {
		return Version{}, fmt.Errorf("randomizer version in unexpected format: %q", s)
	}
	v := Version{Branch: branch}
	v.Major, _ = strconv.Atoi(m[1])
	v.Minor, _ = strconv.Atoi(m[2])
	v.Patch, _ = strconv.Atoi(m[3])
	if m[4] != "" {
		v.Supplementary, _ = strconv.Atoi(m[4])
	}
	return v, nil
}

// BranchRefKind discriminates BranchRef.
type BranchRefKind int

const (
	// BranchRefPinned requests one exact version.
	BranchRefPinned BranchRefKind = iota

	// BranchRefLatest requests whatever a branch currently ships.
	BranchRefLatest

	// BranchRefCustom requests the head of a branch in a fork. Never
	// available on web.
	BranchRefCustom
)

// BranchRef names the randomizer version or branch a seed should be rolled on.
type BranchRef struct {
	Kind    BranchRefKind
	Version Version // Pinned
	Branch  Branch  // Latest
	Owner   string  // Custom: fork owner
	Custom  string  // Custom: branch name in the fork
}

// Pinned returns a reference to one exact version.
func Pinned(v Version) BranchRef {
	return BranchRef{Kind: BranchRefPinned, Version: v}
}

// Latest returns a reference to the newest build of a branch.
func Latest(b Branch) BranchRef {
	return BranchRef{Kind: BranchRefLatest, Branch: b}
}

// Custom returns a reference to a branch in a fork of the generator.
func Custom(owner, branch string) BranchRef {
	return BranchRef{Kind: BranchRefCustom, Owner: owner, Custom: branch}
}

func (r BranchRef) String() string {
	switch r.Kind {
	case BranchRefPinned:
		return fmt.Sprintf("%s %s", r.Version.Branch, r.Version)
	case BranchRefLatest:
		return fmt.Sprintf("latest %s", r.Branch)
	case BranchRefCustom:
		return fmt.Sprintf("%s/%s", r.Owner, r.Custom)
	default:
		return fmt.Sprintf("BranchRef(%d)", int(r.Kind))
	}
}

// Settings is a resolved randomizer settings document. It is passed through
// to the generator unchanged; the orchestrator only inspects the keys below.
type Settings map[string]any

// WorldCount returns the world_count setting, defaulting to 1. Numeric types
// are normalized since settings documents round-trip through JSON.
func (s Settings) WorldCount() int {
	switch n := s["world_count"].(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case json.Number:
		v, err := n.Int64()
		if err != nil {
			return 1
		}
		return int(v)
	default:
		return 1
	}
}

// PasswordLock returns the password_lock setting, defaulting to false.
func (s Settings) PasswordLock() bool {
	b, _ := s["password_lock"].(bool)
	return b
}

// HashIcon is one of the icons the generator displays on the file select
// screen so entrants can confirm they patched the same seed.
type HashIcon string

const (
	IconDekuStick       HashIcon = "Deku Stick"
	IconDekuNut         HashIcon = "Deku Nut"
	IconBow             HashIcon = "Bow"
	IconSlingshot       HashIcon = "Slingshot"
	IconFairyOcarina    HashIcon = "Fairy Ocarina"
	IconBombchu         HashIcon = "Bombchu"
	IconLongshot        HashIcon = "Longshot"
	IconBoomerang       HashIcon = "Boomerang"
	IconLensOfTruth     HashIcon = "Lens of Truth"
	IconBeans           HashIcon = "Beans"
	IconMegatonHammer   HashIcon = "Megaton Hammer"
	IconBottledFish     HashIcon = "Bottled Fish"
	IconBottledMilk     HashIcon = "Bottled Milk"
	IconMaskOfTruth     HashIcon = "Mask of Truth"
	IconSoldOut         HashIcon = "SOLD OUT"
	IconCucco           HashIcon = "Cucco"
	IconMushroom        HashIcon = "Mushroom"
	IconSaw             HashIcon = "Saw"
	IconFrog            HashIcon = "Frog"
	IconMasterSword     HashIcon = "Master Sword"
	IconMirrorShield    HashIcon = "Mirror Shield"
	IconKokiriTunic     HashIcon = "Kokiri Tunic"
	IconHoverBoots      HashIcon = "Hover Boots"
	IconSilverGauntlets HashIcon = "Silver Gauntlets"
	IconGoldScale       HashIcon = "Gold Scale"
	IconStoneOfAgony    HashIcon = "Stone of Agony"
	IconSkullToken      HashIcon = "Skull Token"
	IconHeartContainer  HashIcon = "Heart Container"
	IconBossKey         HashIcon = "Boss Key"
	IconCompass         HashIcon = "Compass"
	IconMap             HashIcon = "Map"
	IconBigMagic        HashIcon = "Big Magic"
)

var hashIcons = map[string]HashIcon{}

func init() {
	for _, icon := range []HashIcon{
		IconDekuStick, IconDekuNut, IconBow, IconSlingshot, IconFairyOcarina,
		IconBombchu, IconLongshot, IconBoomerang, IconLensOfTruth, IconBeans,
		IconMegatonHammer, IconBottledFish, IconBottledMilk, IconMaskOfTruth,
		IconSoldOut, IconCucco, IconMushroom, IconSaw, IconFrog,
		IconMasterSword, IconMirrorShield, IconKokiriTunic, IconHoverBoots,
		IconSilverGauntlets, IconGoldScale, IconStoneOfAgony, IconSkullToken,
		IconHeartContainer, IconBossKey, IconCompass, IconMap, IconBigMagic,
	} {
		hashIcons[string(icon)] = icon
	}
}

// ParseHashIcon parses the display name of a hash icon as it appears in the
// generator's settings log and on third-party seed pages.
func ParseHashIcon(s string) (HashIcon, bool) {
	icon, ok := hashIcons[s]
	return icon, ok
}

// OcarinaNote is one note of a seed password.
type OcarinaNote byte

const (
	NoteA      OcarinaNote = 'A'
	NoteCUp    OcarinaNote = '^'
	NoteCDown  OcarinaNote = 'v'
	NoteCLeft  OcarinaNote = '<'
	NoteCRight OcarinaNote = '>'
)

// ParseOcarinaNote parses a note from the password endpoint, which
// serves the single-character forms, or from a spelled-out name.
func ParseOcarinaNote(s string) (OcarinaNote, bool) {
	switch s {
	case "A":
		return NoteA, true
	case "^", "C-up", "Cup":
		return NoteCUp, true
	case "v", "C-down", "Cdown":
		return NoteCDown, true
	case "<", "C-left", "Cleft":
		return NoteCLeft, true
	case ">", "C-right", "Cright":
		return NoteCRight, true
	default:
		return 0, false
	}
}

// StorageKind discriminates where the files of a rolled seed live.
type StorageKind string

const (
	// StorageLocal means the patch (and possibly a locked spoiler log) sit in
	// this host's public seed directory.
	StorageLocal StorageKind = "local"

	// StorageWeb means the seed is hosted by the seed-generation web service
	// under a numeric ID.
	StorageWeb StorageKind = "web"

	// StorageThirdParty means the seed is hosted by the third-party generator
	// under an opaque UUID.
	StorageThirdParty StorageKind = "third_party"

	// StorageThirdPartyDaily means the seed is a third-party seed of the day,
	// identified by date and ordinal.
	StorageThirdPartyDaily StorageKind = "third_party_daily"
)

// WebRetention is how long the web service keeps generated seeds before
// deleting them.
const WebRetention = 60 * 24 * time.Hour

// SeedRecord is the result of a successful roll, persisted per race.
type SeedRecord struct {
	Storage StorageKind

	// FileStem names the patch file without its extension. Set for local and
	// web seeds.
	FileStem string

	// LockedSpoilerPath is where a locally rolled seed's spoiler log waits
	// while the race is in progress. Cleared when the log is unlocked.
	LockedSpoilerPath string

	// WebID and GenTime identify a web-hosted seed.
	WebID   int64
	GenTime time.Time

	// ThirdPartyID identifies a third-party-hosted seed.
	ThirdPartyID uuid.UUID

	// DailyDate and DailyOrdinal identify a third-party seed of the day.
	DailyDate    time.Time
	DailyOrdinal int

	// FileHash is the 5-icon spoiler hash, when known.
	FileHash []HashIcon

	// Password is the 6-note seed password, when one was requested.
	Password []OcarinaNote
}

// SeedRequest describes one roll. It is created once per attempt and never
// mutated.
type SeedRequest struct {
	Version        BranchRef
	Settings       Settings
	Worlds         int
	Unlock         UnlockPolicy
	RandomSettings bool

	// NotBefore is the earliest instant the seed may be announced, normally
	// the race start minus a lead window. Zero means no deadline.
	NotBefore time.Time

	Preroll PrerollMode

	// LocalOnly forces the local generator even when the web service
	// could take the roll, used for plandos and other uploads the
	// service rejects.
	LocalOnly bool
}

// NewSeedRequest builds a request, deriving the world count from settings.
func NewSeedRequest(version BranchRef, settings Settings, unlock UnlockPolicy) SeedRequest {
	return SeedRequest{
		Version:  version,
		Settings: settings,
		Worlds:   settings.WorldCount(),
		Unlock:   unlock,
	}
}

// UpdateKind discriminates SeedRollUpdate.
type UpdateKind int

const (
	// UpdateQueued: the seed rollers are busy and the request has been queued
	// at the given position.
	UpdateQueued UpdateKind = iota

	// UpdateMovedForward: a request ahead of this one finished; Position is
	// the new zero-based queue position.
	UpdateMovedForward

	// UpdateStarted: the request cleared the queue and is now being rolled.
	UpdateStarted

	// UpdateDone: the seed was rolled successfully; Seed is set.
	UpdateDone

	// UpdateError: rolling failed; Err is set.
	UpdateError
)

// SeedRollUpdate is emitted by the orchestrator on a single-producer,
// single-consumer ordered channel, one channel per request.
type SeedRollUpdate struct {
	Kind     UpdateKind
	Position int
	Seed     *SeedRecord
	Err      error
}

// Queued builds a queue-entry update.
func Queued(pos int) SeedRollUpdate { return SeedRollUpdate{Kind: UpdateQueued, Position: pos} }

// MovedForward builds a queue-movement update.
func MovedForward(pos int) SeedRollUpdate {
	return SeedRollUpdate{Kind: UpdateMovedForward, Position: pos}
}

// Started builds a roll-started update.
func Started() SeedRollUpdate { return SeedRollUpdate{Kind: UpdateStarted} }

// Done builds a terminal success update.
func Done(seed *SeedRecord) SeedRollUpdate { return SeedRollUpdate{Kind: UpdateDone, Seed: seed} }

// Failed builds a terminal failure update.
func Failed(err error) SeedRollUpdate { return SeedRollUpdate{Kind: UpdateError, Err: err} }

// RaceStatus is the externally observed status of a race room.
type RaceStatus string

const (
	RaceStatusOpen         RaceStatus = "open"
	RaceStatusInvitational RaceStatus = "invitational"
	RaceStatusPending      RaceStatus = "pending"
	RaceStatusInProgress   RaceStatus = "in_progress"
	RaceStatusFinished     RaceStatus = "finished"
	RaceStatusCancelled    RaceStatus = "cancelled"
)

// HasStarted reports whether entrants can no longer change pre-race state
// such as the settings draft.
func (s RaceStatus) HasStarted() bool {
	switch s {
	case RaceStatusOpen, RaceStatusInvitational:
		return false
	default:
		return true
	}
}

// IsOver reports whether the race has reached a terminal status.
func (s RaceStatus) IsOver() bool {
	return s == RaceStatusFinished || s == RaceStatusCancelled
}
