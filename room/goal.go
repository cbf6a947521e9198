package room

import (
	"strings"

	"github.com/midoshouse/racebot"
	"github.com/midoshouse/racebot/draft"
)

// Preset is a named, pre-resolved settings document requiring no draft.
type Preset struct {
	Name     string
	Display  string
	Settings racebot.Settings
}

// Goal describes the event context a race room runs under. It is
// supplied by the scheduling collaborator at room construction and
// never changes for the lifetime of the room.
type Goal struct {
	Name     string
	Language Language

	// DraftKind names the draft.Sequence for goals with a settings
	// draft, empty otherwise.
	DraftKind string

	Version racebot.BranchRef
	Preroll racebot.PrerollMode
	Unlock  racebot.UnlockPolicy

	// RandomSettings marks goals whose seeds come from the random
	// settings script rather than a fixed settings document.
	RandomSettings bool

	// Settings is the single settings document for goals that need
	// neither a draft nor a preset choice.
	Settings racebot.Settings

	// Presets are selectable by name as `!seed <name>`.
	Presets []Preset

	// ThirdParty routes rolls to the third-party generator instead of
	// the web service or local generator.
	ThirdParty bool

	// Article and Description shape roll announcements, e.g.
	// "Rolling a seed…" vs "Rolling a Triforce Blitz S3 seed…".
	Article     string
	Description string
}

// HasDraft reports whether the goal runs a settings draft.
func (g Goal) HasDraft() bool { return g.DraftKind != "" }

// Sequence resolves the goal's draft sequence.
func (g Goal) Sequence() (draft.Sequence, error) {
	return draft.SequenceByKind(g.DraftKind)
}

func (g Goal) preset(name string) *Preset {
	for i := range g.Presets {
		if strings.EqualFold(g.Presets[i].Name, name) {
			return &g.Presets[i]
		}
	}
	return nil
}

// PlanKind discriminates SeedPlan.
type PlanKind int

const (
	// PlanRoll: roll Settings on the web service or locally.
	PlanRoll PlanKind = iota

	// PlanThirdParty: roll on the third-party generator.
	PlanThirdParty

	// PlanStartDraft: begin the settings draft.
	PlanStartDraft

	// PlanPresets: reply with Msg followed by the preset list.
	PlanPresets

	// PlanReject: reply with Msg only.
	PlanReject
)

// SeedPlan is the parsed outcome of a `!seed` command.
type SeedPlan struct {
	Kind        PlanKind
	Settings    racebot.Settings
	Unlock      racebot.UnlockPolicy
	Description string
	Msg         string
}

// ParseSeedCommand turns `!seed` arguments into a plan. spoilerSeed is
// true for `!spoilerseed`, which forces the spoiler log open from the
// start.
func (g Goal) ParseSeedCommand(args []string, spoilerSeed bool) SeedPlan {
	unlock := g.Unlock
	if spoilerSeed {
		unlock = racebot.UnlockNow
	}

	if g.ThirdParty {
		return SeedPlan{Kind: PlanThirdParty, Unlock: unlock, Description: g.Description}
	}

	if len(args) > 0 {
		switch strings.ToLower(args[0]) {
		case "draft":
			if !g.HasDraft() {
				return SeedPlan{Kind: PlanReject, Msg: "this event doesn't have a settings draft"}
			}
			return SeedPlan{Kind: PlanStartDraft, Unlock: unlock}
		case "base":
			if g.HasDraft() {
				seq, err := g.Sequence()
				if err == nil {
					return SeedPlan{
						Kind:        PlanRoll,
						Settings:    seq.Resolve(draft.NewPicks()),
						Unlock:      unlock,
						Description: g.Description + " with the base settings",
					}
				}
			}
			if g.Settings != nil {
				return SeedPlan{Kind: PlanRoll, Settings: g.Settings, Unlock: unlock, Description: g.Description}
			}
		}
		if p := g.preset(args[0]); p != nil {
			return SeedPlan{
				Kind:        PlanRoll,
				Settings:    p.Settings,
				Unlock:      unlock,
				Description: g.Description + " (" + p.Display + ")",
			}
		}
		return SeedPlan{Kind: PlanPresets, Msg: "I don't recognize that preset"}
	}

	if g.HasDraft() {
		return SeedPlan{Kind: PlanReject, Msg: "this goal requires a settings draft. Use “!seed draft” to start one, or “!seed base” for the default settings"}
	}
	if g.Settings != nil {
		return SeedPlan{Kind: PlanRoll, Settings: g.Settings, Unlock: unlock, Description: g.Description}
	}
	if len(g.Presets) > 0 {
		return SeedPlan{Kind: PlanPresets, Msg: "the preset is required"}
	}
	return SeedPlan{Kind: PlanReject, Msg: "this goal has no settings configured"}
}
