package room

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/midoshouse/racebot"
)

func fixedGoal() Goal {
	return Goal{
		Name:        "standard",
		Version:     racebot.Latest(racebot.BranchDev),
		Unlock:      racebot.UnlockAfter,
		Settings:    racebot.Settings{"bridge": "meds"},
		Article:     "a",
		Description: "seed",
	}
}

func TestParseSeedCommand_FixedSettings(t *testing.T) {
	plan := fixedGoal().ParseSeedCommand(nil, false)
	require.Equal(t, PlanRoll, plan.Kind)
	assert.Equal(t, racebot.Settings{"bridge": "meds"}, plan.Settings)
	assert.Equal(t, racebot.UnlockAfter, plan.Unlock)
	assert.Equal(t, "seed", plan.Description)
}

func TestParseSeedCommand_SpoilerSeedForcesUnlock(t *testing.T) {
	plan := fixedGoal().ParseSeedCommand(nil, true)
	require.Equal(t, PlanRoll, plan.Kind)
	assert.Equal(t, racebot.UnlockNow, plan.Unlock)
}

func TestParseSeedCommand_Presets(t *testing.T) {
	goal := Goal{
		Name:        "league",
		Unlock:      racebot.UnlockAfter,
		Description: "seed",
		Presets: []Preset{
			{Name: "s7", Display: "Season 7", Settings: racebot.Settings{"shuffle_ganon_bosskey": "lacs"}},
		},
	}

	plan := goal.ParseSeedCommand(nil, false)
	assert.Equal(t, PlanPresets, plan.Kind)
	assert.Equal(t, "the preset is required", plan.Msg)

	plan = goal.ParseSeedCommand([]string{"S7"}, false)
	require.Equal(t, PlanRoll, plan.Kind)
	assert.Equal(t, racebot.Settings{"shuffle_ganon_bosskey": "lacs"}, plan.Settings)
	assert.Equal(t, "seed (Season 7)", plan.Description)

	plan = goal.ParseSeedCommand([]string{"s8"}, false)
	assert.Equal(t, PlanPresets, plan.Kind)
	assert.Equal(t, "I don't recognize that preset", plan.Msg)
}

func TestParseSeedCommand_Draft(t *testing.T) {
	goal := Goal{
		Name:        "mw",
		DraftKind:   "multiworld_s4",
		Unlock:      racebot.UnlockAfter,
		Description: "multiworld seed",
	}

	plan := goal.ParseSeedCommand(nil, false)
	assert.Equal(t, PlanReject, plan.Kind)

	plan = goal.ParseSeedCommand([]string{"draft"}, false)
	assert.Equal(t, PlanStartDraft, plan.Kind)

	plan = goal.ParseSeedCommand([]string{"base"}, false)
	require.Equal(t, PlanRoll, plan.Kind)
	assert.NotEmpty(t, plan.Settings)
	assert.Equal(t, "multiworld seed with the base settings", plan.Description)
}

func TestParseSeedCommand_DraftUnavailable(t *testing.T) {
	plan := fixedGoal().ParseSeedCommand([]string{"draft"}, false)
	assert.Equal(t, PlanReject, plan.Kind)
	assert.Equal(t, "this event doesn't have a settings draft", plan.Msg)
}

func TestParseSeedCommand_ThirdParty(t *testing.T) {
	goal := Goal{
		Name:        "blitz",
		ThirdParty:  true,
		Unlock:      racebot.UnlockAfter,
		Description: "Triforce Blitz seed",
	}
	plan := goal.ParseSeedCommand(nil, false)
	require.Equal(t, PlanThirdParty, plan.Kind)
	assert.Equal(t, "Triforce Blitz seed", plan.Description)
}

func TestParseSeedCommand_NoSettings(t *testing.T) {
	plan := Goal{Name: "empty"}.ParseSeedCommand(nil, false)
	assert.Equal(t, PlanReject, plan.Kind)
	assert.Equal(t, "this goal has no settings configured", plan.Msg)
}
