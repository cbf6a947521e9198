package main

import (
	"github.com/midoshouse/racebot"
	"github.com/midoshouse/racebot/room"
)

// goals is the built-in event configuration. A race whose goal name is
// not listed here gets defaultGoal, which only rolls seeds on request
// from a race monitor.
var goals = []room.Goal{
	{
		Name:    "Standard Tournament Season 8",
		Version: racebot.Pinned(racebot.Version{Branch: racebot.BranchDev, Major: 8, Minor: 1, Patch: 29}),
		Preroll: racebot.PrerollShort,
		Unlock:  racebot.UnlockAfter,
		Settings: racebot.Settings{
			"password_lock":            true,
			"bridge":                   "medallions",
			"bridge_medallions":        6,
			"trials":                   0,
			"shuffle_ganon_bosskey":    "remove",
			"shuffle_child_trade":      []string{"Zeldas Letter"},
			"starting_inventory":       []string{"ocarina", "farores_wind", "lens", "zeldas_letter"},
			"free_scarecrow":           true,
			"fast_bunny_hood":          true,
			"blue_fire_arrows":         true,
			"correct_chest_appearance": "both",
			"hint_dist":                "tournament",
		},
		Article:     "a",
		Description: "S8 seed",
	},
	{
		Name:      "Multiworld Tournament Season 4",
		DraftKind: "multiworld_s4",
		Version:   racebot.Pinned(racebot.Version{Branch: racebot.BranchDev, Major: 7, Minor: 1, Patch: 199}),
		Unlock:    racebot.UnlockAfter,
		Article:   "a",
	},
	{
		Name:           "Random Settings League",
		Version:        racebot.Latest(racebot.BranchDevR),
		Preroll:        racebot.PrerollLong,
		Unlock:         racebot.UnlockAfter,
		RandomSettings: true,
		Settings: racebot.Settings{
			"enable_distribution_file": false,
			"create_spoiler":           true,
		},
		Article:     "an",
		Description: "RSL seed",
	},
	{
		Name:        "Triforce Blitz",
		ThirdParty:  true,
		Unlock:      racebot.UnlockAfter,
		Article:     "a",
		Description: "Triforce Blitz seed",
	},
	{
		Name:     "Tournoi Francophone Saison 5",
		Language: room.French,
		Version:  racebot.Latest(racebot.BranchDevFenhl),
		Unlock:   racebot.UnlockAfter,
		Settings: racebot.Settings{
			"language":      "french",
			"password_lock": true,
		},
		Article:     "a",
		Description: "seed",
	},
}

// defaultGoal serves rooms for goals without specific configuration:
// the latest dev build with the randomizer's default settings.
var defaultGoal = room.Goal{
	Version:     racebot.Latest(racebot.BranchDev),
	Unlock:      racebot.UnlockAfter,
	Settings:    racebot.Settings{},
	Article:     "a",
	Description: "seed",
}
