package draft

import (
	"fmt"

	"github.com/midoshouse/racebot"
)

// setting is one row of a tournament's draftable settings table.
type setting struct {
	name           string
	display        string
	def            string
	defDisplay     string
	other          []Choice
	description    string
}

var s3Settings = []setting{
	{name: "wincon", display: "win conditions", def: "meds", defDisplay: "default wincons", other: []Choice{{"scrubs", "Scrubs wincons"}, {"th", "Triforce Hunt"}}, description: "wincon: meds (default: 6 Medallion Bridge + Keysy BK), scrubs (3 Stone Bridge + LACS BK), or th (Triforce Hunt 25/30)"},
	{name: "dungeons", display: "dungeons", def: "tournament", defDisplay: "tournament dungeons", other: []Choice{{"skulls", "dungeon tokens"}, {"keyrings", "keyrings"}}, description: "dungeons: tournament (default: keys shuffled in own dungeon), skulls (vanilla keys, dungeon tokens), or keyrings (small keyrings anywhere, vanilla boss keys)"},
	{name: "er", display: "entrance rando", def: "off", defDisplay: "no ER", other: []Choice{{"dungeon", "dungeon ER"}}, description: "er: off (default) or dungeon"},
	{name: "trials", display: "trials", def: "0", defDisplay: "0 trials", other: []Choice{{"2", "2 trials"}}, description: "trials: 0 (default) or 2"},
	{name: "shops", display: "shops", def: "4", defDisplay: "shops 4", other: []Choice{{"off", "no shops"}}, description: "shops: 4 (default) or off"},
	{name: "scrubs", display: "scrubs", def: "affordable", defDisplay: "affordable scrubs", other: []Choice{{"off", "no scrubs"}}, description: "scrubs: affordable (default) or off"},
	{name: "fountain", display: "fountain", def: "closed", defDisplay: "closed fountain", other: []Choice{{"open", "open fountain"}}, description: "fountain: closed (default) or open"},
	{name: "spawn", display: "spawns", def: "tot", defDisplay: "ToT spawns", other: []Choice{{"random", "random spawns & starting age"}}, description: "spawn: tot (default: adult start, vanilla spawns) or random (random spawns and starting age)"},
}

var s4Settings = []setting{
	{name: "gbk", display: "Ganon boss key", def: "meds", defDisplay: "Ganon bk on 6 medallions", other: []Choice{{"stones", "Ganon bk on 3 stones"}, {"th", "Triforce Hunt"}}, description: "gbk (Ganon boss key): meds (default: 6 medallions), stones (3 stones), or th (Triforce Hunt 25/30)"},
	{name: "bridge", display: "rainbow bridge", def: "meds", defDisplay: "6 medallions bridge", other: []Choice{{"dungeons", "7 dungeon rewards bridge"}, {"vanilla", "vanilla bridge"}}, description: "bridge: meds (default: 6 medallions), dungeons (7 rewards), or vanilla"},
	{name: "trials", display: "trials", def: "0", defDisplay: "0 trials", other: []Choice{{"2", "2 trials"}}, description: "trials: 0 (default) or 2"},
	{name: "bosskeys", display: "boss keys", def: "dungeon", defDisplay: "own dungeon boss keys", other: []Choice{{"regional", "regional boss keys"}, {"vanilla", "vanilla boss keys"}}, description: "bosskeys: dungeon (default), regional, or vanilla"},
	{name: "smallkeys", display: "small keys", def: "dungeon", defDisplay: "own dungeon small keys", other: []Choice{{"regional", "regional keyrings"}, {"vanilla", "vanilla small keys"}}, description: "smallkeys: dungeon (default), regional (with keyrings), or vanilla"},
	{name: "deku", display: "open Deku", def: "open", defDisplay: "open Deku", other: []Choice{{"closed", "closed Deku"}}, description: "deku: open (default) or closed"},
	{name: "fountain", display: "fountain", def: "closed", defDisplay: "closed fountain", other: []Choice{{"open", "open fountain"}}, description: "fountain: closed (default) or open"},
	{name: "spawn", display: "spawns", def: "tot", defDisplay: "ToT spawns", other: []Choice{{"random", "random spawns & starting age"}}, description: "spawn: tot (default: adult start, vanilla spawns) or random (random spawns and starting age)"},
	{name: "dungeon-er", display: "dungeon entrance rando", def: "off", defDisplay: "no dungeon ER", other: []Choice{{"on", "dungeon ER"}}, description: "dungeon-er: off (default) or on"},
	{name: "warps", display: "warp song entrance rando", def: "off", defDisplay: "vanilla warp songs", other: []Choice{{"on", "shuffled warp songs"}}, description: "warps: off (default) or on"},
	{name: "chubags", display: "bombchu drops", def: "off", defDisplay: "no bombchu drops", other: []Choice{{"on", "bombchu drops"}}, description: "chubags: off (default) or on"},
	{name: "shops", display: "shops", def: "4", defDisplay: "shops 4", other: []Choice{{"off", "no shops"}}, description: "shops: 4 (default) or off"},
	{name: "skulls", display: "tokens", def: "off", defDisplay: "no tokens", other: []Choice{{"dungeons", "dungeon tokens"}}, description: "skulls: off (default) or dungeons"},
	{name: "scrubs", display: "scrubs", def: "affordable", defDisplay: "affordable scrubs", other: []Choice{{"off", "no scrubs"}}, description: "scrubs: affordable (default) or off"},
	{name: "cows", display: "cows", def: "off", defDisplay: "no cows", other: []Choice{{"on", "cows"}}, description: "cows: off (default) or on"},
	{name: "card", display: "Gerudo card", def: "vanilla", defDisplay: "vanilla Gerudo card", other: []Choice{{"shuffle", "shuffled Gerudo card"}}, description: "card: vanilla (default) or shuffle"},
	{name: "merchants", display: "merchants", def: "off", defDisplay: "no merchants", other: []Choice{{"shuffle", "shuffled merchants"}}, description: "merchants: off (default) or shuffle"},
	{name: "frogs", display: "frogs", def: "off", defDisplay: "no frogs", other: []Choice{{"shuffle", "shuffled frogs"}}, description: "frogs: off (default) or shuffle"},
	{name: "camc", display: "CAMC", def: "texture", defDisplay: "chest texture matches contents", other: []Choice{{"off", "vanilla chest appearances"}, {"both", "chest size & texture match contents"}}, description: "camc (Chest Appearance Matches Contents): texture (default), off, or both (size & texture)"},
	{name: "hints", display: "hint type", def: "path", defDisplay: "path hints", other: []Choice{{"woth", "Way of the Hero hints"}}, description: "hints: path (default) or woth"},
}

func banSettings(table []setting, picks *Picks) []BanSetting {
	var out []BanSetting
	for _, s := range table {
		if _, ok := picks.Get(s.name); ok {
			continue
		}
		out = append(out, BanSetting{Name: s.name, Display: s.display, Default: s.def, DefaultDisplay: s.defDisplay, Description: s.description})
	}
	return out
}

func pickSettings(table []setting, picks *Picks) []PickSetting {
	var out []PickSetting
	for _, s := range table {
		if _, ok := picks.Get(s.name); ok {
			continue
		}
		options := make([]Choice, 0, len(s.other)+1)
		options = append(options, Choice{Name: s.def, Display: s.defDisplay})
		options = append(options, s.other...)
		out = append(out, PickSetting{Name: s.name, Display: s.display, Options: options, Description: s.description})
	}
	return out
}

func allBanSettings(table []setting) []BanSetting {
	out := make([]BanSetting, len(table))
	for i, s := range table {
		out[i] = BanSetting{Name: s.name, Display: s.display, Default: s.def, DefaultDisplay: s.defDisplay, Description: s.description}
	}
	return out
}

// pickCount is the step counter: skips plus settings locked in so far.
func pickCount(table []setting, state *State) int {
	n := state.SkippedBans
	for _, s := range table {
		if _, ok := state.Picks.Get(s.name); ok {
			n++
		}
	}
	return n
}

func goFirstStep(names Names) Step {
	return Step{
		Kind:    StepGoFirst,
		Team:    HighSeed,
		Message: fmt.Sprintf("%s, you have the higher seed. Choose whether you want to go !first or !second", names.HighSeed),
	}
}

func banStep(table []setting, state *State, names Names, team Team, prevBans int) Step {
	msg := fmt.Sprintf("%s, lock a setting to its default using “!ban <setting>”, or use “!skip” if you don't want to ban anything.", team.Choose(names.HighSeed, names.LowSeed))
	if prevBans == 0 {
		msg += " Use “!settings” for a list of available settings."
	}
	return Step{
		Kind:      StepBan,
		Team:      team,
		Skippable: true,
		Bans:      banSettings(table, state.Picks),
		Message:   msg,
	}
}

// MultiworldS3 is the 3rd Multiworld Tournament draft: choose pick
// order, one ban each, then two picks each, with the final pick
// skippable.
type MultiworldS3 struct{}

func (MultiworldS3) Kind() string { return "multiworld_s3" }

func (MultiworldS3) AllSettings() []BanSetting { return allBanSettings(s3Settings) }

func (m MultiworldS3) NextStep(state *State, names Names) Step {
	if state.WentFirst == nil {
		return goFirstStep(names)
	}
	wentFirst := *state.WentFirst
	n := pickCount(s3Settings, state)
	switch {
	case n <= 1:
		team := LowSeed
		if (n == 0) == wentFirst {
			team = HighSeed
		}
		return banStep(s3Settings, state, names, team, n)
	case n <= 5:
		team := LowSeed
		if (n == 2 || n == 5) == wentFirst {
			team = HighSeed
		}
		actor := team.Choose(names.HighSeed, names.LowSeed)
		var msg string
		switch n {
		case 2:
			msg = fmt.Sprintf("%s, pick a setting using “!draft <setting> <value>”", actor)
		case 3:
			msg = fmt.Sprintf("%s, pick a setting. You will have another pick after this.", actor)
		case 4:
			msg = fmt.Sprintf("%s, pick your second setting.", actor)
		case 5:
			msg = fmt.Sprintf("%s, pick a setting. You can also use “!skip” if you want to leave the settings as they are.", actor)
		}
		return Step{
			Kind:      StepPick,
			Team:      team,
			Skippable: n == 5,
			Picks:     pickSettings(s3Settings, state.Picks),
			Message:   msg,
		}
	default:
		return Step{
			Kind:     StepDone,
			Settings: m.Resolve(state.Picks),
			Message:  m.DescribePicks(state.Picks),
		}
	}
}

func (MultiworldS3) DescribePicks(picks *Picks) string {
	return describePicks(s3Settings, picks)
}

func describePicks(table []setting, picks *Picks) string {
	var displays []string
	for _, s := range table {
		pick, ok := picks.Get(s.name)
		if !ok {
			continue
		}
		for _, other := range s.other {
			if other.Name == pick {
				displays = append(displays, other.Display)
				break
			}
		}
	}
	if len(displays) == 0 {
		return "base settings"
	}
	return englishJoin(displays)
}

func (MultiworldS3) Resolve(picks *Picks) racebot.Settings {
	wincon := picks.GetOr("wincon", "meds")
	dungeons := picks.GetOr("dungeons", "tournament")
	er := picks.GetOr("er", "off")
	trials := picks.GetOr("trials", "0")
	shops := picks.GetOr("shops", "4")
	scrubs := picks.GetOr("scrubs", "affordable")
	fountain := picks.GetOr("fountain", "closed")
	spawn := picks.GetOr("spawn", "tot")
	settings := racebot.Settings{
		"user_message":            "3rd Multiworld Tournament",
		"world_count":             3,
		"open_forest":             "open",
		"open_kakariko":           "open",
		"open_door_of_time":       true,
		"zora_fountain":           fountain,
		"gerudo_fortress":         "fast",
		"bridge_medallions":       6,
		"bridge_stones":           3,
		"bridge_rewards":          4,
		"triforce_hunt":           wincon == "th",
		"triforce_count_per_world": 30,
		"triforce_goal_per_world": 25,
		"shuffle_child_trade":     "skip_child_zelda",
		"no_escape_sequence":      true,
		"no_guard_stealth":        true,
		"no_epona_race":           true,
		"skip_some_minigame_phases": true,
		"free_scarecrow":          true,
		"fast_bunny_hood":         true,
		"start_with_rupees":       true,
		"start_with_consumables":  true,
		"big_poe_count":           1,
		"spawn_positions":         spawn == "random",
		"shopsanity":              shops,
		"shuffle_mapcompass":      "startwith",
		"enhance_map_compass":     true,
		"disabled_locations": []string{
			"Deku Theater Mask of Truth",
			"Kak 40 Gold Skulltula Reward",
			"Kak 50 Gold Skulltula Reward",
		},
		"allowed_tricks": []string{
			"logic_fewer_tunic_requirements",
			"logic_grottos_without_agony",
			"logic_child_deadhand",
			"logic_man_on_roof",
			"logic_dc_jump",
			"logic_rusted_switches",
			"logic_windmill_poh",
			"logic_crater_bean_poh_with_hovers",
			"logic_forest_vines",
			"logic_lens_botw",
			"logic_lens_castle",
			"logic_lens_gtg",
			"logic_lens_shadow",
			"logic_lens_shadow_platform",
			"logic_lens_bongo",
			"logic_lens_spirit",
			"logic_dc_scarecrow_gs",
		},
		"adult_trade_start":        []string{"Claim Check"},
		"starting_items":           []string{"ocarina", "farores_wind", "lens"},
		"correct_chest_appearances": "both",
		"hint_dist":                "mw3",
		"ice_trap_appearance":      "junk_only",
		"junk_ice_traps":           "off",
	}
	switch wincon {
	case "meds":
		settings["bridge"] = "medallions"
		settings["shuffle_ganon_bosskey"] = "remove"
	case "scrubs":
		settings["bridge"] = "stones"
		settings["shuffle_ganon_bosskey"] = "on_lacs"
	case "th":
		settings["bridge"] = "dungeons"
		settings["shuffle_ganon_bosskey"] = "triforce"
	}
	if trials == "2" {
		settings["trials"] = 2
	} else {
		settings["trials"] = 0
	}
	if er == "dungeon" {
		settings["shuffle_dungeon_entrances"] = "simple"
	} else {
		settings["shuffle_dungeon_entrances"] = "off"
	}
	if scrubs == "affordable" {
		settings["shuffle_scrubs"] = "low"
	} else {
		settings["shuffle_scrubs"] = "off"
	}
	switch dungeons {
	case "tournament":
		settings["tokensanity"] = "off"
		settings["shuffle_smallkeys"] = "dungeon"
		settings["key_rings_choice"] = "off"
		settings["shuffle_bosskeys"] = "dungeon"
	case "skulls":
		settings["tokensanity"] = "dungeons"
		settings["shuffle_smallkeys"] = "vanilla"
		settings["key_rings_choice"] = "off"
		settings["shuffle_bosskeys"] = "vanilla"
	case "keyrings":
		settings["tokensanity"] = "off"
		settings["shuffle_smallkeys"] = "keysanity"
		settings["key_rings_choice"] = "all"
		settings["shuffle_bosskeys"] = "vanilla"
	}
	if spawn == "random" {
		settings["starting_age"] = "random"
	} else {
		settings["starting_age"] = "adult"
	}
	return settings
}

// MultiworldS4 is the 4th Multiworld Tournament draft: choose pick
// order, then two rounds of one ban each around two picks each, every
// step skippable.
type MultiworldS4 struct{}

func (MultiworldS4) Kind() string { return "multiworld_s4" }

func (MultiworldS4) AllSettings() []BanSetting { return allBanSettings(s4Settings) }

func (m MultiworldS4) NextStep(state *State, names Names) Step {
	if state.WentFirst == nil {
		return goFirstStep(names)
	}
	wentFirst := *state.WentFirst
	n := pickCount(s4Settings, state)
	switch {
	case n <= 1 || n == 6 || n == 7:
		team := LowSeed
		if (n == 0 || n == 7) == wentFirst {
			team = HighSeed
		}
		return banStep(s4Settings, state, names, team, n)
	case n <= 5 || n == 8 || n == 9:
		team := LowSeed
		if (n == 2 || n == 5 || n == 9) == wentFirst {
			team = HighSeed
		}
		actor := team.Choose(names.HighSeed, names.LowSeed)
		var msg string
		switch n {
		case 2, 8:
			msg = fmt.Sprintf("%s, pick a setting using “!draft <setting> <value>”", actor)
		case 3, 4:
			msg = fmt.Sprintf("%s, pick a setting. You will have another pick after this.", actor)
		case 5:
			msg = fmt.Sprintf("%s, pick your second setting.", actor)
		case 9:
			msg = fmt.Sprintf("%s, pick the final setting. You can also use “!skip” if you want to leave the settings as they are.", actor)
		}
		return Step{
			Kind:      StepPick,
			Team:      team,
			Skippable: true,
			Picks:     pickSettings(s4Settings, state.Picks),
			Message:   msg,
		}
	default:
		return Step{
			Kind:     StepDone,
			Settings: m.Resolve(state.Picks),
			Message:  m.DescribePicks(state.Picks),
		}
	}
}

func (MultiworldS4) DescribePicks(picks *Picks) string {
	return describePicks(s4Settings, picks)
}

func (MultiworldS4) Resolve(picks *Picks) racebot.Settings {
	gbk := picks.GetOr("gbk", "meds")
	bridge := picks.GetOr("bridge", "meds")
	trials := picks.GetOr("trials", "0")
	bosskeys := picks.GetOr("bosskeys", "dungeon")
	smallkeys := picks.GetOr("smallkeys", "dungeon")
	deku := picks.GetOr("deku", "open")
	fountain := picks.GetOr("fountain", "closed")
	spawn := picks.GetOr("spawn", "tot")
	dungeonER := picks.GetOr("dungeon-er", "off")
	warps := picks.GetOr("warps", "off")
	chubags := picks.GetOr("chubags", "off")
	shops := picks.GetOr("shops", "4")
	skulls := picks.GetOr("skulls", "off")
	scrubs := picks.GetOr("scrubs", "affordable")
	cows := picks.GetOr("cows", "off")
	card := picks.GetOr("card", "vanilla")
	merchants := picks.GetOr("merchants", "off")
	frogs := picks.GetOr("frogs", "off")
	camc := picks.GetOr("camc", "texture")
	hints := picks.GetOr("hints", "path")
	settings := racebot.Settings{
		"user_message":            "4th Multiworld Tournament",
		"world_count":             3,
		"triforce_hunt":           gbk == "th",
		"triforce_goal_per_world": 25,
		"bridge_rewards":          7,
		"shuffle_bosskeys":        bosskeys,
		"shuffle_smallkeys":       smallkeys,
		"shuffle_mapcompass":      "startwith",
		"enhance_map_compass":     true,
		"open_kakariko":           "open",
		"open_door_of_time":       true,
		"zora_fountain":           fountain,
		"gerudo_fortress":         "fast",
		"spawn_positions":         []string{},
		"warp_songs":              warps == "on",
		"free_bombchu_drops":      chubags == "on",
		"shopsanity":              shops,
		"tokensanity":             skulls,
		"shuffle_cows":            cows == "on",
		"shuffle_gerudo_card":     card == "shuffle",
		"shuffle_expensive_merchants": merchants == "shuffle",
		"shuffle_frog_song_rupees":    frogs == "shuffle",
		"disabled_locations": []string{
			"Deku Theater Mask of Truth",
			"Kak 40 Gold Skulltula Reward",
			"Kak 50 Gold Skulltula Reward",
		},
		"allowed_tricks": []string{
			"logic_fewer_tunic_requirements",
			"logic_grottos_without_agony",
			"logic_child_deadhand",
			"logic_man_on_roof",
			"logic_dc_jump",
			"logic_rusted_switches",
			"logic_windmill_poh",
			"logic_crater_bean_poh_with_hovers",
			"logic_forest_vines",
			"logic_lens_botw",
			"logic_lens_castle",
			"logic_lens_gtg",
			"logic_lens_shadow",
			"logic_lens_shadow_platform",
			"logic_lens_bongo",
			"logic_lens_spirit",
			"logic_visible_collisions",
			"logic_dc_scarecrow_gs",
			"logic_deku_b1_webs_with_bow",
		},
		"starting_inventory":          []string{"ocarina", "farores_wind", "lens", "zeldas_letter"},
		"start_with_consumables":      true,
		"start_with_rupees":           true,
		"no_escape_sequence":          true,
		"no_guard_stealth":            true,
		"no_epona_race":               true,
		"skip_some_minigame_phases":   true,
		"free_scarecrow":              true,
		"fast_bunny_hood":             true,
		"chicken_count":               3,
		"big_poe_count":               1,
		"ruto_already_f1_jabu":        true,
		"correct_potcrate_appearances": "textures_content",
		"key_appearance_match_dungeon": true,
	}
	settings["bridge"] = map[string]string{"meds": "medallions", "dungeons": "dungeons", "vanilla": "vanilla"}[bridge]
	if trials == "2" {
		settings["trials"] = 2
	} else {
		settings["trials"] = 0
	}
	if gbk == "stones" {
		settings["shuffle_ganon_bosskey"] = "stones"
	} else {
		settings["shuffle_ganon_bosskey"] = "medallions"
	}
	if smallkeys == "regional" {
		settings["key_rings_choice"] = "all"
	} else {
		settings["key_rings_choice"] = "off"
	}
	if deku == "closed" {
		settings["open_forest"] = "closed_deku"
	} else {
		settings["open_forest"] = "open"
	}
	if spawn == "random" {
		settings["starting_age"] = "random"
		settings["spawn_positions"] = []string{"child", "adult"}
	} else {
		settings["starting_age"] = "adult"
	}
	if dungeonER == "on" {
		settings["shuffle_dungeon_entrances"] = "simple"
	} else {
		settings["shuffle_dungeon_entrances"] = "off"
	}
	if scrubs == "affordable" {
		settings["shuffle_scrubs"] = "low"
	} else {
		settings["shuffle_scrubs"] = "off"
	}
	switch camc {
	case "off":
		settings["correct_chest_appearances"] = "off"
	case "both":
		settings["correct_chest_appearances"] = "both"
	default:
		settings["correct_chest_appearances"] = "textures"
	}
	if hints == "woth" {
		settings["hint_dist"] = "mw_woth"
	} else {
		settings["hint_dist"] = "mw_path"
	}
	return settings
}

// SequenceByKind returns the sequence persisted under kind.
func SequenceByKind(kind string) (Sequence, error) {
	switch kind {
	case "multiworld_s3":
		return MultiworldS3{}, nil
	case "multiworld_s4":
		return MultiworldS4{}, nil
	default:
		return nil, fmt.Errorf("unknown draft kind %q", kind)
	}
}
