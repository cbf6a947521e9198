// Package draft implements the settings draft state machine used by
// tournament races. A draft is a turn-based negotiation between two
// teams: the higher-seeded team chooses pick order, then the teams
// alternate banning and picking settings until the sequence for the
// tournament is exhausted and the drafted settings resolve into a
// complete randomizer preset.
//
// The state machine itself is pure: applying an action either returns
// the updated prompt for the next actor or a user-facing rejection,
// and a rejected action leaves the state untouched.
package draft

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/midoshouse/racebot"
)

// Team identifies one of the two drafting sides.
type Team int

const (
	HighSeed Team = iota
	LowSeed
)

func (t Team) String() string {
	if t == HighSeed {
		return "high seed"
	}
	return "low seed"
}

// Choose returns the value belonging to this team.
func (t Team) Choose(high, low string) string {
	if t == HighSeed {
		return high
	}
	return low
}

// Names carries the display names used when rendering chat prompts.
type Names struct {
	HighSeed string
	LowSeed  string
	// ReplyTo is the user a rejection is addressed to.
	ReplyTo string
}

// Picks records drafted settings in the order they were locked in.
// Insertion order matters for describing the draft back to the players.
type Picks struct {
	keys   []string
	values map[string]string
}

func NewPicks() *Picks {
	return &Picks{values: make(map[string]string)}
}

func (p *Picks) Get(name string) (string, bool) {
	v, ok := p.values[name]
	return v, ok
}

// GetOr returns the drafted value for name, or def if it was never picked.
func (p *Picks) GetOr(name, def string) string {
	if v, ok := p.values[name]; ok {
		return v
	}
	return def
}

func (p *Picks) Set(name, value string) {
	if _, ok := p.values[name]; !ok {
		p.keys = append(p.keys, name)
	}
	p.values[name] = value
}

func (p *Picks) Len() int { return len(p.keys) }

// Names returns the picked setting names in draft order.
func (p *Picks) Names() []string {
	out := make([]string, len(p.keys))
	copy(out, p.keys)
	return out
}

func (p *Picks) Clone() *Picks {
	c := NewPicks()
	for _, k := range p.keys {
		c.Set(k, p.values[k])
	}
	return c
}

// ActionKind discriminates Action.
type ActionKind int

const (
	ActionGoFirst ActionKind = iota
	ActionBan
	ActionPick
	ActionSkip
	ActionBooleanChoice
)

// Action is a single move in the draft, normally parsed from a chat
// command (!first, !second, !ban, !draft, !skip, !yes, !no).
type Action struct {
	Kind    ActionKind
	First   bool   // ActionGoFirst
	Setting string // ActionBan, ActionPick
	Value   string // ActionPick
	Choice  bool   // ActionBooleanChoice
}

func GoFirst(first bool) Action         { return Action{Kind: ActionGoFirst, First: first} }
func Ban(setting string) Action         { return Action{Kind: ActionBan, Setting: setting} }
func Pick(setting, value string) Action { return Action{Kind: ActionPick, Setting: setting, Value: value} }
func Skip() Action                      { return Action{Kind: ActionSkip} }
func BooleanChoice(choice bool) Action  { return Action{Kind: ActionBooleanChoice, Choice: choice} }

// StepKind discriminates Step.
type StepKind int

const (
	StepGoFirst StepKind = iota
	StepBan
	StepPick
	StepBooleanChoice
	StepDone
)

// BanSetting is a setting that may currently be locked to its default.
type BanSetting struct {
	Name           string
	Display        string
	Default        string
	DefaultDisplay string
	Description    string
}

// Choice is one selectable value of a draftable setting.
type Choice struct {
	Name    string
	Display string
}

// PickSetting is a setting that may currently be drafted, together
// with every value it can take (the default first).
type PickSetting struct {
	Name        string
	Display     string
	Options     []Choice
	Description string
}

// BooleanSetting is a setting decided by a yes/no answer. Yes and No
// are the values recorded under Name.
type BooleanSetting struct {
	Name string
	Yes  string
	No   string
}

// Step describes what the draft expects next.
type Step struct {
	Kind      StepKind
	Team      Team           // actor for GoFirst, Ban, Pick, BooleanChoice
	Skippable bool           // Ban, Pick
	Bans      []BanSetting   // StepBan
	Picks     []PickSetting  // StepPick
	Boolean   BooleanSetting // StepBooleanChoice
	// Settings holds the fully resolved randomizer settings once the
	// draft is done.
	Settings racebot.Settings
	// Message is the chat prompt announcing this step.
	Message string
}

// Sequence defines one tournament's draft format: which settings exist,
// in what order bans and picks happen, and how the final picks resolve
// into randomizer settings.
type Sequence interface {
	// Kind is the stable identifier persisted with a race.
	Kind() string
	// NextStep computes the current step from the draft state.
	NextStep(state *State, names Names) Step
	// Resolve turns completed picks into full randomizer settings.
	Resolve(picks *Picks) racebot.Settings
	// DescribePicks renders the non-default picks as an English
	// phrase for announcements.
	DescribePicks(picks *Picks) string
	// AllSettings lists every draftable setting, for !settings.
	AllSettings() []BanSetting
}

// Rejection is a user-facing refusal of a draft action. The draft
// state is unchanged whenever Apply returns one.
type Rejection struct {
	Message string
}

func (r *Rejection) Error() string { return r.Message }

// State is the mutable progress of one draft.
type State struct {
	// WentFirst is nil until the high seed has chosen pick order.
	WentFirst *bool
	// SkippedBans counts skipped ban and final-pick steps. Skips and
	// picks together drive the step counter.
	SkippedBans int
	Picks       *Picks
}

func NewState() *State {
	return &State{Picks: NewPicks()}
}

// Apply validates action against the sequence's current step and
// advances the draft. It returns a confirmation message (possibly
// empty) on success, or a *Rejection describing why the action was
// refused. Rejected actions never mutate the state.
func (s *State) Apply(seq Sequence, names Names, action Action) (string, error) {
	// A yes/no answer doubles as the pick order choice while that is
	// the open question.
	if action.Kind == ActionBooleanChoice && seq.NextStep(s, Names{}).Kind == StepGoFirst {
		action = GoFirst(action.Choice)
	}

	step := seq.NextStep(s, Names{})
	switch action.Kind {
	case ActionGoFirst:
		switch step.Kind {
		case StepGoFirst:
			first := action.First
			s.WentFirst = &first
			return "", nil
		case StepBan, StepPick:
			return "", &Rejection{Message: fmt.Sprintf("Sorry %s, first pick has already been chosen.", names.ReplyTo)}
		default:
			return "", &Rejection{Message: fmt.Sprintf("Sorry %s, this settings draft is already completed.", names.ReplyTo)}
		}
	case ActionBan:
		switch step.Kind {
		case StepGoFirst:
			return "", &Rejection{Message: fmt.Sprintf("Sorry %s, first pick hasn't been chosen yet, use “!first” or “!second”", names.ReplyTo)}
		case StepBan:
			if !knownSetting(seq, action.Setting) {
				return "", &Rejection{Message: fmt.Sprintf(
					"Sorry %s, I don't recognize that setting. Use one of the following: %s",
					names.ReplyTo, joinOr(settingNames(seq.AllSettings())),
				)}
			}
			return s.applyBan(step, names, action.Setting)
		case StepPick:
			return "", &Rejection{Message: fmt.Sprintf("Sorry %s, bans have already been chosen. Use “!draft <setting> <value>”", names.ReplyTo)}
		default:
			return "", &Rejection{Message: fmt.Sprintf("Sorry %s, this settings draft is already completed.", names.ReplyTo)}
		}
	case ActionPick:
		switch step.Kind {
		case StepGoFirst:
			return "", &Rejection{Message: fmt.Sprintf("Sorry %s, first pick hasn't been chosen yet, use “!first” or “!second”", names.ReplyTo)}
		case StepBan:
			// Picking a setting's default during the ban phase is
			// the same move as banning it.
			for _, b := range step.Bans {
				if b.Name == action.Setting && action.Value == b.Default {
					return s.applyBan(step, names, action.Setting)
				}
			}
			return "", &Rejection{Message: fmt.Sprintf("Sorry %s, bans haven't been chosen yet. Use “!ban <setting>”", names.ReplyTo)}
		case StepPick:
			return s.applyPick(step, names, action)
		default:
			return "", &Rejection{Message: fmt.Sprintf("Sorry %s, this settings draft is already completed.", names.ReplyTo)}
		}
	case ActionSkip:
		switch step.Kind {
		case StepGoFirst:
			return "", &Rejection{Message: fmt.Sprintf("Sorry %s, first pick hasn't been chosen yet, use “!first” or “!second”", names.ReplyTo)}
		case StepBan, StepPick:
			if !step.Skippable {
				return "", &Rejection{Message: fmt.Sprintf("Sorry %s, this part of the draft can't be skipped.", names.ReplyTo)}
			}
			s.SkippedBans++
			return "", nil
		default:
			return "", &Rejection{Message: fmt.Sprintf("Sorry %s, this settings draft is already completed.", names.ReplyTo)}
		}
	case ActionBooleanChoice:
		switch step.Kind {
		case StepBooleanChoice:
			value := step.Boolean.No
			if action.Choice {
				value = step.Boolean.Yes
			}
			s.Picks.Set(step.Boolean.Name, value)
			return "", nil
		case StepDone:
			return "", &Rejection{Message: fmt.Sprintf("Sorry %s, this settings draft is already completed.", names.ReplyTo)}
		default:
			return "", &Rejection{Message: fmt.Sprintf("Sorry %s, the current step is not a yes/no question.", names.ReplyTo)}
		}
	}
	return "", &Rejection{Message: fmt.Sprintf("Sorry %s, I didn't understand that.", names.ReplyTo)}
}

func (s *State) applyBan(step Step, names Names, name string) (string, error) {
	for _, setting := range step.Bans {
		if setting.Name == name {
			s.Picks.Set(setting.Name, setting.Default)
			return "", nil
		}
	}
	return "", s.rejectUnavailable(step, names, name, "ban")
}

func knownSetting(seq Sequence, name string) bool {
	for _, s := range seq.AllSettings() {
		if s.Name == name {
			return true
		}
	}
	return false
}

func (s *State) applyPick(step Step, names Names, action Action) (string, error) {
	for _, setting := range step.Picks {
		if setting.Name != action.Setting {
			continue
		}
		for _, option := range setting.Options {
			if option.Name == action.Value {
				s.Picks.Set(setting.Name, option.Name)
				return "", nil
			}
		}
		var values []string
		for _, option := range setting.Options {
			values = append(values, option.Name)
		}
		return "", &Rejection{Message: fmt.Sprintf(
			"Sorry %s, that's not a possible value for this setting. Use one of the following: %s",
			names.ReplyTo, joinOr(values),
		)}
	}
	return "", s.rejectUnavailable(step, names, action.Setting, "pick")
}

// rejectUnavailable distinguishes an unknown setting from one that was
// already locked in earlier in the draft.
func (s *State) rejectUnavailable(step Step, names Names, setting, verb string) error {
	_, exists := s.Picks.Get(setting)
	var available []string
	if step.Kind == StepBan {
		for _, b := range step.Bans {
			available = append(available, b.Name)
		}
	} else {
		for _, p := range step.Picks {
			available = append(available, p.Name)
		}
	}
	reason := "I don't recognize that setting"
	if exists {
		reason = "that setting is already locked in"
	}
	skipHint := ""
	if exists && step.Skippable {
		skipHint = fmt.Sprintf(". Use “!skip” if you don't want to %s anything.", verb)
	}
	return &Rejection{Message: fmt.Sprintf(
		"Sorry %s, %s. Use one of the following: %s%s",
		names.ReplyTo, reason, joinOr(available), skipHint,
	)}
}

// CompleteRandomly plays out the remainder of the draft with uniformly
// random legal actions and returns the resulting picks. Used when a
// seed must be rolled before the players finished drafting.
func (s *State) CompleteRandomly(seq Sequence, rng *rand.Rand) *Picks {
	for {
		step := seq.NextStep(s, Names{})
		var action Action
		switch step.Kind {
		case StepGoFirst:
			action = GoFirst(rng.Intn(2) == 0)
		case StepBan:
			n := len(step.Bans)
			if step.Skippable {
				n++
			}
			if i := rng.Intn(n); i < len(step.Bans) {
				action = Ban(step.Bans[i].Name)
			} else {
				action = Skip()
			}
		case StepPick:
			n := len(step.Picks)
			if step.Skippable {
				n++
			}
			if i := rng.Intn(n); i < len(step.Picks) {
				setting := step.Picks[i]
				option := setting.Options[rng.Intn(len(setting.Options))]
				action = Pick(setting.Name, option.Name)
			} else {
				action = Skip()
			}
		case StepBooleanChoice:
			action = BooleanChoice(rng.Intn(2) == 0)
		case StepDone:
			return s.Picks
		}
		if _, err := s.Apply(seq, Names{}, action); err != nil {
			// Every generated action is legal for the current step.
			panic(fmt.Sprintf("draft: random action rejected: %v", err))
		}
	}
}

func settingNames(settings []BanSetting) []string {
	names := make([]string, len(settings))
	for i, s := range settings {
		names[i] = s.Name
	}
	return names
}

func joinOr(items []string) string {
	return strings.Join(items, " or ")
}

// englishJoin renders a list as natural English ("a", "a and b",
// "a, b, and c").
func englishJoin(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	case 2:
		return items[0] + " and " + items[1]
	default:
		return strings.Join(items[:len(items)-1], ", ") + ", and " + items[len(items)-1]
	}
}
