package room

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/midoshouse/racebot"
	"github.com/midoshouse/racebot/draft"
)

// rollLead is how long before the scheduled start a seed should be
// announced. Rolls finishing earlier are held back until then.
const rollLead = 15 * time.Minute

// Chat posts messages into the race room.
type Chat interface {
	Say(ctx context.Context, msg string) error
	SetRaceInfo(ctx context.Context, info string) error
}

// MonitorControl exposes the race service's entrant management,
// needed for the !monitor command.
type MonitorControl interface {
	AcceptRequest(ctx context.Context, userID string) error
	InviteUser(ctx context.Context, userID string) error
	AddMonitor(ctx context.Context, userID string) error
	RemoveEntrant(ctx context.Context, userID string) error
}

// SeedRoller generates seeds and streams progress. Implemented by
// roller.Orchestrator.
type SeedRoller interface {
	Roll(ctx context.Context, req racebot.SeedRequest) <-chan racebot.SeedRollUpdate
	RollThirdParty(ctx context.Context, req racebot.SeedRequest) <-chan racebot.SeedRollUpdate
}

// SpoilerService unlocks and downloads spoiler logs of web-rolled
// seeds. Implemented by web.Client.
type SpoilerService interface {
	UnlockSpoilerLog(ctx context.Context, id int64) error
	SpoilerLog(ctx context.Context, id int64) ([]byte, error)
}

// SeedSaver persists the rolled seed for tournament bookkeeping.
type SeedSaver interface {
	SaveSeed(ctx context.Context, raceID int64, seed *racebot.SeedRecord) error
}

// Message is the metadata of an inbound chat command.
type Message struct {
	UserID   string
	UserName string
	// Monitor is true when the race service marks the sender as a
	// race monitor.
	Monitor bool
}

func (m Message) replyTo() string {
	if m.UserName == "" {
		return "friend"
	}
	return m.UserName
}

// Phase is the per-room lifecycle position. It only ever moves
// forward, except that a failed roll returns to PhaseInit so the seed
// can be re-rolled.
type Phase int

const (
	PhaseInit Phase = iota
	PhaseDraft
	PhaseRolling
	PhaseRolled
	PhaseSpoilerSent
)

// Config configures a race room handler.
type Config struct {
	// Chat posts messages to the room (required).
	Chat Chat

	// Roller generates seeds (required).
	Roller SeedRoller

	// Goal is the event context for this race (required).
	Goal Goal

	// Monitor enables the !monitor command (optional).
	Monitor MonitorControl

	// Spoilers unlocks web seeds when the race ends (optional, but
	// web seeds stay locked without it).
	Spoilers SpoilerService

	// Saver persists the rolled seed (optional).
	Saver SeedSaver

	// Names are the draft team display names.
	Names draft.Names

	// Official marks tournament-scheduled races: drafts start
	// automatically, FPA is always on and re-rolls are monitor-gated.
	Official bool

	// StartTime is the scheduled start (zero when unscheduled). Seeds
	// are announced no earlier than StartTime minus fifteen minutes.
	StartTime time.Time

	// RaceID keys the persisted seed record.
	RaceID int64

	// ExistingSeed replays an already rolled seed into a re-opened
	// room instead of rolling a new one.
	ExistingSeed *racebot.SeedRecord

	// SeedDir is where unlocked spoiler logs are placed.
	SeedDir string

	// SeedBaseURL is the public page prefix for locally rolled seeds
	// (default: https://midos.house/seed).
	SeedBaseURL string

	// WebBaseURL is the public page prefix for web seeds (default:
	// https://ootrandomizer.com).
	WebBaseURL string

	// ThirdPartyBaseURL is the public page prefix for third-party
	// seeds (default: https://www.triforceblitz.com).
	ThirdPartyBaseURL string

	// IsOrganizer reports whether a user organizes this event,
	// extending monitor-gated commands to organizers (optional).
	IsOrganizer func(userID string) bool

	// Logger is an optional logger for observability.
	Logger *slog.Logger

	// Now is the clock (default: time.Now).
	Now func() time.Time
}

// Handler is the per-race-room state machine. One Handler exists per
// open room; inbound chat commands and race status changes drive it.
type Handler struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu         sync.Mutex
	phase      Phase
	seq        draft.Sequence
	draftState *draft.State
	unlock     racebot.UnlockPolicy
	seed       *racebot.SeedRecord
	status     racebot.RaceStatus
	locked     bool
	fpaEnabled bool
	breaks     *Breaks
	breaksRun  bool

	// done is closed when the race reaches a terminal status,
	// stopping the break notification task.
	done     chan struct{}
	doneOnce sync.Once
}

// New creates a Handler. It applies default values for SeedBaseURL,
// WebBaseURL, ThirdPartyBaseURL, Logger and Now.
func New(cfg Config) *Handler {
	if cfg.SeedBaseURL == "" {
		cfg.SeedBaseURL = "https://midos.house/seed"
	}
	if cfg.WebBaseURL == "" {
		cfg.WebBaseURL = "https://ootrandomizer.com"
	}
	if cfg.ThirdPartyBaseURL == "" {
		cfg.ThirdPartyBaseURL = "https://www.triforceblitz.com"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Handler{
		cfg:        cfg,
		logger:     cfg.Logger.With("race", cfg.RaceID, "goal", cfg.Goal.Name),
		now:        cfg.Now,
		status:     racebot.RaceStatusOpen,
		fpaEnabled: cfg.Official,
		done:       make(chan struct{}),
	}
}

// Phase returns the current lifecycle phase.
func (h *Handler) Phase() Phase {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.phase
}

// Start announces the room's initial state: replays an existing seed,
// begins the draft for official draft goals, or rolls immediately for
// official goals with fixed settings.
func (h *Handler) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cfg.ExistingSeed != nil {
		h.phase = PhaseRolling
		updates := make(chan racebot.SeedRollUpdate, 1)
		updates <- racebot.Done(h.cfg.ExistingSeed)
		close(updates)
		h.startRelay(ctx, updates, h.cfg.Goal.Article, h.cfg.Goal.Description, racebot.UnlockAfter)
		return nil
	}
	if !h.cfg.Official {
		return nil
	}
	if h.cfg.Goal.HasDraft() {
		return h.startDraft(ctx, h.cfg.Goal.Unlock)
	}
	plan := h.cfg.Goal.ParseSeedCommand(nil, false)
	switch plan.Kind {
	case PlanRoll:
		h.rollSeed(ctx, plan.Settings, plan.Unlock, h.cfg.Goal.Article, plan.Description, false)
	case PlanThirdParty:
		h.rollSeed(ctx, nil, plan.Unlock, h.cfg.Goal.Article, h.cfg.Goal.Description, true)
	}
	return nil
}

// HandleStatus reacts to a race status change from the race service.
// Finish and cancellation trigger the spoiler unlock exactly once.
func (h *Handler) HandleStatus(ctx context.Context, status racebot.RaceStatus) error {
	h.mu.Lock()
	h.status = status
	h.mu.Unlock()

	switch status {
	case racebot.RaceStatusInProgress:
		h.startBreakNotifications(ctx)
	case racebot.RaceStatusFinished, racebot.RaceStatusCancelled:
		h.doneOnce.Do(func() { close(h.done) })
		return h.sendSpoiler(ctx)
	}
	return nil
}

// HandleCommand dispatches one chat command. The command verb is
// case-insensitive and carries no leading "!".
func (h *Handler) HandleCommand(ctx context.Context, msg Message, cmd string, args []string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	lang := h.cfg.Goal.Language
	replyTo := msg.replyTo()
	switch strings.ToLower(cmd) {
	case "ban":
		switch len(args) {
		case 0:
			return h.sendSettings(ctx, fmt.Sprintf("Sorry %s, the setting is required. Use one of the following:", replyTo), replyTo)
		case 1:
			return h.draftAction(ctx, replyTo, draft.Ban(args[0]))
		default:
			return h.say(ctx, fmt.Sprintf("Sorry %s, only one setting can be banned at a time. Use “!ban <setting>”", replyTo))
		}
	case "draft", "pick":
		switch len(args) {
		case 0:
			return h.sendSettings(ctx, fmt.Sprintf("Sorry %s, the setting is required. Use one of the following:", replyTo), replyTo)
		case 1:
			return h.say(ctx, fmt.Sprintf("Sorry %s, the value is required.", replyTo))
		case 2:
			return h.draftAction(ctx, replyTo, draft.Pick(args[0], args[1]))
		default:
			return h.say(ctx, fmt.Sprintf("Sorry %s, only one setting can be drafted at a time. Use “!draft <setting> <value>”", replyTo))
		}
	case "first":
		return h.draftAction(ctx, replyTo, draft.GoFirst(true))
	case "second":
		return h.draftAction(ctx, replyTo, draft.GoFirst(false))
	case "yes":
		return h.draftAction(ctx, replyTo, draft.BooleanChoice(true))
	case "no":
		return h.draftAction(ctx, replyTo, draft.BooleanChoice(false))
	case "skip":
		return h.draftAction(ctx, replyTo, draft.Skip())
	case "settings":
		preface := "Draftable settings:"
		if h.phase == PhaseDraft {
			preface = "Currently draftable settings:"
		}
		return h.sendSettings(ctx, preface, replyTo)
	case "seed", "spoilerseed":
		return h.seedCommand(ctx, msg, strings.EqualFold(cmd, "spoilerseed"), args)
	case "presets":
		return h.sendPresets(ctx, replyTo)
	case "lock":
		if !h.canMonitor(msg) {
			return h.say(ctx, h.monitorsOnly(replyTo))
		}
		h.locked = true
		return h.say(ctx, fmt.Sprintf("Lock initiated. I will now only roll seeds for %s.", h.monitorsNoun()))
	case "unlock":
		if !h.canMonitor(msg) {
			return h.say(ctx, h.monitorsOnly(replyTo))
		}
		h.locked = false
		return h.say(ctx, "Lock released. Anyone may now roll a seed.")
	case "breaks", "break":
		return h.breaksCommand(ctx, replyTo, args)
	case "fpa":
		return h.fpaCommand(ctx, msg, args)
	case "monitor":
		return h.monitorCommand(ctx, msg)
	default:
		if lang == French {
			return h.say(ctx, fmt.Sprintf("Désolé %s, je ne reconnais pas cette commande.", replyTo))
		}
		return h.say(ctx, fmt.Sprintf("Sorry %s, I don't recognize that command.", replyTo))
	}
}

func (h *Handler) say(ctx context.Context, msg string) error {
	return h.cfg.Chat.Say(ctx, msg)
}

func (h *Handler) canMonitor(msg Message) bool {
	if msg.Monitor {
		return true
	}
	return h.cfg.Official && h.cfg.IsOrganizer != nil && h.cfg.IsOrganizer(msg.UserID)
}

func (h *Handler) monitorsNoun() string {
	if h.cfg.Official {
		return "race monitors or tournament organizers"
	}
	return "race monitors"
}

func (h *Handler) monitorsOnly(replyTo string) string {
	who := "race monitors"
	if h.cfg.Official {
		who = "race monitors and tournament organizers"
	}
	return fmt.Sprintf("Sorry %s, only %s can do that.", replyTo, who)
}

func (h *Handler) names(replyTo string) draft.Names {
	names := h.cfg.Names
	names.ReplyTo = replyTo
	return names
}

// startDraft enters the draft phase and announces the first step.
// Callers hold h.mu.
func (h *Handler) startDraft(ctx context.Context, unlock racebot.UnlockPolicy) error {
	seq, err := h.cfg.Goal.Sequence()
	if err != nil {
		return err
	}
	h.phase = PhaseDraft
	h.seq = seq
	h.draftState = draft.NewState()
	h.unlock = unlock
	return h.advanceDraft(ctx)
}

// advanceDraft announces the next draft step, or hands the finished
// settings to the roller. Callers hold h.mu.
func (h *Handler) advanceDraft(ctx context.Context) error {
	step := h.seq.NextStep(h.draftState, h.names("friend"))
	if step.Kind == draft.StepDone {
		description := fmt.Sprintf("seed with %s", h.seq.DescribePicks(h.draftState.Picks))
		h.rollSeed(ctx, step.Settings, h.unlock, "a", description, false)
		return nil
	}
	return h.say(ctx, step.Message)
}

func (h *Handler) draftAction(ctx context.Context, replyTo string, action draft.Action) error {
	if h.status.HasStarted() {
		return h.say(ctx, fmt.Sprintf("Sorry %s, but the race has already started.", replyTo))
	}
	if !h.cfg.Goal.HasDraft() {
		return h.say(ctx, fmt.Sprintf("Sorry %s, this event doesn't have a settings draft.", replyTo))
	}
	switch h.phase {
	case PhaseInit:
		return h.say(ctx, fmt.Sprintf("Sorry %s, no draft has been started. Use “!seed draft” to start one.", replyTo))
	case PhaseDraft:
		confirmation, err := h.draftState.Apply(h.seq, h.names(replyTo), action)
		if err != nil {
			var rejection *draft.Rejection
			if errors.As(err, &rejection) {
				return h.say(ctx, rejection.Message)
			}
			return err
		}
		if confirmation != "" {
			if err := h.say(ctx, confirmation); err != nil {
				return err
			}
		}
		return h.advanceDraft(ctx)
	default:
		return h.say(ctx, fmt.Sprintf("Sorry %s, there is no settings draft this race or the draft is already completed.", replyTo))
	}
}

func (h *Handler) seedCommand(ctx context.Context, msg Message, spoilerSeed bool, args []string) error {
	replyTo := msg.replyTo()
	if h.status.HasStarted() {
		return h.say(ctx, fmt.Sprintf("Sorry %s, but the race has already started.", replyTo))
	}
	switch h.phase {
	case PhaseDraft:
		return h.say(ctx, fmt.Sprintf("Sorry %s, settings are already being drafted.", replyTo))
	case PhaseRolling:
		return h.say(ctx, fmt.Sprintf("Sorry %s, but I'm already rolling a seed for this room. Please wait.", replyTo))
	case PhaseRolled, PhaseSpoilerSent:
		return h.say(ctx, fmt.Sprintf("Sorry %s, but I already rolled a seed. Check the race info!", replyTo))
	}

	if h.locked && !h.canMonitor(msg) {
		return h.say(ctx, fmt.Sprintf("Sorry %s, seed rolling is locked. Only %s may roll a seed for this race.", replyTo, h.monitorsNoun()))
	}

	plan := h.cfg.Goal.ParseSeedCommand(args, spoilerSeed)
	switch plan.Kind {
	case PlanRoll:
		h.rollSeed(ctx, plan.Settings, plan.Unlock, h.cfg.Goal.Article, plan.Description, false)
		return nil
	case PlanThirdParty:
		h.rollSeed(ctx, nil, plan.Unlock, h.cfg.Goal.Article, plan.Description, true)
		return nil
	case PlanStartDraft:
		return h.startDraft(ctx, plan.Unlock)
	case PlanPresets:
		if err := h.say(ctx, fmt.Sprintf("Sorry %s, %s. Use one of the following:", replyTo, plan.Msg)); err != nil {
			return err
		}
		return h.sendPresets(ctx, replyTo)
	default:
		return h.say(ctx, fmt.Sprintf("Sorry %s, %s.", replyTo, plan.Msg))
	}
}

// rollSeed starts a roll and its update relay. Callers hold h.mu.
func (h *Handler) rollSeed(ctx context.Context, settings racebot.Settings, unlock racebot.UnlockPolicy, article, description string, thirdParty bool) {
	h.phase = PhaseRolling

	req := racebot.NewSeedRequest(h.cfg.Goal.Version, settings, unlock)
	req.Preroll = h.cfg.Goal.Preroll
	req.RandomSettings = h.cfg.Goal.RandomSettings
	if !h.cfg.StartTime.IsZero() {
		req.NotBefore = h.cfg.StartTime.Add(-rollLead)
	}

	var updates <-chan racebot.SeedRollUpdate
	if thirdParty {
		updates = h.cfg.Roller.RollThirdParty(ctx, req)
	} else {
		updates = h.cfg.Roller.Roll(ctx, req)
	}
	h.startRelay(ctx, updates, article, description, unlock)
}

// startRelay spawns the goroutine consuming roll updates. When the
// announcement deadline lies in the future, terminal updates are held
// back until it passes. Callers hold h.mu.
func (h *Handler) startRelay(ctx context.Context, updates <-chan racebot.SeedRollUpdate, article, description string, unlock racebot.UnlockPolicy) {
	var delay time.Duration
	if !h.cfg.StartTime.IsZero() {
		delay = h.cfg.StartTime.Add(-rollLead).Sub(h.now())
	}

	go func() {
		if delay > 0 {
			lang := h.cfg.Goal.Language
			if lang == French {
				_ = h.say(ctx, fmt.Sprintf("Votre %s sera postée dans %s.", description, lang.FormatDuration(displayDelay(delay))))
			} else {
				_ = h.say(ctx, fmt.Sprintf("Your %s will be posted in %s.", description, English.FormatDuration(displayDelay(delay))))
			}
			timer := time.NewTimer(delay)
			defer timer.Stop()
			var held *racebot.SeedRollUpdate
		hold:
			for {
				select {
				case <-timer.C:
					break hold
				case u, ok := <-updates:
					if !ok {
						<-timer.C
						break hold
					}
					v := u
					held = &v
				}
			}
			if held != nil {
				h.handleUpdate(ctx, *held, article, description, unlock)
			}
		}
		for u := range updates {
			h.handleUpdate(ctx, u, article, description, unlock)
		}
	}()
}

// displayDelay rounds delays near the automatic 30 and 60 minute room
// opening schedules so the estimate doesn't leak the exact roll time.
func displayDelay(delay time.Duration) time.Duration {
	switch {
	case delay > 14*time.Minute && delay < 16*time.Minute:
		return 15 * time.Minute
	case delay > 44*time.Minute && delay < 46*time.Minute:
		return 45 * time.Minute
	default:
		return delay
	}
}

func (h *Handler) handleUpdate(ctx context.Context, u racebot.SeedRollUpdate, article, description string, unlock racebot.UnlockPolicy) {
	lang := h.cfg.Goal.Language
	switch u.Kind {
	case racebot.UpdateQueued:
		switch u.Position {
		case 0:
			_ = h.say(ctx, "I'm already rolling other multiworld seeds so your seed has been queued. It is at the front of the queue so it will be rolled next.")
		case 1:
			_ = h.say(ctx, "I'm already rolling other multiworld seeds so your seed has been queued. There is 1 seed in front of it in the queue.")
		default:
			_ = h.say(ctx, fmt.Sprintf("I'm already rolling other multiworld seeds so your seed has been queued. There are %d seeds in front of it in the queue.", u.Position))
		}
	case racebot.UpdateMovedForward:
		switch u.Position {
		case 0:
			_ = h.say(ctx, "The queue has moved and your seed is now at the front so it will be rolled next.")
		case 1:
			_ = h.say(ctx, "The queue has moved and there is only 1 more seed in front of yours.")
		default:
			_ = h.say(ctx, fmt.Sprintf("The queue has moved and there are now %d seeds in front of yours.", u.Position))
		}
	case racebot.UpdateStarted:
		if lang == French {
			_ = h.say(ctx, fmt.Sprintf("Génération d'%s %s…", article, description))
		} else {
			_ = h.say(ctx, fmt.Sprintf("Rolling %s %s…", article, description))
		}
	case racebot.UpdateDone:
		h.handleDone(ctx, u.Seed, unlock)
	case racebot.UpdateError:
		h.handleError(ctx, u.Err)
	}
}

func (h *Handler) handleDone(ctx context.Context, seed *racebot.SeedRecord, unlock racebot.UnlockPolicy) {
	h.mu.Lock()
	if h.phase != PhaseRolling {
		// The race moved on (cancelled, or the spoiler was already
		// sent) while the roll was in flight. Drop the result rather
		// than announcing a seed nobody will race.
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()

	lang := h.cfg.Goal.Language

	if unlock == racebot.UnlockNow && seed.Storage == racebot.StorageLocal && seed.LockedSpoilerPath != "" {
		dst := filepath.Join(h.cfg.SeedDir, seed.FileStem+"_Spoiler.json")
		if err := os.Rename(seed.LockedSpoilerPath, dst); err != nil {
			h.logger.Error("publishing spoiler log", "err", err)
		} else {
			seed.LockedSpoilerPath = ""
		}
	}

	if h.cfg.Saver != nil {
		if err := h.cfg.Saver.SaveSeed(ctx, h.cfg.RaceID, seed); err != nil {
			h.logger.Error("persisting seed record", "err", err)
		}
	}

	seedURL := h.seedURL(seed)
	if lang == French {
		_ = h.say(ctx, fmt.Sprintf("@entrants Voici votre seed : %s", seedURL))
	} else {
		_ = h.say(ctx, fmt.Sprintf("@entrants Here is your seed: %s", seedURL))
	}
	hashLine := formatHash(seed.FileHash)
	if hashLine != "" {
		_ = h.say(ctx, hashLine)
	}

	switch unlock {
	case racebot.UnlockNow:
		_ = h.say(ctx, "The spoiler log is also available on the seed page.")
	case racebot.UnlockProgression:
		_ = h.say(ctx, "The progression spoiler is also available on the seed page. The full spoiler will be available there after the race.")
	case racebot.UnlockAfter:
		if seed.Storage == racebot.StorageThirdPartyDaily {
			// Daily seeds unlock on a fixed schedule two days after
			// publication, at 20:00 UTC.
			unlockTime := seed.DailyDate.AddDate(0, 0, 2)
			unlockTime = time.Date(unlockTime.Year(), unlockTime.Month(), unlockTime.Day(), 20, 0, 0, 0, time.UTC)
			if wait := unlockTime.Sub(h.now()); wait > 0 {
				_ = h.say(ctx, fmt.Sprintf("The spoiler log will be available on the seed page in %s.", English.FormatDuration(wait)))
			}
		} else if lang == French {
			_ = h.say(ctx, "Le spoiler log sera disponible sur le lien de la seed après la seed.")
		} else {
			_ = h.say(ctx, "The spoiler log will be available on the seed page after the race.")
		}
	}

	info := seedURL
	if hashLine != "" {
		info = hashLine + "\n" + seedURL
	}
	if err := h.cfg.Chat.SetRaceInfo(ctx, info); err != nil {
		h.logger.Error("setting race info", "err", err)
	}

	h.mu.Lock()
	if h.phase == PhaseRolling {
		h.phase = PhaseRolled
	}
	h.seed = seed
	h.unlock = unlock
	h.mu.Unlock()
}

func (h *Handler) handleError(ctx context.Context, err error) {
	h.mu.Lock()
	if h.phase != PhaseRolling {
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()

	var retryErr *racebot.RetryError
	if errors.As(err, &retryErr) {
		h.logger.Error("seed rolling exhausted retries", "retries", retryErr.NumRetries, "last_error", retryErr.LastError)
		if h.cfg.Goal.Language == French {
			_ = h.say(ctx, fmt.Sprintf("Désolé @entrants, le randomizer a rapporté une erreur %d fois de suite donc je vais laisser tomber. Veuillez réessayer et, si l'erreur persiste, essayer de roll une seed de votre côté.", retryErr.NumRetries))
		} else {
			_ = h.say(ctx, fmt.Sprintf("Sorry @entrants, the randomizer reported an error %d times, so I'm giving up on rolling the seed. Please try again.", retryErr.NumRetries))
		}
	} else {
		h.logger.Error("seed roll failed", "err", err)
		_ = h.say(ctx, "Sorry @entrants, something went wrong while rolling the seed. Please try again and if necessary roll the seed manually.")
	}

	h.mu.Lock()
	if h.phase == PhaseRolling {
		h.phase = PhaseInit
	}
	h.mu.Unlock()
}

func (h *Handler) seedURL(seed *racebot.SeedRecord) string {
	switch seed.Storage {
	case racebot.StorageWeb:
		return fmt.Sprintf("%s/seed/get?id=%d", h.cfg.WebBaseURL, seed.WebID)
	case racebot.StorageThirdParty:
		return fmt.Sprintf("%s/seed/%s", h.cfg.ThirdPartyBaseURL, seed.ThirdPartyID)
	case racebot.StorageThirdPartyDaily:
		return fmt.Sprintf("%s/seed/daily/%d", h.cfg.ThirdPartyBaseURL, seed.DailyOrdinal)
	default:
		return fmt.Sprintf("%s/%s", h.cfg.SeedBaseURL, seed.FileStem)
	}
}

func formatHash(hash []racebot.HashIcon) string {
	if len(hash) == 0 {
		return ""
	}
	parts := make([]string, len(hash))
	for i, icon := range hash {
		parts[i] = string(icon)
	}
	return strings.Join(parts, " ")
}

// sendSpoiler publishes the spoiler log once the race is over. A
// second finish or cancel notification is a no-op.
func (h *Handler) sendSpoiler(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.phase == PhaseSpoilerSent {
		return nil
	}
	if h.phase == PhaseRolled && h.seed != nil {
		if h.unlock == racebot.UnlockAfter || h.unlock == racebot.UnlockProgression {
			if err := h.publishSpoiler(ctx, h.seed); err != nil {
				h.logger.Error("unlocking spoiler log", "err", err)
			}
		}
	}
	h.phase = PhaseSpoilerSent
	return nil
}

func (h *Handler) publishSpoiler(ctx context.Context, seed *racebot.SeedRecord) error {
	switch seed.Storage {
	case racebot.StorageLocal:
		if seed.LockedSpoilerPath == "" {
			return nil
		}
		dst := filepath.Join(h.cfg.SeedDir, seed.FileStem+"_Spoiler.json")
		if err := os.Rename(seed.LockedSpoilerPath, dst); err != nil {
			return err
		}
		seed.LockedSpoilerPath = ""
		return nil
	case racebot.StorageWeb:
		if h.cfg.Spoilers == nil {
			return errors.New("no spoiler service configured")
		}
		if err := h.cfg.Spoilers.UnlockSpoilerLog(ctx, seed.WebID); err != nil {
			return err
		}
		log, err := h.cfg.Spoilers.SpoilerLog(ctx, seed.WebID)
		if err != nil {
			return err
		}
		return os.WriteFile(filepath.Join(h.cfg.SeedDir, seed.FileStem+"_Spoiler.json"), log, 0o644)
	default:
		// Third-party seeds unlock on the service's own schedule.
		return nil
	}
}

func (h *Handler) sendSettings(ctx context.Context, preface, replyTo string) error {
	if !h.cfg.Goal.HasDraft() {
		return h.say(ctx, fmt.Sprintf("Sorry %s, this event doesn't have a settings draft.", replyTo))
	}
	seq := h.seq
	if seq == nil {
		var err error
		if seq, err = h.cfg.Goal.Sequence(); err != nil {
			return err
		}
	}

	var descriptions []string
	if h.phase == PhaseDraft {
		step := seq.NextStep(h.draftState, h.names(replyTo))
		switch step.Kind {
		case draft.StepGoFirst:
			for _, s := range seq.AllSettings() {
				descriptions = append(descriptions, s.Description)
			}
		case draft.StepBan:
			for _, s := range step.Bans {
				descriptions = append(descriptions, s.Description)
			}
		case draft.StepPick:
			for _, s := range step.Picks {
				descriptions = append(descriptions, s.Description)
			}
		}
	} else {
		for _, s := range seq.AllSettings() {
			descriptions = append(descriptions, s.Description)
		}
	}

	if len(descriptions) == 0 {
		return h.say(ctx, fmt.Sprintf("Sorry %s, no settings are currently available.", replyTo))
	}
	if err := h.say(ctx, preface); err != nil {
		return err
	}
	for _, d := range descriptions {
		if err := h.say(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) sendPresets(ctx context.Context, replyTo string) error {
	if len(h.cfg.Goal.Presets) == 0 {
		return h.say(ctx, fmt.Sprintf("Sorry %s, this goal has no presets.", replyTo))
	}
	if err := h.say(ctx, "Available presets:"); err != nil {
		return err
	}
	for _, p := range h.cfg.Goal.Presets {
		if err := h.say(ctx, fmt.Sprintf("%s: %s", p.Name, p.Display)); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) breaksCommand(ctx context.Context, replyTo string, args []string) error {
	lang := h.cfg.Goal.Language
	if len(args) == 0 {
		if h.breaks != nil {
			return h.say(ctx, fmt.Sprintf("Breaks are currently set to %s. Disable with !breaks off", h.breaks.Format(lang)))
		}
		return h.say(ctx, "Breaks are currently disabled. Example command to enable: !breaks 5m every 2h30")
	}
	if len(args) == 1 && strings.EqualFold(args[0], "off") {
		if h.status.HasStarted() {
			return h.say(ctx, fmt.Sprintf("Sorry %s, but the race has already started.", replyTo))
		}
		h.breaks = nil
		return h.say(ctx, "Breaks are now disabled.")
	}

	breaks, err := ParseBreaks(strings.Join(args, " "))
	if err != nil {
		return h.say(ctx, fmt.Sprintf("Sorry %s, I don't recognize that format for breaks. Example commands: !breaks 5m every 2h30, !breaks off", replyTo))
	}
	switch {
	case breaks.Duration < time.Minute:
		return h.say(ctx, fmt.Sprintf("Sorry %s, minimum break time (if enabled at all) is 1 minute. You can disable breaks entirely with !breaks off", replyTo))
	case breaks.Interval < breaks.Duration+5*time.Minute:
		return h.say(ctx, fmt.Sprintf("Sorry %s, there must be a minimum of 5 minutes between breaks since I notify runners 5 minutes in advance.", replyTo))
	case breaks.Duration+breaks.Interval >= 24*time.Hour:
		return h.say(ctx, fmt.Sprintf("Sorry %s, race rooms are automatically closed after 24 hours so these breaks wouldn't work.", replyTo))
	}
	h.breaks = &breaks
	return h.say(ctx, fmt.Sprintf("Breaks set to %s.", breaks.Format(lang)))
}

// startBreakNotifications runs the break reminder loop for the rest of
// the race. It starts at most once.
func (h *Handler) startBreakNotifications(ctx context.Context) {
	h.mu.Lock()
	breaks := h.breaks
	if breaks == nil || h.breaksRun {
		h.mu.Unlock()
		return
	}
	h.breaksRun = true
	h.mu.Unlock()

	go func() {
		warning := 5 * time.Minute
		if !h.sleepUnlessOver(breaks.Interval - warning) {
			return
		}
		for {
			_ = h.say(ctx, "@entrants Reminder: Next break in 5 minutes.")
			if !h.sleepUnlessOver(warning) {
				return
			}
			_ = h.say(ctx, fmt.Sprintf("@entrants Break time! Please pause for %s.", English.FormatDuration(breaks.Duration)))
			if !h.sleepUnlessOver(breaks.Duration) {
				return
			}
			_ = h.say(ctx, "@entrants Break ended. You may resume playing.")
			if !h.sleepUnlessOver(breaks.Interval - breaks.Duration - warning) {
				return
			}
		}
	}()
}

// sleepUnlessOver waits d, returning false if the race ends first.
func (h *Handler) sleepUnlessOver(d time.Duration) bool {
	if d < 0 {
		d = 0
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-h.done:
		return false
	}
}

func (h *Handler) fpaCommand(ctx context.Context, msg Message, args []string) error {
	replyTo := msg.replyTo()
	if len(args) == 0 {
		if !h.fpaEnabled {
			return h.say(ctx, "Fair play agreement is not active. Race monitors may enable FPA for this race with !fpa on")
		}
		if !h.status.HasStarted() {
			return h.say(ctx, "FPA cannot be invoked before the race starts.")
		}
		return h.say(ctx, fmt.Sprintf("@everyone FPA has been invoked by %s. The team that did not call FPA can continue playing; the race will be retimed once completed.", replyTo))
	}
	if len(args) > 1 {
		return h.say(ctx, fmt.Sprintf("Sorry %s, I didn't quite understand that. Use “!fpa on” or “!fpa off”, or just “!fpa” to invoke FPA.", replyTo))
	}
	switch strings.ToLower(args[0]) {
	case "on":
		if h.cfg.Official {
			return h.say(ctx, "Fair play agreement is always active in official races.")
		}
		if !h.canMonitor(msg) {
			return h.say(ctx, h.monitorsOnly(replyTo))
		}
		if h.fpaEnabled {
			return h.say(ctx, "Fair play agreement is already activated.")
		}
		h.fpaEnabled = true
		return h.say(ctx, "Fair play agreement is now active. @entrants may use the !fpa command during the race to notify of a crash. Race monitors should enable notifications using the bell 🔔 icon below chat.")
	case "off":
		if h.cfg.Official {
			return h.say(ctx, fmt.Sprintf("Sorry %s, but FPA can't be deactivated for official races.", replyTo))
		}
		if !h.canMonitor(msg) {
			return h.say(ctx, h.monitorsOnly(replyTo))
		}
		if !h.fpaEnabled {
			return h.say(ctx, "Fair play agreement is not active.")
		}
		h.fpaEnabled = false
		return h.say(ctx, "Fair play agreement is now deactivated.")
	default:
		return h.say(ctx, fmt.Sprintf("Sorry %s, I don't recognize that subcommand. Use “!fpa on” or “!fpa off”, or just “!fpa” to invoke FPA.", replyTo))
	}
}

func (h *Handler) monitorCommand(ctx context.Context, msg Message) error {
	replyTo := msg.replyTo()
	if !h.cfg.Official || h.cfg.Monitor == nil {
		return h.say(ctx, fmt.Sprintf("Sorry %s, this command is only available for official races.", replyTo))
	}
	if !h.canMonitor(msg) {
		return h.say(ctx, fmt.Sprintf("Sorry %s, only tournament organizers can do that.", replyTo))
	}
	if err := h.cfg.Monitor.InviteUser(ctx, msg.UserID); err != nil {
		return err
	}
	if err := h.cfg.Monitor.AddMonitor(ctx, msg.UserID); err != nil {
		return err
	}
	return h.cfg.Monitor.RemoveEntrant(ctx, msg.UserID)
}
