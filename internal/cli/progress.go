package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"smokeFreeAPI/internal/achievement"
	"smokeFreeAPI/internal/evaluator"
	"smokeFreeAPI/internal/event"
	"smokeFreeAPI/internal/logger"
	"smokeFreeAPI/internal/plan"
	"smokeFreeAPI/internal/settings"
	"smokeFreeAPI/internal/sync"
)

const (
	keyCachedPlan     = "cache.plan"
	keyCachedSettings = "cache.settings"
	keyCachedEarned   = "cache.earned"
)

var errNoCachedPlan = errors.New("no plan cached on this device, run `quitctl plan` while online")

type PlanCmd struct {
	Days int `default:"7" help:"How many days of targets to show."`
}

func (c *PlanCmd) Run(ctx *Context) error {
	p, err := refreshPlan(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Plan: %s, %d/day from %s to %s\n",
		p.ReductionMethod, p.InitialDailyAmount,
		p.StartDate.Format(time.DateOnly), p.QuitDate.Format(time.DateOnly))

	schedule, err := plan.Schedule(*p, time.Now(), c.Days)
	if err != nil {
		return err
	}
	for _, d := range schedule {
		fmt.Printf("  %s  %d\n", d.Date, d.Target)
	}
	return nil
}

// refreshPlan fetches the plan when the server is reachable and falls back
// to the cached copy otherwise. Settings and earned achievements are cached
// alongside it for offline progress.
func refreshPlan(ctx *Context) (*plan.QuitPlan, error) {
	bg := context.Background()
	if !ctx.Engine.IsOnline(bg) {
		return cachedPlan(bg, ctx.Store)
	}
	token, err := ctx.Token()
	if err != nil {
		return nil, err
	}

	var p plan.QuitPlan
	if err := ctx.Remote.GetJSON(bg, token, "/api/v1/plan", &p); err != nil {
		return nil, fmt.Errorf("failed to fetch plan: %w", err)
	}
	if err := cacheJSON(bg, ctx.Store, keyCachedPlan, p); err != nil {
		return nil, err
	}

	var st settings.Settings
	if err := ctx.Remote.GetJSON(bg, token, "/api/v1/settings", &st); err != nil {
		logger.Warn("Failed to fetch settings, keeping cached copy", "err", err)
	} else if err := cacheJSON(bg, ctx.Store, keyCachedSettings, st); err != nil {
		return nil, err
	}

	var list []achievement.AchievementWithStatus
	if err := ctx.Remote.GetJSON(bg, token, "/api/v1/achievements", &list); err != nil {
		logger.Warn("Failed to fetch achievements, keeping cached copy", "err", err)
	} else {
		earned := []string{}
		for _, a := range list {
			if a.Unlocked {
				earned = append(earned, a.Key)
			}
		}
		if err := cacheJSON(bg, ctx.Store, keyCachedEarned, earned); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

func cacheJSON(ctx context.Context, store sync.Storage, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := store.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("failed to cache %s: %w", key, err)
	}
	return nil
}

// readCached decodes key into out. ok is false when nothing is cached.
func readCached(ctx context.Context, store sync.Storage, key string, out any) (bool, error) {
	raw, ok, err := store.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

func cachedPlan(ctx context.Context, store sync.Storage) (*plan.QuitPlan, error) {
	var p plan.QuitPlan
	ok, err := readCached(ctx, store, keyCachedPlan, &p)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errNoCachedPlan
	}
	return &p, nil
}

type TargetCmd struct {
	Date string `arg:"" optional:"" help:"Day to check (YYYY-MM-DD). Defaults to today."`
}

func (c *TargetCmd) Run(ctx *Context) error {
	p, err := cachedPlan(context.Background(), ctx.Store)
	if err != nil {
		return err
	}
	day := time.Now()
	if c.Date != "" {
		day, err = time.ParseInLocation(time.DateOnly, c.Date, time.Local)
		if err != nil {
			return fmt.Errorf("invalid date %q: %w", c.Date, err)
		}
	}
	target, err := plan.DailyTarget(*p, day)
	if err != nil {
		return err
	}
	fmt.Printf("Target for %s: %d\n", day.Format(time.DateOnly), target)
	return nil
}

// ProgressCmd shows the server's evaluation when online and a device-local
// one computed from the ledger otherwise.
type ProgressCmd struct {
	Local bool `help:"Skip the server and evaluate on this device."`
}

func (c *ProgressCmd) Run(ctx *Context) error {
	bg := context.Background()

	if !c.Local && ctx.Engine.IsOnline(bg) {
		token, err := ctx.Token()
		if err != nil {
			return err
		}
		var res evaluator.Result
		if err := ctx.Remote.GetJSON(bg, token, "/api/v1/progress", &res); err == nil {
			printResult(res, "server")
			return nil
		}
	}

	entries, err := ctx.Engine.LocalEntries(bg)
	if err != nil {
		return err
	}
	res, complete, err := localEvaluation(bg, ctx.Store, entries, time.Now())
	if err != nil {
		return err
	}
	source := "device"
	if !complete {
		source = "device, approximate: run `quitctl plan` online to cache settings"
	}
	printResult(res, source)
	return nil
}

// localEvaluation runs the evaluator over the device ledger with the cached
// plan, settings and earned keys. complete is false when settings or earned
// keys were never cached and defaults stood in for them.
func localEvaluation(ctx context.Context, store sync.Storage, entries []sync.LedgerEntry, now time.Time) (evaluator.Result, bool, error) {
	p, err := cachedPlan(ctx, store)
	if err != nil {
		return evaluator.Result{}, false, err
	}

	st := settings.Defaults(uuid.Nil)
	haveSettings, err := readCached(ctx, store, keyCachedSettings, &st)
	if err != nil {
		return evaluator.Result{}, false, err
	}
	var earnedKeys []string
	haveEarned, err := readCached(ctx, store, keyCachedEarned, &earnedKeys)
	if err != nil {
		return evaluator.Result{}, false, err
	}
	earned := make(map[string]bool, len(earnedKeys))
	for _, k := range earnedKeys {
		earned[k] = true
	}

	var (
		events   []event.CountEvent
		journals int
	)
	for _, e := range entries {
		switch e.Kind {
		case sync.KindCountEvent:
			var ev event.CountEvent
			if err := json.Unmarshal(e.Payload, &ev); err != nil {
				return evaluator.Result{}, false, fmt.Errorf("corrupt local entry %s: %w", e.LocalID, err)
			}
			events = append(events, ev)
		case sync.KindJournalEntry:
			journals++
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Timestamp.Before(events[j].Timestamp) })

	res := evaluator.Evaluate(evaluator.Input{
		Plan:           p,
		Events:         events,
		Earned:         earned,
		JournalCount:   journals,
		Now:            now,
		Location:       st.Location(),
		Punishment:     st.Punishment(),
		DismissedUntil: st.DismissedUntil,
	})
	return res, haveSettings && haveEarned, nil
}

func printResult(res evaluator.Result, source string) {
	if res.Skipped {
		fmt.Printf("Progress unavailable (%s): %s\n", source, res.SkipReason)
		return
	}
	s := res.Stats
	fmt.Printf("Progress (%s)\n", source)
	fmt.Printf("  Today:          %d of %d\n", s.TodayCount, s.DailyTarget)
	fmt.Printf("  Smoke-free run: %d day(s), best %d\n", s.CurrentStreak, s.LongestStreak)
	fmt.Printf("  Avoided:        %d (%.0f%%)\n", s.TotalAvoided, s.ReductionRatio*100)
	fmt.Printf("  Money saved:    %.2f\n", s.MoneySaved)
	fmt.Printf("  Days on target: %d of %d\n", s.DaysOnTarget, s.ElapsedDays)

	for _, a := range res.NewAchievements {
		fmt.Printf("  * %s: %s\n", a.Title, a.Description)
	}
	if res.Punishment.Triggered {
		fmt.Printf("\n%s\n", res.Punishment.Message)
	}
}
