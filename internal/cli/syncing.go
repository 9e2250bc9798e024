package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"smokeFreeAPI/internal/sync"
)

type SyncCmd struct{}

func (c *SyncCmd) Run(ctx *Context) error {
	token, err := ctx.Token()
	if err != nil {
		return err
	}
	bg := context.Background()
	if !ctx.Engine.IsOnline(bg) {
		fmt.Printf("Offline. %d item(s) waiting.\n", ctx.Engine.PendingCount())
		return nil
	}

	report, err := ctx.Engine.Drain(bg, token)
	if errors.Is(err, sync.ErrDrainInProgress) {
		fmt.Println("Another sync is already running.")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Printf("Synced %d, failed %d, rejected %d, remaining %d (%s)\n",
		report.Synced, report.Failed, report.Rejected, report.Remaining, report.Duration.Round(time.Millisecond))
	return nil
}

type StatusCmd struct {
	Verbose bool `short:"v" help:"List every pending item."`
}

func (c *StatusCmd) Run(ctx *Context) error {
	bg := context.Background()
	cur, err := ctx.Engine.Cursor(bg)
	if err != nil {
		return err
	}
	rejected, err := ctx.Engine.Rejected(bg)
	if err != nil {
		return err
	}

	fmt.Printf("Pending sync: %d\n", cur.PendingCount)
	if cur.LastSyncTimestamp != nil {
		fmt.Printf("Last sync:    %s\n", cur.LastSyncTimestamp.Local().Format(time.DateTime))
	} else {
		fmt.Println("Last sync:    never")
	}
	if len(rejected) > 0 {
		fmt.Printf("Rejected:     %d (see `quitctl rejected`)\n", len(rejected))
	}

	if !c.Verbose {
		return nil
	}
	pending, err := ctx.Engine.Pending(bg)
	if err != nil {
		return err
	}
	for _, item := range pending {
		fmt.Printf("  %s  %-12s attempts=%d  %s\n",
			item.CreatedAt.Local().Format(time.DateTime), item.Kind, item.Attempts, item.LastError)
	}
	return nil
}

type OnlineCmd struct{}

func (c *OnlineCmd) Run(ctx *Context) error {
	if ctx.Engine.IsOnline(context.Background()) {
		fmt.Println("online")
	} else {
		fmt.Println("offline")
	}
	return nil
}

type RejectedCmd struct {
	Clear bool `help:"Forget the rejected items after listing them."`
}

func (c *RejectedCmd) Run(ctx *Context) error {
	bg := context.Background()
	rejected, err := ctx.Engine.Rejected(bg)
	if err != nil {
		return err
	}
	if len(rejected) == 0 {
		fmt.Println("No rejected items.")
		return nil
	}
	for _, r := range rejected {
		fmt.Printf("%s  %-12s %d %s\n  %s\n",
			r.RejectedAt.Local().Format(time.DateTime), r.Kind, r.StatusCode, r.Reason, string(r.Payload))
	}
	if c.Clear {
		return ctx.Engine.ClearRejected(bg)
	}
	return nil
}

type WatchCmd struct {
	Interval time.Duration `default:"30s" help:"How often to check connectivity."`
}

func (c *WatchCmd) Run(ctx *Context) error {
	token, err := ctx.Token()
	if err != nil {
		return err
	}
	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Watching every %s, Ctrl+C to stop.\n", c.Interval)
	err = ctx.Engine.Run(runCtx, token, c.Interval)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
