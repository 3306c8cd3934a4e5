// ABOUTME: Subcommand implementations for coven-client
// ABOUTME: Each command parses its own flags and prints results to the cli writer

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"golang.org/x/sync/errgroup"

	"github.com/2389/coven-client/internal/auth"
	"github.com/2389/coven-client/internal/fsutil"
	"github.com/2389/coven-client/internal/repository"
	"github.com/2389/coven-client/internal/session"
)

type cli struct {
	app *app
	out io.Writer
}

type command func(ctx context.Context, c *cli, args []string) error

var commands = map[string]command{
	"status":    runStatus,
	"login":     runLogin,
	"logout":    runLogout,
	"refresh":   runRefresh,
	"bootstrap": runBootstrap,
	"me":        runMe,
	"prompts":   runPrompts,
	"history":   runHistory,
	"upload":    runUpload,
	"logs":      runLogs,
	"watch":     runWatch,
}

func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

func (c *cli) stateString(st session.State) string {
	switch st {
	case session.StateAuthenticated:
		return color.GreenString(string(st))
	case session.StateRefreshing:
		return color.CyanString(string(st))
	case session.StateError:
		return color.RedString(string(st))
	default:
		return color.YellowString(string(st))
	}
}

func runStatus(_ context.Context, c *cli, args []string) error {
	if err := newFlagSet("status", c.out).Parse(args); err != nil {
		return err
	}

	a := c.app
	fmt.Fprintf(c.out, "Gateway:      %s\n", a.api.BaseURL())
	fmt.Fprintf(c.out, "Session:      %s\n", c.stateString(a.session.State()))

	if pair := a.session.Tokens(); !pair.IsZero() {
		fmt.Fprintf(c.out, "Tokens:       %s\n", pair)
		if claims, err := pair.Claims(); err == nil {
			fmt.Fprintf(c.out, "Subject:      %s\n", claims.Subject)
			if !claims.ExpiresAt.IsZero() {
				expiry := claims.ExpiresAt.Local().Format(time.RFC3339)
				if claims.Expired(time.Now()) {
					expiry = color.RedString(expiry + " (expired)")
				}
				fmt.Fprintf(c.out, "Expires:      %s\n", expiry)
			}
		}
	}

	if a.netlog != nil {
		fmt.Fprintf(c.out, "Network log:  %d entries\n", a.netlog.Len())
	} else {
		fmt.Fprintf(c.out, "Network log:  %s\n", color.HiBlackString("disabled"))
	}
	return nil
}

func runLogin(ctx context.Context, c *cli, args []string) error {
	fs := newFlagSet("login", c.out)
	access := fs.String("access", "", "access token")
	refresh := fs.String("refresh", "", "refresh token")
	if err := fs.Parse(args); err != nil {
		return err
	}

	pair := auth.TokenPair{
		AccessToken:  strings.TrimSpace(*access),
		RefreshToken: strings.TrimSpace(*refresh),
	}
	if !pair.Complete() {
		return fmt.Errorf("--access and --refresh are both required")
	}

	if err := c.app.session.LoginSucceeded(ctx, pair); err != nil {
		return fmt.Errorf("storing credentials: %w", err)
	}
	if err := c.app.manager.HandleBecameActive(ctx); err != nil {
		return err
	}

	return c.printSnapshot()
}

func runLogout(ctx context.Context, c *cli, args []string) error {
	if err := newFlagSet("logout", c.out).Parse(args); err != nil {
		return err
	}

	c.app.session.Logout(ctx)
	c.app.manager.ResetForSignOut()
	fmt.Fprintln(c.out, "Signed out.")
	return nil
}

func runRefresh(ctx context.Context, c *cli, args []string) error {
	if err := newFlagSet("refresh", c.out).Parse(args); err != nil {
		return err
	}

	err := c.app.session.Refresh(ctx, c.app.api)
	fmt.Fprintf(c.out, "Session:  %s\n", c.stateString(c.app.session.State()))
	if err != nil {
		return fmt.Errorf("refreshing session: %w", err)
	}
	return nil
}

func runBootstrap(ctx context.Context, c *cli, args []string) error {
	if err := newFlagSet("bootstrap", c.out).Parse(args); err != nil {
		return err
	}

	if err := c.app.manager.HandleBecameActive(ctx); err != nil {
		return err
	}
	return c.printSnapshot()
}

func (c *cli) printSnapshot() error {
	snap, ok := c.app.manager.Snapshot()
	if !ok {
		return fmt.Errorf("not signed in (session is %s)", c.app.session.State())
	}

	printAccount(c.out, snap.Account)
	fmt.Fprintf(c.out, "Entitlements: %s\n", strings.Join(c.app.manager.Entitlements().Names(), ", "))

	var enabled []string
	for name, on := range c.app.manager.Flags().Flags() {
		if on {
			enabled = append(enabled, name)
		}
	}
	slices.Sort(enabled)
	fmt.Fprintf(c.out, "Features:     %s\n", strings.Join(enabled, ", "))
	if snap.AppConfig.MinimumVersion != "" {
		fmt.Fprintf(c.out, "Min version:  %s\n", snap.AppConfig.MinimumVersion)
	}
	return nil
}

func printAccount(w io.Writer, acct repository.Account) {
	fmt.Fprintf(w, "Account:      %s (%s)\n", color.CyanString(acct.DisplayName), acct.Email)
	fmt.Fprintf(w, "Plan:         %s\n", acct.Plan)
}

func runMe(ctx context.Context, c *cli, args []string) error {
	fs := newFlagSet("me", c.out)
	name := fs.String("name", "", "new display name")
	email := fs.String("email", "", "new email address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var update repository.ProfileUpdate
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "name":
			update.DisplayName = name
		case "email":
			update.Email = email
		}
	})

	var (
		acct repository.Account
		err  error
	)
	if update.DisplayName != nil || update.Email != nil {
		acct, err = c.app.repos.Accounts.UpdateProfile(ctx, update)
	} else {
		acct, err = c.app.repos.Accounts.FetchMe(ctx)
	}
	if err != nil {
		return err
	}

	printAccount(c.out, acct)
	return nil
}

func runPrompts(ctx context.Context, c *cli, args []string) error {
	fs := newFlagSet("prompts", c.out)
	category := fs.String("category", "", "only prompts in this category")
	shuffle := fs.Bool("shuffle", false, "ask the gateway for a new order")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var (
		prompts []repository.Prompt
		err     error
	)
	if *shuffle {
		prompts, err = c.app.repos.Prompts.ShufflePrompts(ctx, *category)
	} else {
		prompts, err = c.app.repos.Prompts.ListPrompts(ctx, *category)
	}
	if err != nil {
		return err
	}

	if len(prompts) == 0 {
		fmt.Fprintln(c.out, "(no prompts)")
		return nil
	}

	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCATEGORY\tPROMPT")
	for _, p := range prompts {
		fmt.Fprintf(w, "%s\t%s\t%s\n", p.ID, p.Category, p.Text)
	}
	return w.Flush()
}

func runHistory(ctx context.Context, c *cli, args []string) error {
	fs := newFlagSet("history", c.out)
	del := fs.String("delete", "", "delete the recording with this ID")
	if err := fs.Parse(args); err != nil {
		return err
	}

	history := c.app.repos.History
	switch {
	case *del != "":
		if err := history.DeleteRecording(ctx, *del); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "Deleted %s.\n", *del)
		return nil

	case fs.NArg() > 0:
		rec, err := history.GetRecording(ctx, fs.Arg(0))
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "ID:        %s\n", rec.ID)
		fmt.Fprintf(c.out, "Title:     %s\n", rec.Title)
		fmt.Fprintf(c.out, "Duration:  %s\n", formatSeconds(rec.DurationSeconds))
		if !rec.CreatedAt.IsZero() {
			fmt.Fprintf(c.out, "Created:   %s\n", rec.CreatedAt.Local().Format("Jan 02 15:04"))
		}
		if rec.TranscriptPreview != "" {
			fmt.Fprintf(c.out, "\n%s\n", rec.TranscriptPreview)
		}
		return nil
	}

	recs, err := history.ListHistory(ctx)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Fprintln(c.out, "(no recordings)")
		return nil
	}

	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tDURATION\tCREATED")
	for _, r := range recs {
		title := r.Title
		if len(title) > 40 {
			title = title[:37] + "..."
		}
		created := ""
		if !r.CreatedAt.IsZero() {
			created = r.CreatedAt.Local().Format("Jan 02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.ID, title, formatSeconds(r.DurationSeconds), created)
	}
	return w.Flush()
}

func formatSeconds(s float64) string {
	return (time.Duration(s * float64(time.Second))).Round(time.Second).String()
}

func runUpload(ctx context.Context, c *cli, args []string) error {
	fs := newFlagSet("upload", c.out)
	filename := fs.String("filename", "", "name of the file being uploaded")
	contentType := fs.String("content-type", "audio/m4a", "MIME type of the file")
	size := fs.Int64("size", 0, "file size in bytes")
	prompt := fs.String("prompt", "", "prompt the recording answers")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *filename == "" || *size <= 0 {
		return fmt.Errorf("--filename and a positive --size are required")
	}

	uploads := c.app.repos.Uploads
	up, err := uploads.CreateUpload(ctx, repository.CreateUploadRequest{
		Filename:    *filename,
		ContentType: *contentType,
		SizeBytes:   *size,
		PromptID:    *prompt,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Upload:       %s (%s)\n", up.ID, up.Status)

	done, err := uploads.CompleteUpload(ctx, up.ID)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Completed:    %s\n", color.GreenString(done.Status))
	if done.RecordingID != "" {
		fmt.Fprintf(c.out, "Recording:    %s\n", done.RecordingID)
	}
	return nil
}

func runLogs(_ context.Context, c *cli, args []string) error {
	fs := newFlagSet("logs", c.out)
	asHTML := fs.Bool("html", false, "export as an HTML page instead of markdown")
	clearLog := fs.Bool("clear", false, "remove every entry")
	out := fs.String("out", "", "write the export to this file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	logs := c.app.netlog
	if logs == nil {
		return errors.New("the network log is disabled (netlog.enabled: false)")
	}

	if *clearLog {
		logs.Clear()
		fmt.Fprintln(c.out, "Network log cleared.")
		return nil
	}

	var doc string
	if *asHTML {
		var err error
		if doc, err = logs.ExportHTML(); err != nil {
			return fmt.Errorf("rendering network log: %w", err)
		}
	} else {
		doc = logs.ExportMarkdown()
	}

	if *out == "" {
		_, err := io.WriteString(c.out, doc)
		return err
	}
	if err := fsutil.WriteFileAtomic(*out, []byte(doc), 0600); err != nil {
		return fmt.Errorf("writing export: %w", err)
	}
	fmt.Fprintf(c.out, "Wrote %d entries to %s\n", logs.Len(), *out)
	return nil
}

// runWatch prints every session transition and re-bootstraps on a timer
// until interrupted. The manager's cooldown bounds the gateway traffic.
func runWatch(ctx context.Context, c *cli, args []string) error {
	fs := newFlagSet("watch", c.out)
	interval := fs.Duration("interval", time.Minute, "how often to bootstrap while authenticated")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *interval <= 0 {
		return fmt.Errorf("--interval must be positive")
	}

	a := c.app
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.manager.Run(gctx)
	})

	g.Go(func() error {
		for st := range a.session.WatchState(gctx) {
			fmt.Fprintf(c.out, "%s  session %s\n", time.Now().Format("15:04:05"), c.stateString(st))
			if st == session.StateAuthenticated {
				if err := a.manager.HandleBecameActive(gctx); err != nil {
					a.logger.Warn("bootstrap failed", "error", err)
				}
			}
		}
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(*interval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if err := a.manager.HandleBecameActive(gctx); err != nil {
					a.logger.Warn("bootstrap failed", "error", err)
				}
			}
		}
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}
