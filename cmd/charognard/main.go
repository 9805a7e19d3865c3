package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"charognard/internal/analytics"
	"charognard/internal/cmdlog"
	"charognard/internal/config"
	"charognard/internal/jobs"
	"charognard/internal/logging"
	"charognard/internal/message"
	"charognard/internal/metrics"
	"charognard/internal/model"
	"charognard/internal/relay"
	"charognard/internal/schedule"
	"charognard/internal/store"
)

func main() {
	app := cli.App{
		Name:  "charognard",
		Usage: "paced Instagram follow/unfollow automation",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: "./charognard.yaml", Usage: "config path", EnvVars: []string{"CHAROGNARD_CONFIG"}},
		},
	}
	app.Commands = []*cli.Command{
		{
			Name:  "init",
			Usage: "write a default config file",
			Flags: []cli.Flag{&cli.StringFlag{Name: "path", Value: "./charognard.yaml", Usage: "path to write config"}},
			Action: func(cctx *cli.Context) error {
				return cmdlog.Run("init", func() error { return runInit(cctx) })
			},
		},
		{
			Name:   "serve",
			Usage:  "run the scheduler and the message relay until interrupted",
			Action: withDeps("serve", runServe),
		},
		{
			Name:   "run",
			Usage:  "perform one automation pass now",
			Action: withDeps("run", runAutomation),
		},
		{
			Name:   "status",
			Usage:  "show quotas, automation settings and follow-back stats",
			Action: withDeps("status", runStatus),
		},
		{
			Name:   "suggestions",
			Usage:  "list one page of suggested accounts",
			Flags:  []cli.Flag{&cli.StringFlag{Name: "cursor", Usage: "continuation cursor"}},
			Action: withDeps("suggestions", runSuggestions),
		},
		{
			Name:   "followed",
			Usage:  "list tracked profiles",
			Action: withDeps("followed", runFollowed),
		},
		{
			Name:   "check",
			Usage:  "refresh the follow-back status of every tracked profile",
			Action: withDeps("check", runCheck),
		},
		{
			Name:      "follow",
			Usage:     "follow accounts by id, or the first suggestions",
			ArgsUsage: "[id...]",
			Flags: []cli.Flag{
				&cli.IntFlag{Name: "suggested", Usage: "follow the first N suggestions"},
				&cli.BoolFlag{Name: "include-private", Usage: "keep private accounts when following suggestions"},
			},
			Action: withDeps("follow", runFollow),
		},
		{
			Name:      "unfollow",
			Usage:     "unfollow accounts by id",
			ArgsUsage: "[id...]",
			Flags:     []cli.Flag{&cli.IntFlag{Name: "older-than", Usage: "unfollow every profile tracked for more than N days"}},
			Action:    withDeps("unfollow", runUnfollow),
		},
		{
			Name:      "untrack",
			Usage:     "stop tracking profiles without unfollowing them",
			ArgsUsage: "[id...]",
			Flags:     []cli.Flag{&cli.BoolFlag{Name: "all", Usage: "clear all tracking"}},
			Action:    withDeps("untrack", runUntrack),
		},
		{
			Name:  "settings",
			Usage: "show or edit the daily limits",
			Flags: []cli.Flag{
				&cli.IntFlag{Name: "follow-limit"},
				&cli.IntFlag{Name: "unfollow-limit"},
				&cli.BoolFlag{Name: "skip-followers"},
				&cli.BoolFlag{Name: "reset", Usage: "restore the default limits"},
			},
			Action: withDeps("settings", runSettings),
		},
		{
			Name:  "automation",
			Usage: "show or edit the automation settings",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "enabled"},
				&cli.StringFlag{Name: "frequency", Usage: "Daily or Weekly"},
				&cli.IntFlag{Name: "day", Usage: "day of week, 0 is Sunday"},
				&cli.IntFlag{Name: "hour"},
				&cli.IntFlag{Name: "minute"},
				&cli.BoolFlag{Name: "follow"},
				&cli.IntFlag{Name: "follow-count"},
				&cli.BoolFlag{Name: "unfollow"},
				&cli.IntFlag{Name: "unfollow-days"},
				&cli.BoolFlag{Name: "only-non-followers"},
			},
			Action: withDeps("automation", runAutomationSettings),
		},
		{
			Name:   "next",
			Usage:  "show the next scheduled run",
			Action: withDeps("next", runNext),
		},
		{
			Name:   "stats",
			Usage:  "show hourly actions of the last day (sqlite storage only)",
			Flags:  []cli.Flag{&cli.DurationFlag{Name: "since", Value: 24 * time.Hour}},
			Action: withDeps("stats", runStats),
		},
		{
			Name:      "send",
			Usage:     "send one message to a running relay",
			ArgsUsage: "TYPE [userId]",
			Flags:     []cli.Flag{&cli.StringFlag{Name: "addr", Usage: "relay address, defaults to server.addr"}},
			Action: func(cctx *cli.Context) error {
				return cmdlog.Run("send", func() error { return runSend(cctx) })
			},
		},
		{
			Name:  "onboarding",
			Usage: "follow the developer and like their latest post, once",
			Subcommands: []*cli.Command{
				{Name: "start", Action: withDeps("onboarding_start", runOnboardingStart)},
				{
					Name:   "complete",
					Flags:  []cli.Flag{&cli.BoolFlag{Name: "followed", Value: true}},
					Action: withDeps("onboarding_complete", runOnboardingComplete),
				},
				{Name: "undo-follow", Action: withDeps("onboarding_undo_follow", runOnboardingUndoFollow)},
				{Name: "undo-like", ArgsUsage: "MEDIA_ID", Action: withDeps("onboarding_undo_like", runOnboardingUndoLike)},
			},
		},
	}
	app.RunAndExitOnError()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runInit(cctx *cli.Context) error {
	path := cctx.String("path")
	if err := config.Save(path, config.Default()); err != nil {
		return err
	}
	abs, _ := filepath.Abs(path)
	fmt.Println("Config written to:", abs)
	return nil
}

func runServe(cctx *cli.Context, d *deps) error {
	ctx, stop := signal.NotifyContext(cctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	content := relay.NewContent(d.account, d.client, d.bulk, d.engine)
	tabs := relay.NewSession(nil)
	if d.account() != "" {
		tabs.Attach(content)
	}
	var rl *relay.Relay
	sched := schedule.New(d.store, schedule.RunnerFunc(func(ctx context.Context) error {
		return rl.RunAutomation(ctx)
	}), schedule.WithLocation(d.loc))
	rl = relay.New(tabs, sched)

	metrics.StartServer(d.cfg.Server.MetricsAddr)
	srv := relay.NewServer(d.cfg.Server.Addr, rl, d.cfg.Server.MessagesPerSecond, d.cfg.Server.MessageBurst)
	return jobs.RunDaemon(ctx, sched, srv)
}

func runAutomation(cctx *cli.Context, d *deps) error {
	sum, err := d.engine.Run(cctx.Context, d.account())
	if perr := printJSON(sum); perr != nil {
		return perr
	}
	return err
}

func runStatus(cctx *cli.Context, d *deps) error {
	ctx := cctx.Context
	acct := d.account()
	if acct == "" {
		return store.ErrNotLoggedIn
	}
	out := map[string]any{"account": acct, "date": d.quota.Today()}
	for _, a := range []model.ActionType{model.ActionFollow, model.ActionUnfollow} {
		n, err := d.quota.Remaining(ctx, acct, a)
		if err != nil {
			return err
		}
		out[string(a)+"Remaining"] = n
	}
	auto, err := d.store.Automation(ctx)
	if err != nil {
		return err
	}
	out["automation"] = auto
	if auto.Enabled {
		out["nextRun"] = schedule.NextRun(time.Now().In(d.loc), auto).Format(time.RFC3339)
	}
	profiles, err := d.store.FollowedProfiles(ctx, acct)
	if err != nil {
		return err
	}
	out["followBack"] = analytics.FollowBack(profiles)
	ob, err := d.store.Onboarding(ctx)
	if err != nil {
		return err
	}
	out["onboarding"] = ob
	return printJSON(out)
}

func runSuggestions(cctx *cli.Context, d *deps) error {
	page, err := d.client.FetchSuggestions(cctx.Context, cctx.String("cursor"))
	if err != nil {
		return err
	}
	for _, s := range page.Suggestions {
		flags := ""
		if s.User.IsPrivate {
			flags += " private"
		}
		if s.User.IsVerified {
			flags += " verified"
		}
		fmt.Printf("%s %s (%s)%s\n", s.User.ID, s.User.Handle(), s.User.FullName, flags)
	}
	if page.HasMore {
		fmt.Println("next cursor:", page.NextCursor)
	}
	return nil
}

func runFollowed(cctx *cli.Context, d *deps) error {
	profiles, err := d.store.FollowedProfiles(cctx.Context, d.account())
	if err != nil {
		return err
	}
	now := time.Now()
	for _, p := range profiles {
		fmt.Printf("%s %s followed %s, %s: %s\n", p.User.ID, p.User.Handle(),
			analytics.FollowedAgo(p.FollowedAt, now), p.FollowedBack, analytics.LastChecked(p.LastCheckedAt, now))
	}
	fmt.Printf("%d tracked\n", len(profiles))
	return nil
}

func runCheck(cctx *cli.Context, d *deps) error {
	res, err := d.bulk.CheckAll(cctx.Context, d.account())
	if err != nil {
		return err
	}
	return printJSON(res)
}

func runFollow(cctx *cli.Context, d *deps) error {
	ctx := cctx.Context
	acct := d.account()
	ids := cctx.Args().Slice()
	if n := cctx.Int("suggested"); n > 0 {
		page, err := d.client.FetchSuggestions(ctx, "")
		if err != nil {
			return err
		}
		var users []model.User
		for _, s := range page.Suggestions {
			if len(users) == n {
				break
			}
			if s.User.IsPrivate && !cctx.Bool("include-private") {
				continue
			}
			users = append(users, s.User)
		}
		res, err := d.bulk.MassFollow(ctx, acct, users)
		if perr := printJSON(res); perr != nil {
			return perr
		}
		return err
	}
	switch len(ids) {
	case 0:
		return errors.New("follow: need at least one id or --suggested")
	case 1:
		return d.bulk.FollowID(ctx, acct, ids[0])
	}
	users := make([]model.User, len(ids))
	for i, id := range ids {
		users[i] = model.User{ID: id}
	}
	res, err := d.bulk.MassFollow(ctx, acct, users)
	if perr := printJSON(res); perr != nil {
		return perr
	}
	return err
}

func runUnfollow(cctx *cli.Context, d *deps) error {
	ctx := cctx.Context
	acct := d.account()
	ids := cctx.Args().Slice()
	if days := cctx.Int("older-than"); days > 0 {
		old, err := d.store.ProfilesOlderThan(ctx, acct, time.Now().AddDate(0, 0, -days))
		if err != nil {
			return err
		}
		for _, p := range old {
			ids = append(ids, p.User.ID)
		}
	}
	switch len(ids) {
	case 0:
		fmt.Println("nothing to unfollow")
		return nil
	case 1:
		return d.bulk.Unfollow(ctx, acct, ids[0])
	}
	res, err := d.bulk.MassUnfollow(ctx, acct, ids)
	if perr := printJSON(res); perr != nil {
		return perr
	}
	return err
}

func runUntrack(cctx *cli.Context, d *deps) error {
	ctx := cctx.Context
	if cctx.Bool("all") {
		n, err := d.bulk.ClearTracking(ctx, d.account())
		if err != nil {
			return err
		}
		fmt.Printf("stopped tracking %d profiles\n", n)
		return nil
	}
	for _, id := range cctx.Args().Slice() {
		found, err := d.bulk.RemoveFromTracking(ctx, d.account(), id)
		if err != nil {
			return err
		}
		if !found {
			fmt.Println("not tracked:", id)
		}
	}
	return nil
}

func runSettings(cctx *cli.Context, d *deps) error {
	ctx := cctx.Context
	if cctx.Bool("reset") {
		s, err := d.store.ResetSettings(ctx)
		if err != nil {
			return err
		}
		return printJSON(s)
	}
	var p store.SettingsPatch
	var changed bool
	if cctx.IsSet("follow-limit") {
		v := cctx.Int("follow-limit")
		p.FollowLimit, changed = &v, true
	}
	if cctx.IsSet("unfollow-limit") {
		v := cctx.Int("unfollow-limit")
		p.UnfollowLimit, changed = &v, true
	}
	if cctx.IsSet("skip-followers") {
		v := cctx.Bool("skip-followers")
		p.SkipFollowers, changed = &v, true
	}
	if !changed {
		s, err := d.store.Settings(ctx)
		if err != nil {
			return err
		}
		return printJSON(s)
	}
	s, err := d.store.UpdateSettings(ctx, p)
	if err != nil {
		return err
	}
	return printJSON(s)
}

func runAutomationSettings(cctx *cli.Context, d *deps) error {
	ctx := cctx.Context
	var p store.AutomationPatch
	var changed bool
	boolFlag := func(name string) *bool {
		if !cctx.IsSet(name) {
			return nil
		}
		v := cctx.Bool(name)
		changed = true
		return &v
	}
	intFlag := func(name string) *int {
		if !cctx.IsSet(name) {
			return nil
		}
		v := cctx.Int(name)
		changed = true
		return &v
	}
	p.Enabled = boolFlag("enabled")
	if cctx.IsSet("frequency") {
		f := store.Frequency(cctx.String("frequency"))
		p.Frequency, changed = &f, true
	}
	if cctx.IsSet("day") {
		w := time.Weekday(cctx.Int("day"))
		p.DayOfWeek, changed = &w, true
	}
	p.Hour = intFlag("hour")
	p.Minute = intFlag("minute")
	p.AutoFollowEnabled = boolFlag("follow")
	p.AutoFollowCount = intFlag("follow-count")
	p.AutoUnfollowEnabled = boolFlag("unfollow")
	p.AutoUnfollowDaysThreshold = intFlag("unfollow-days")
	p.AutoUnfollowOnlyNonFollowers = boolFlag("only-non-followers")
	if !changed {
		a, err := d.store.Automation(ctx)
		if err != nil {
			return err
		}
		return printJSON(a)
	}
	a, err := d.store.UpdateAutomation(ctx, p)
	if err != nil {
		return err
	}
	if err := notifyRelay(ctx, d.cfg.Server.Addr); err != nil {
		logging.Debug("update_alarm_skipped", map[string]any{"error": err})
	}
	return printJSON(a)
}

func runNext(cctx *cli.Context, d *deps) error {
	a, err := d.store.Automation(cctx.Context)
	if err != nil {
		return err
	}
	if !a.Enabled {
		fmt.Println("Automation disabled")
		return nil
	}
	fmt.Println("Next run:", schedule.NextRun(time.Now().In(d.loc), a).Format(time.RFC3339))
	return nil
}

func runStats(cctx *cli.Context, d *deps) error {
	if d.actions == nil {
		return fmt.Errorf("stats: the action log needs the sqlite driver, not %q", d.cfg.Storage.Driver)
	}
	end := time.Now()
	records, err := d.actions.LoadActions(cctx.Context, d.account(), end.Add(-cctx.Duration("since")), end)
	if err != nil {
		return err
	}
	b := analytics.HourlyActions(records, d.loc)
	for _, k := range analytics.SortedBucketKeys(b) {
		fmt.Printf("%s follow=%d unfollow=%d\n", k.Format("2006-01-02 15:00"),
			b[k][model.ActionFollow], b[k][model.ActionUnfollow])
	}
	return nil
}

func runOnboardingStart(cctx *cli.Context, d *deps) error {
	pr, err := d.onboard.Start(cctx.Context, d.account())
	if err != nil {
		return err
	}
	return printJSON(pr)
}

func runOnboardingComplete(cctx *cli.Context, d *deps) error {
	return d.onboard.Complete(cctx.Context, cctx.Bool("followed"))
}

func runOnboardingUndoFollow(cctx *cli.Context, d *deps) error {
	return d.onboard.UndoFollow(cctx.Context)
}

func runOnboardingUndoLike(cctx *cli.Context, d *deps) error {
	return d.onboard.UndoLike(cctx.Context, cctx.Args().First())
}

func relayURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return strings.TrimRight(addr, "/") + "/v1/messages"
	}
	return "http://" + addr + "/v1/messages"
}

// post sends one message to a relay and decodes its response.
func post(ctx context.Context, addr string, m message.Message) (message.Response, error) {
	var resp message.Response
	b, err := message.Encode(m)
	if err != nil {
		return resp, err
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, relayURL(addr), bytes.NewReader(b))
	if err != nil {
		return resp, err
	}
	req.Header.Set("Content-Type", "application/json")
	r, err := http.DefaultClient.Do(req)
	if err != nil {
		return resp, err
	}
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return resp, err
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return resp, fmt.Errorf("relay answered %d: %w", r.StatusCode, err)
	}
	return resp, nil
}

// notifyRelay asks a running daemon to re-arm after an automation edit.
func notifyRelay(ctx context.Context, addr string) error {
	resp, err := post(ctx, addr, message.UpdateAlarm{})
	if err != nil {
		return err
	}
	if !resp.Success {
		return errors.New(resp.Error)
	}
	return nil
}

func runSend(cctx *cli.Context) error {
	addr := cctx.String("addr")
	if addr == "" {
		cfg, err := config.Load(cctx.String("config"))
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		addr = cfg.Server.Addr
	}
	raw, err := json.Marshal(map[string]string{
		"type":   strings.ToUpper(cctx.Args().Get(0)),
		"userId": cctx.Args().Get(1),
	})
	if err != nil {
		return err
	}
	m, err := message.Decode(raw)
	if err != nil {
		return err
	}
	resp, err := post(cctx.Context, addr, m)
	if err != nil {
		return err
	}
	if err := printJSON(resp); err != nil {
		return err
	}
	if !resp.Success {
		return errors.New(resp.Error)
	}
	return nil
}
