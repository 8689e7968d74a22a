// pledgectl is the operator CLI for the escrow service. It speaks to the
// HTTP API through the Go SDK and prints responses as JSON.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"pledge/pkg/escrow"
	sdk "pledge/sdk/go/pledge"
)

const usageText = `usage: pledgectl <command> [flags]

commands:
  config init      initialize the escrow config
  config get       print the escrow config
  config update    change config fields (admin only)
  pledge create    lock a stake against a goal
  pledge get       print one pledge
  pledge list      list pledges, optionally filtered
  pledge edit      move a pledge deadline (pays the edit penalty)
  pledge report    report completion percentage after the deadline
  process completion   settle a reported pledge
  process expired      forfeit a pledge whose grace period ended
  crank            settle every pledge past its grace period

  flags -server (or PLEDGE_SERVER) select the service address.
`

func main() {
	if len(os.Args) < 3 && !(len(os.Args) == 2 && os.Args[1] == "crank") {
		fail(usageText)
	}
	switch os.Args[1] {
	case "config":
		runConfig(os.Args[2], os.Args[3:])
	case "pledge":
		runPledge(os.Args[2], os.Args[3:])
	case "process":
		runProcess(os.Args[2], os.Args[3:])
	case "crank":
		runCrank(os.Args[2:])
	default:
		fail(usageText)
	}
}

func fail(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}

func newFlagSet(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.SetOutput(os.Stderr)
	server := fs.String("server", "", "service base URL (default $PLEDGE_SERVER or http://localhost:8080)")
	return fs, server
}

func newSDK(server string) *sdk.Client {
	if server == "" {
		server = os.Getenv("PLEDGE_SERVER")
	}
	if server == "" {
		server = "http://localhost:8080"
	}
	return sdk.NewClient(server)
}

func callCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func exitOnErr(err error) {
	if err == nil {
		return
	}
	var sdkErr *sdk.Error
	if errors.As(err, &sdkErr) {
		fmt.Fprintf(os.Stderr, "error: %s (%s, request %s)\n", sdkErr.Message, sdkErr.ErrorCode, sdkErr.RequestID)
	} else {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	os.Exit(1)
}

func runConfig(sub string, args []string) {
	switch sub {
	case "init":
		fs, server := newFlagSet("config init")
		admin := fs.String("admin", "", "admin account")
		treasury := fs.String("treasury", "", "treasury account")
		charity := fs.String("charity", "", "charity account")
		splitBps := fs.Uint("split-bps", uint(escrow.DefaultTreasurySplitBps), "treasury share of forfeitures, bps")
		feeBps := fs.Uint("fee-bps", uint(escrow.DefaultPartialFeeBps), "partial completion fee, bps")
		penaltyBps := fs.Uint("penalty-bps", uint(escrow.DefaultEditPenaltyBps), "edit penalty, bps")
		grace := fs.Int64("grace", escrow.DefaultGracePeriodSeconds, "grace period, seconds")
		_ = fs.Parse(args)
		if *admin == "" || *treasury == "" || *charity == "" {
			fail("config init requires -admin, -treasury and -charity")
		}
		ctx, cancel := callCtx()
		defer cancel()
		cfg, err := newSDK(*server).InitConfig(ctx, sdk.InitConfigParams{
			Caller:             *admin,
			Treasury:           *treasury,
			Charity:            *charity,
			TreasurySplitBps:   uint16(*splitBps),
			PartialFeeBps:      uint16(*feeBps),
			EditPenaltyBps:     uint16(*penaltyBps),
			GracePeriodSeconds: *grace,
		})
		exitOnErr(err)
		printJSON(cfg)
	case "get":
		fs, server := newFlagSet("config get")
		_ = fs.Parse(args)
		ctx, cancel := callCtx()
		defer cancel()
		cfg, err := newSDK(*server).GetConfig(ctx)
		exitOnErr(err)
		printJSON(cfg)
	case "update":
		fs, server := newFlagSet("config update")
		caller := fs.String("caller", "", "admin account")
		treasury := fs.String("treasury", "", "new treasury account")
		charity := fs.String("charity", "", "new charity account")
		splitBps := fs.Int("split-bps", -1, "new treasury split, bps")
		feeBps := fs.Int("fee-bps", -1, "new partial fee, bps")
		penaltyBps := fs.Int("penalty-bps", -1, "new edit penalty, bps")
		grace := fs.Int64("grace", -1, "new grace period, seconds")
		pause := fs.Bool("pause", false, "pause pledge creation and edits")
		unpause := fs.Bool("unpause", false, "resume pledge creation and edits")
		_ = fs.Parse(args)
		if *caller == "" {
			fail("config update requires -caller")
		}
		var update escrow.ConfigUpdate
		if *treasury != "" {
			update.Treasury = treasury
		}
		if *charity != "" {
			update.Charity = charity
		}
		if *splitBps >= 0 {
			v := uint16(*splitBps)
			update.TreasurySplitBps = &v
		}
		if *feeBps >= 0 {
			v := uint16(*feeBps)
			update.PartialFeeBps = &v
		}
		if *penaltyBps >= 0 {
			v := uint16(*penaltyBps)
			update.EditPenaltyBps = &v
		}
		if *grace >= 0 {
			update.GracePeriodSeconds = grace
		}
		if *pause && *unpause {
			fail("-pause and -unpause are mutually exclusive")
		}
		if *pause || *unpause {
			v := *pause
			update.Paused = &v
		}
		ctx, cancel := callCtx()
		defer cancel()
		cfg, err := newSDK(*server).UpdateConfig(ctx, *caller, update)
		exitOnErr(err)
		printJSON(cfg)
	default:
		fail(usageText)
	}
}

func runPledge(sub string, args []string) {
	switch sub {
	case "create":
		fs, server := newFlagSet("pledge create")
		owner := fs.String("owner", "", "owner account")
		asset := fs.String("asset", "", "asset symbol")
		stake := fs.Uint64("stake", 0, "stake amount, base units")
		deadline := fs.Int64("deadline", 0, "deadline, unix seconds")
		key := fs.String("idempotency-key", "", "idempotency key (empty generates one)")
		_ = fs.Parse(args)
		if *owner == "" || *asset == "" || *stake == 0 || *deadline == 0 {
			fail("pledge create requires -owner, -asset, -stake and -deadline")
		}
		if *key == "" {
			*key = sdk.NewIdempotencyKey()
		}
		ctx, cancel := callCtx()
		defer cancel()
		p, err := newSDK(*server).CreatePledge(ctx, sdk.CreatePledgeParams{
			Caller:         *owner,
			Asset:          *asset,
			StakeAmount:    *stake,
			Deadline:       *deadline,
			IdempotencyKey: *key,
		})
		exitOnErr(err)
		printJSON(p)
	case "get":
		fs, server := newFlagSet("pledge get")
		id := fs.String("id", "", "pledge id")
		_ = fs.Parse(args)
		if *id == "" {
			fail("pledge get requires -id")
		}
		ctx, cancel := callCtx()
		defer cancel()
		p, err := newSDK(*server).GetPledge(ctx, *id)
		exitOnErr(err)
		printJSON(p)
	case "list":
		fs, server := newFlagSet("pledge list")
		owner := fs.String("owner", "", "filter by owner account")
		status := fs.String("status", "", "filter by status")
		_ = fs.Parse(args)
		ctx, cancel := callCtx()
		defer cancel()
		pledges, err := newSDK(*server).ListPledges(ctx, *owner, escrow.PledgeStatus(*status))
		exitOnErr(err)
		printJSON(pledges)
	case "edit":
		fs, server := newFlagSet("pledge edit")
		id := fs.String("id", "", "pledge id")
		caller := fs.String("caller", "", "owner account")
		deadline := fs.Int64("new-deadline", 0, "new deadline, unix seconds (0 keeps current)")
		_ = fs.Parse(args)
		if *id == "" || *caller == "" {
			fail("pledge edit requires -id and -caller")
		}
		var newDeadline *int64
		if *deadline != 0 {
			newDeadline = deadline
		}
		ctx, cancel := callCtx()
		defer cancel()
		p, err := newSDK(*server).EditPledge(ctx, *id, *caller, newDeadline)
		exitOnErr(err)
		printJSON(p)
	case "report":
		fs, server := newFlagSet("pledge report")
		id := fs.String("id", "", "pledge id")
		caller := fs.String("caller", "", "owner account")
		pct := fs.Uint("pct", 0, "completion percentage, 0-100")
		_ = fs.Parse(args)
		if *id == "" || *caller == "" {
			fail("pledge report requires -id and -caller")
		}
		if *pct > 100 {
			fail("-pct must be 0-100")
		}
		ctx, cancel := callCtx()
		defer cancel()
		p, err := newSDK(*server).ReportCompletion(ctx, *id, *caller, uint8(*pct))
		exitOnErr(err)
		printJSON(p)
	case "events":
		fs, server := newFlagSet("pledge events")
		id := fs.String("id", "", "pledge id")
		_ = fs.Parse(args)
		if *id == "" {
			fail("pledge events requires -id")
		}
		ctx, cancel := callCtx()
		defer cancel()
		events, err := newSDK(*server).ListEvents(ctx, *id)
		exitOnErr(err)
		printJSON(events)
	default:
		fail(usageText)
	}
}

func runProcess(sub string, args []string) {
	switch sub {
	case "completion":
		fs, server := newFlagSet("process completion")
		id := fs.String("id", "", "pledge id")
		_ = fs.Parse(args)
		if *id == "" {
			fail("process completion requires -id")
		}
		ctx, cancel := callCtx()
		defer cancel()
		p, err := newSDK(*server).ProcessCompletion(ctx, *id)
		exitOnErr(err)
		printJSON(p)
	case "expired":
		fs, server := newFlagSet("process expired")
		id := fs.String("id", "", "pledge id")
		pct := fs.Uint("pct", 0, "completion percentage to settle at, 0-100")
		_ = fs.Parse(args)
		if *id == "" {
			fail("process expired requires -id")
		}
		if *pct > 100 {
			fail("-pct must be 0-100")
		}
		ctx, cancel := callCtx()
		defer cancel()
		p, err := newSDK(*server).ProcessExpired(ctx, *id, uint8(*pct))
		exitOnErr(err)
		printJSON(p)
	default:
		fail(usageText)
	}
}

// runCrank settles every pledge whose grace period has ended. Pledges that
// race with a concurrent settlement fail their status precondition and are
// reported, not retried.
func runCrank(args []string) {
	fs, server := newFlagSet("crank")
	now := fs.Int64("now", 0, "settlement time, unix seconds (0 uses server time)")
	_ = fs.Parse(args)
	client := newSDK(*server)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	expired, err := client.ListExpired(ctx, *now)
	exitOnErr(err)

	type crankResult struct {
		PledgeID string `json:"pledge_id"`
		Status   string `json:"status,omitempty"`
		Error    string `json:"error,omitempty"`
	}
	results := make([]crankResult, 0, len(expired))
	for _, p := range expired {
		settled, err := client.ProcessExpired(ctx, p.ID, 0)
		if err != nil {
			results = append(results, crankResult{PledgeID: p.ID, Error: err.Error()})
			continue
		}
		results = append(results, crankResult{PledgeID: p.ID, Status: string(settled.Status)})
	}
	printJSON(results)
}
