// FilePath: cmd/backfill/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/WCL-INU/beeweb/internal/config"
	"github.com/WCL-INU/beeweb/internal/hubservice"
	"github.com/WCL-INU/beeweb/internal/models"
	"github.com/WCL-INU/beeweb/internal/service"
	"github.com/WCL-INU/beeweb/internal/summary"
	tm "github.com/buger/goterm"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	nuts "github.com/vaudience/go-nuts"
)

// flagKeys binds command line flags onto config keys so flags win over
// the config file and environment
var flagKeys = map[string]string{
	"step-days":      "summary.backfill.step_days",
	"auto-grow":      "summary.backfill.auto_grow_step",
	"grow-factor":    "summary.backfill.grow_factor",
	"grow-threshold": "summary.backfill.grow_threshold",
	"max-step-days":  "summary.backfill.max_step_days",
	"driver":         "database.driver",
}

func main() {
	nuts.InitVersion()

	flags := pflag.NewFlagSet("backfill", pflag.ExitOnError)
	from := flags.String("from", "", "range start, RFC3339 or YYYY-MM-DD HH:MM:SS (UTC)")
	to := flags.String("to", "", "range end (exclusive), RFC3339 or YYYY-MM-DD HH:MM:SS (UTC)")
	flags.Int("step-days", 7, "initial window width in days")
	flags.Bool("auto-grow", true, "widen the window after consecutive empty windows")
	flags.Float64("grow-factor", 2, "window growth factor")
	flags.Int("grow-threshold", 3, "empty windows before the window grows")
	flags.Int("max-step-days", 60, "upper bound for the window width in days")
	flags.String("driver", config.DriverPostgres, "database driver (postgres or memory)")
	flags.Parse(os.Args[1:])

	for name, key := range flagKeys {
		// only explicitly set flags override; defaults come from config
		if f := flags.Lookup(name); f != nil && f.Changed {
			viper.BindPFlag(key, f)
		}
	}

	if err := run(*from, *to); err != nil {
		nuts.L.Errorf("[Backfill] %v", err)
		os.Exit(1)
	}
}

func run(fromArg, toArg string) error {
	if fromArg == "" || toArg == "" {
		return fmt.Errorf("--from and --to are required")
	}
	from, err := models.ParseTimestamp(fromArg)
	if err != nil {
		return fmt.Errorf("invalid --from: %w", err)
	}
	to, err := models.ParseTimestamp(toArg)
	if err != nil {
		return fmt.Errorf("invalid --to: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub, err := hubservice.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer hub.Close()

	svc := service.New(hub, cfg.Summary, nil)
	nuts.L.Infof("[Backfill] Recomputing summaries for %s..%s", from.Format(time.RFC3339), to.Format(time.RFC3339))

	report, err := svc.RunBackfill(ctx, models.BackfillRequest{From: from, To: to})
	if report != nil {
		printReport(report)
	}
	return err
}

func printReport(report *summary.BackfillReport) {
	if report.Skipped {
		tm.Printf("Backfill skipped: %s\n", report.Reason)
		tm.Flush()
		return
	}

	tm.Printf("Backfill %s .. %s finished in %v\n\n",
		report.From.Format(time.RFC3339), report.To.Format(time.RFC3339), report.Duration.Round(time.Millisecond))

	table := tm.NewTable(0, 10, 2, ' ', 0)
	fmt.Fprintf(table, "LEVEL\tWINDOWS\tPROCESSED\tEMPTY\tROWS\tFINAL STEP\tTOOK\n")
	for _, lr := range report.Levels {
		fmt.Fprintf(table, "%s\t%d\t%d\t%d\t%d\t%dd\t%v\n",
			lr.Level, lr.WindowsProbed, lr.WindowsProcessed, lr.WindowsEmpty,
			lr.RowsAffected, lr.FinalStepDays, lr.Duration.Round(time.Millisecond))
	}
	tm.Println(table)
	tm.Flush()
}
