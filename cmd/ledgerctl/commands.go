package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/kislikjeka/pocketledger/internal/infra/gcs"
	"github.com/kislikjeka/pocketledger/internal/migration"
	"github.com/kislikjeka/pocketledger/pkg/clock"
	"github.com/kislikjeka/pocketledger/pkg/money"
)

var commands = []subcommands.Command{
	&migrateCmd{},
	&exportCmd{},
	&restoreCmd{},
	&clearCmd{},
	&reconcileCmd{},
	&adjustCmd{},
	&statsCmd{},
}

// run opens the environment, runs fn and maps its error to an exit status
func run(ctx context.Context, fn func(ctx context.Context, e *env) error) subcommands.ExitStatus {
	e, err := openEnv(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer e.Close()

	if err := fn(ctx, e); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type migrateCmd struct {
	quarantined bool
}

func (*migrateCmd) Name() string     { return "migrate" }
func (*migrateCmd) Synopsis() string { return "repair legacy account and transaction records" }
func (*migrateCmd) Usage() string {
	return `ledgerctl migrate [-quarantined]

  Deduplicates accounts by name, assigns missing ids, links transactions
  to accounts by their legacy name and backfills opening balances. Records
  the ledger cannot read are moved to quarantine keys. Running it again
  reports no changes.

  -quarantined lists the quarantined records instead of migrating.
`
}

func (c *migrateCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.quarantined, "quarantined", false, "List quarantined records and exit.")
}

func (c *migrateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(ctx context.Context, e *env) error {
		if c.quarantined {
			accounts, err := migration.ReadQuarantine(ctx, e.store, migration.KeyQuarantineAccounts)
			if err != nil {
				return err
			}
			transactions, err := migration.ReadQuarantine(ctx, e.store, migration.KeyQuarantineTransactions)
			if err != nil {
				return err
			}
			return printJSON(os.Stdout, struct {
				Accounts     []migration.QuarantinedRecord `json:"accounts"`
				Transactions []migration.QuarantinedRecord `json:"transactions"`
			}{accounts, transactions})
		}

		report, err := e.migrator.Run(ctx)
		if err != nil {
			return err
		}
		return printJSON(os.Stdout, report)
	})
}

type exportCmd struct {
	output string
}

func (*exportCmd) Name() string     { return "export" }
func (*exportCmd) Synopsis() string { return "export the ledger to a backup snapshot" }
func (*exportCmd) Usage() string {
	return `ledgerctl export [-o <file>]

  Writes the snapshot to stdout, or to the given file. The snapshot is also
  kept in the store as the last backup and sent to the configured sink.
`
}

func (c *exportCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.output, "o", "", "File to write the snapshot to (default stdout).")
}

func (c *exportCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(ctx context.Context, e *env) error {
		snap, err := e.backup.Export(ctx)
		if err != nil {
			return err
		}
		if c.output == "" {
			return printJSON(os.Stdout, snap)
		}
		f, err := os.Create(c.output)
		if err != nil {
			return fmt.Errorf("create %q: %w", c.output, err)
		}
		if err := printJSON(f, snap); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	})
}

type restoreCmd struct {
	input     string
	gcsObject string
	last      bool
	noMigrate bool
}

func (*restoreCmd) Name() string     { return "restore" }
func (*restoreCmd) Synopsis() string { return "replace the ledger with a backup snapshot" }
func (*restoreCmd) Usage() string {
	return `ledgerctl restore (-i <file> | -gcs <object> | -last) [-no-migrate]

  Replaces accounts, transactions and the profile with the snapshot. The
  snapshot is validated before anything is written. Migration runs
  afterwards unless -no-migrate is given.
`
}

func (c *restoreCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.input, "i", "", "Snapshot file to restore.")
	f.StringVar(&c.gcsObject, "gcs", "", "Snapshot object name in BACKUP_GCS_BUCKET.")
	f.BoolVar(&c.last, "last", false, "Restore the last backup kept in the store.")
	f.BoolVar(&c.noMigrate, "no-migrate", false, "Skip migration after restoring.")
}

func (c *restoreCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	sources := 0
	for _, set := range []bool{c.input != "", c.gcsObject != "", c.last} {
		if set {
			sources++
		}
	}
	if sources != 1 {
		fmt.Fprintln(os.Stderr, "exactly one of -i, -gcs or -last is required")
		return subcommands.ExitUsageError
	}

	return run(ctx, func(ctx context.Context, e *env) error {
		var err error
		switch {
		case c.last:
			err = e.backup.RestoreLastBackup(ctx)
		default:
			var data []byte
			data, err = c.read(ctx, e)
			if err == nil {
				err = e.backup.RestoreJSON(ctx, data)
			}
		}
		if err != nil {
			return err
		}

		if c.noMigrate {
			return nil
		}
		report, err := e.migrator.Run(ctx)
		if err != nil {
			return err
		}
		return printJSON(os.Stdout, report)
	})
}

func (c *restoreCmd) read(ctx context.Context, e *env) ([]byte, error) {
	if c.input != "" {
		return os.ReadFile(c.input)
	}
	if e.cfg.BackupGCSBucket == "" {
		return nil, fmt.Errorf("BACKUP_GCS_BUCKET is not set")
	}
	sink, err := gcs.NewSink(ctx, e.cfg.BackupGCSBucket, e.cfg.BackupGCSPrefix, e.log)
	if err != nil {
		return nil, err
	}
	defer sink.Close()
	return sink.Read(ctx, c.gcsObject)
}

type clearCmd struct {
	yes bool
}

func (*clearCmd) Name() string     { return "clear" }
func (*clearCmd) Synopsis() string { return "delete all accounts and transactions" }
func (*clearCmd) Usage() string {
	return `ledgerctl clear -yes

  Deletes both collections. The last backup and the profile are kept, so
  "ledgerctl restore -last" undoes it.
`
}

func (c *clearCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.yes, "yes", false, "Confirm the deletion.")
}

func (c *clearCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if !c.yes {
		fmt.Fprintln(os.Stderr, "refusing to clear without -yes")
		return subcommands.ExitUsageError
	}
	return run(ctx, func(ctx context.Context, e *env) error {
		return e.backup.ClearAllData(ctx)
	})
}

type reconcileCmd struct{}

func (*reconcileCmd) Name() string     { return "reconcile" }
func (*reconcileCmd) Synopsis() string { return "check account balances against transaction history" }
func (*reconcileCmd) Usage() string {
	return `ledgerctl reconcile

  Lists accounts whose balance differs from opening balance plus the
  effects of their transactions. Exits non-zero when any differ.
`
}
func (*reconcileCmd) SetFlags(*flag.FlagSet) {}

func (*reconcileCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(ctx context.Context, e *env) error {
		discrepancies, err := e.ledger.Reconcile(ctx)
		if err != nil {
			return err
		}
		if len(discrepancies) == 0 {
			fmt.Println("all balances consistent")
			return nil
		}
		for _, d := range discrepancies {
			fmt.Printf("%s (%s): balance %s, expected %s, off by %s\n",
				d.Name, d.AccountID, money.Format(d.Balance), money.Format(d.Expected), money.Format(d.Difference))
		}
		return fmt.Errorf("%d account(s) out of balance", len(discrepancies))
	})
}

type adjustCmd struct {
	account string
	opening string
}

func (*adjustCmd) Name() string     { return "adjust" }
func (*adjustCmd) Synopsis() string { return "set an account's opening balance" }
func (*adjustCmd) Usage() string {
	return `ledgerctl adjust -account <id> -opening <amount>

  Sets the opening balance and moves the balance by the same difference.
  The amount may be negative, e.g. for an overdrawn account.
`
}

func (c *adjustCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.account, "account", "", "Account id.")
	f.StringVar(&c.opening, "opening", "", "New opening balance.")
}

func (c *adjustCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.account == "" {
		fmt.Fprintln(os.Stderr, "-account is required")
		return subcommands.ExitUsageError
	}
	opening, err := money.ParseSigned(c.opening)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -opening: %v\n", err)
		return subcommands.ExitUsageError
	}
	return run(ctx, func(ctx context.Context, e *env) error {
		account, err := e.ledger.AdjustOpeningBalance(ctx, c.account, opening)
		if err != nil {
			return err
		}
		return printJSON(os.Stdout, account)
	})
}

type statsCmd struct {
	year  int
	month int
}

func (*statsCmd) Name() string     { return "stats" }
func (*statsCmd) Synopsis() string { return "print the income, expense and category totals of a month" }
func (*statsCmd) Usage() string {
	return `ledgerctl stats [-year <yyyy>] [-month <m>]

  Defaults to the current month.
`
}

func (c *statsCmd) SetFlags(f *flag.FlagSet) {
	now := clock.CurrentPeriod(clock.System{})
	f.IntVar(&c.year, "year", now.Year, "Year of the month to summarize.")
	f.IntVar(&c.month, "month", now.Month, "Month to summarize (1-12).")
}

func (c *statsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(ctx context.Context, e *env) error {
		monthly, err := e.analytics.MonthlyStats(ctx, c.year, c.month)
		if err != nil {
			return err
		}
		categories, err := e.analytics.CategoryStats(ctx, c.year, c.month)
		if err != nil {
			return err
		}
		return printJSON(os.Stdout, struct {
			Monthly    any `json:"monthly"`
			Categories any `json:"categories"`
		}{monthly, categories})
	})
}
