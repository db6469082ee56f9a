package tasks

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/aatumaykin/stockpilot/internal/analytics"
	"github.com/aatumaykin/stockpilot/internal/constants"
	"github.com/aatumaykin/stockpilot/internal/ledger"
	"github.com/aatumaykin/stockpilot/internal/logger"
	"github.com/aatumaykin/stockpilot/internal/notify"
	"github.com/aatumaykin/stockpilot/internal/storage"
)

// Deps are the collaborators of the built-in handlers.
type Deps struct {
	Analytics *analytics.Service
	Ledger    *ledger.Ledger
	Hub       *notify.Hub
	DB        *sql.DB
	BackupDir string
	Logger    *logger.Logger
	Now       func() time.Time
}

type builtins struct {
	Deps
	printer *message.Printer
}

// RegisterBuiltins registers every task of the embedded default set.
func RegisterBuiltins(r *Registry, deps Deps) error {
	defaults, err := LoadDefaults()
	if err != nil {
		return err
	}
	if deps.Now == nil {
		deps.Now = time.Now
		if deps.Analytics != nil {
			deps.Now = deps.Analytics.Now
		}
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	b := &builtins{Deps: deps, printer: message.NewPrinter(language.English)}

	for _, d := range defaults {
		def := Definition{Name: d.Name, Kind: d.Kind, Meta: d.Meta()}
		switch d.Kind {
		case KindStockCheck:
			def.Validate = func(c Config) error { return requireRange(c, "threshold", 0, 1e9) }
			def.Execute = b.stockCheck(d.Name)
		case KindExpiryCheck:
			def.Validate = func(c Config) error { return requireRange(c, "days", 1, 365) }
			def.Execute = b.expiryCheck(d.Name)
		case KindDailyReport:
			def.Validate = func(c Config) error {
				if err := requireRange(c, "hours", 1, 24*7); err != nil {
					return err
				}
				return requireRange(c, "topN", 1, 20)
			}
			def.Execute = b.dailyReport(d.Name)
		case KindBackup:
			def.Validate = func(c Config) error { return requireRange(c, "retain", 1, 365) }
			def.Execute = b.backup(d.Name)
		case KindLedgerCleanup:
			def.Validate = func(c Config) error { return requireRange(c, "days", 1, 3650) }
			def.Execute = b.ledgerCleanup
		default:
			return fmt.Errorf("default task %s: kind %s has no built-in handler", d.Name, d.Kind)
		}
		if err := r.Register(def); err != nil {
			return err
		}
	}
	return nil
}

func (b *builtins) stockCheck(name string) Handler {
	return func(ctx context.Context, cfg Config) (Result, error) {
		threshold := cfg.Float("threshold", 10)
		lines, err := b.Analytics.LowStock(ctx, threshold, 0)
		if err != nil {
			return nil, err
		}

		out := 0
		items := make([]notify.StockItem, 0, len(lines))
		for _, l := range lines {
			if l.Quantity <= 0 {
				out++
			}
			items = append(items, notify.StockItem{ID: l.ID, Name: l.Name, Quantity: l.Quantity})
		}
		if len(items) > 0 {
			b.Hub.StockAlert(name, threshold, items)
		}
		return Result{
			"threshold":     threshold,
			"lowStockCount": len(items),
			"outOfStock":    out,
		}, nil
	}
}

func (b *builtins) expiryCheck(name string) Handler {
	return func(ctx context.Context, cfg Config) (Result, error) {
		days := cfg.Int("days", 30)
		expired, expiring, err := b.Analytics.Expiring(ctx, days)
		if err != nil {
			return nil, err
		}
		if len(expired)+len(expiring) > 0 {
			b.Hub.ExpiryAlert(name, days, toExpiryItems(expired), toExpiryItems(expiring))
		}
		return Result{
			"days":     days,
			"expired":  len(expired),
			"expiring": len(expiring),
		}, nil
	}
}

func toExpiryItems(lines []analytics.ExpiryLine) []notify.ExpiryItem {
	out := make([]notify.ExpiryItem, 0, len(lines))
	for _, l := range lines {
		out = append(out, notify.ExpiryItem{ID: l.ID, Name: l.Name, ExpiryDate: l.ExpiryDate, DaysLeft: l.DaysLeft})
	}
	return out
}

func (b *builtins) dailyReport(name string) Handler {
	return func(ctx context.Context, cfg Config) (Result, error) {
		hours := cfg.Int("hours", 24)
		topN := cfg.Int("topN", 5)
		since := b.Now().Add(-time.Duration(hours) * time.Hour)

		summary, err := b.Analytics.Sales(ctx, since, topN)
		if err != nil {
			return nil, err
		}

		text := b.printer.Sprintf("%d transactions, revenue %.2f, %.0f units sold",
			summary.Transactions, summary.Revenue, summary.UnitsSold)
		if len(summary.TopProducts) > 0 {
			top := make([]string, 0, len(summary.TopProducts))
			for _, p := range summary.TopProducts {
				top = append(top, b.printer.Sprintf("%s (%.0f)", p.Name, p.Quantity))
			}
			text += ". Top: " + strings.Join(top, ", ")
		}

		title := fmt.Sprintf("Sales report, last %dh", hours)
		b.Hub.ReportReady(name, title, text, summary)
		return Result{
			"transactions": summary.Transactions,
			"revenue":      summary.Revenue,
			"unitsSold":    summary.UnitsSold,
			"topProducts":  summary.TopProducts,
			"summary":      text,
		}, nil
	}
}

func (b *builtins) backup(name string) Handler {
	return func(ctx context.Context, cfg Config) (Result, error) {
		if b.DB == nil || b.BackupDir == "" {
			return nil, fmt.Errorf("backup is not configured")
		}
		retain := cfg.Int("retain", 7)

		file := constants.BackupFilePrefix + b.Now().UTC().Format("20060102-150405.000") + constants.BackupFileExt
		dest := filepath.Join(b.BackupDir, file)
		if err := storage.Snapshot(ctx, b.DB, dest); err != nil {
			return nil, err
		}
		info, err := os.Stat(dest)
		if err != nil {
			return nil, fmt.Errorf("stat snapshot: %w", err)
		}

		removed, err := pruneBackups(b.BackupDir, retain)
		if err != nil {
			b.Logger.Warn("failed to prune old backups",
				logger.Field{Key: "dir", Value: b.BackupDir},
				logger.Field{Key: "error", Value: err.Error()})
		}

		b.Hub.BackupResult(name, dest, info.Size(), nil)
		return Result{
			"path":      dest,
			"sizeBytes": info.Size(),
			"pruned":    removed,
		}, nil
	}
}

// pruneBackups keeps the retain newest snapshot files in dir.
func pruneBackups(dir string, retain int) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	var snapshots []string
	for _, e := range entries {
		n := e.Name()
		if !e.IsDir() && strings.HasPrefix(n, constants.BackupFilePrefix) && strings.HasSuffix(n, constants.BackupFileExt) {
			snapshots = append(snapshots, n)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(snapshots)))

	removed := 0
	for i := retain; i < len(snapshots); i++ {
		if err := os.Remove(filepath.Join(dir, snapshots[i])); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func (b *builtins) ledgerCleanup(ctx context.Context, cfg Config) (Result, error) {
	days := cfg.Int("days", 30)
	removed, err := b.Ledger.PurgeOlderThan(ctx, days)
	if err != nil {
		return nil, err
	}
	return Result{"days": days, "removed": removed}, nil
}
