// Command ledgerctl opens the ledger selected by the LEDGERCORE_* environment
// and runs maintenance commands against it: printing the schema and
// balances, seeding demo data, and archiving or restoring snapshots.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"ledgercore/internal/core"
	blob "ledgercore/internal/infra/blob/core"
	"ledgercore/internal/platform/config"
	"ledgercore/pkg/datamodel"
	"ledgercore/pkg/ledger"
	"ledgercore/plugins/loan"
	"ledgercore/plugins/reconcile"
)

const usage = `usage: ledgerctl [-trace] [-metrics[=prometheus|expvar]] <command> [flags]

commands:
  schema              print the registered property sets
  demo                seed a sample ledger and print its balances
  balances            print capital account balances
  archive             write a snapshot to the archive store
  restore -key KEY    replace the ledger with an archived snapshot`

var (
	exitFunc = os.Exit
	errUsage = errors.New("usage")
)

func main() {
	exitFunc(cli(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func cli(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("ledgerctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { _, _ = fmt.Fprintln(stderr, usage) }
	trace := fs.Bool("trace", false, "write JSON trace lines to stderr")
	var metrics metricsFlag
	fs.Var(&metrics, "metrics", "print action counters on exit (prometheus or expvar)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "ledgerctl: %v\n", err)
		return 1
	}
	log, err := config.NewLogger(cfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "ledgerctl: %v\n", err)
		return 1
	}
	defer func() { _ = log.Sync() }()

	opts := appOptions{log: log}
	if *trace {
		opts.tracer = core.NewJSONTracer(stderr)
	}
	switch metrics {
	case metricsPrometheus:
		opts.metrics = prometheus.NewRegistry()
	case metricsExpvar:
		opts.expvar = core.NewExpvarMetricsRecorder("")
	}
	a, err := newApp(cfg, opts)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "ledgerctl: %v\n", err)
		return 1
	}
	defer a.close()

	err = a.dispatch(ctx, fs.Arg(0), fs.Args()[1:], stdout)
	switch {
	case opts.metrics != nil:
		if perr := printMetrics(stdout, opts.metrics); perr != nil && err == nil {
			err = perr
		}
	case opts.expvar != nil:
		printExpvar(stdout, opts.expvar)
	}
	switch {
	case errors.Is(err, errUsage):
		fs.Usage()
		return 2
	case err != nil:
		log.Error("command failed", zap.String("command", fs.Arg(0)), zap.Error(err))
		_, _ = fmt.Fprintf(stderr, "ledgerctl: %v\n", err)
		return 1
	}
	return 0
}

type appOptions struct {
	log     *zap.Logger
	tracer  core.Tracer
	metrics *prometheus.Registry
	expvar  *core.ExpvarMetricsRecorder
}

const (
	metricsPrometheus = "prometheus"
	metricsExpvar     = "expvar"
)

// metricsFlag selects the action counter exporter. A bare -metrics selects
// prometheus.
type metricsFlag string

func (m *metricsFlag) String() string {
	if m == nil {
		return ""
	}
	return string(*m)
}

func (m *metricsFlag) IsBoolFlag() bool { return true }

func (m *metricsFlag) Set(v string) error {
	switch v {
	case "true", metricsPrometheus:
		*m = metricsPrometheus
	case "false":
		*m = ""
	case metricsExpvar:
		*m = metricsExpvar
	default:
		return fmt.Errorf("unknown metrics exporter %q", v)
	}
	return nil
}

type app struct {
	cfg    config.Config
	log    *zap.Logger
	svc    *core.Service
	schema *ledger.Schema
	store  datamodel.Datastore
	loan   *loan.Plugin
	recon  *reconcile.Plugin
}

func newApp(cfg config.Config, opts appOptions) (*app, error) {
	reg := datamodel.NewRegistry()
	schema, err := ledger.Register(reg)
	if err != nil {
		return nil, err
	}
	store, err := config.OpenDatastore(cfg, reg)
	if err != nil {
		return nil, fmt.Errorf("open datastore: %w", err)
	}

	svcOpts := append(cfg.ServiceOptions(), core.WithLogger(core.NewZapLogger(opts.log)))
	if opts.tracer != nil {
		svcOpts = append(svcOpts, core.WithTracer(opts.tracer))
	} else {
		svcOpts = append(svcOpts, core.WithTracer(core.NewOTelTracer(nil)))
	}
	if opts.metrics != nil {
		rec, err := core.NewPrometheusMetricsRecorder(opts.metrics, "ledgercore")
		if err != nil {
			closeStore(store)
			return nil, err
		}
		svcOpts = append(svcOpts, core.WithMetricsRecorder(rec))
	} else if opts.expvar != nil {
		svcOpts = append(svcOpts, core.WithMetricsRecorder(opts.expvar))
	}

	a := &app{
		cfg:    cfg,
		log:    opts.log,
		svc:    core.NewService(reg, store, svcOpts...),
		schema: schema,
		store:  store,
		loan:   loan.New(),
		recon:  reconcile.New(),
	}
	for _, p := range []core.Plugin{a.loan, a.recon} {
		if _, err := a.svc.InstallPlugin(p); err != nil {
			a.close()
			return nil, err
		}
	}
	return a, nil
}

func (a *app) close() {
	a.svc.Close()
	closeStore(a.store)
}

func closeStore(store datamodel.Datastore) {
	if c, ok := store.(io.Closer); ok {
		_ = c.Close()
	}
}

func (a *app) dispatch(ctx context.Context, cmd string, args []string, out io.Writer) error {
	switch cmd {
	case "schema":
		return a.printSchema(out)
	case "demo":
		if err := a.open(ctx); err != nil {
			return err
		}
		if err := a.seed(ctx); err != nil {
			return err
		}
		return a.printBalances(out)
	case "balances":
		if err := a.open(ctx); err != nil {
			return err
		}
		return a.printBalances(out)
	case "archive":
		if err := a.open(ctx); err != nil {
			return err
		}
		return a.archive(ctx, out)
	case "restore":
		fs := flag.NewFlagSet("restore", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		key := fs.String("key", "", "archive key")
		if err := fs.Parse(args); err != nil || *key == "" {
			return errUsage
		}
		return a.restore(ctx, *key, out)
	default:
		return errUsage
	}
}

func (a *app) open(ctx context.Context) error {
	_, err := a.svc.Open(ctx, a.schema.Session)
	return err
}

func (a *app) printSchema(out io.Writer) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, ps := range a.svc.Registry().PropertySets() {
		kind := "set"
		switch {
		case ps.IsExtension():
			kind = "extension"
			if ext := ps.Extends(); ext != nil {
				kind += " of " + ext.ID()
			}
		case ps.IsAbstract():
			kind = "abstract"
		}
		if base := ps.Base(); base != nil {
			kind += ", derives " + base.ID()
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\n", ps.ID(), kind)
		for _, acc := range ps.OwnAccessors() {
			_, _ = fmt.Fprintf(w, "  %s\t%s\n", acc.Name(), describeAccessor(acc))
		}
	}
	for _, meta := range a.svc.RegisteredPlugins() {
		_, _ = fmt.Fprintf(w, "plugin %s\t%s\n", meta.Name, meta.Version)
	}
	return w.Flush()
}

func describeAccessor(acc datamodel.PropertyAccessor) string {
	switch acc := acc.(type) {
	case *datamodel.ScalarAccessor:
		desc := string(acc.ValueType())
		if target := acc.ReferenceTarget(); target != nil {
			desc += " -> " + target.ID()
		}
		if values := acc.EnumValues(); len(values) > 0 {
			desc += " [" + strings.Join(values, "|") + "]"
		}
		return desc
	case *datamodel.ListAccessor:
		return "list of " + acc.Element().ID()
	default:
		return "?"
	}
}

func (a *app) printBalances(out io.Writer) error {
	session := a.svc.Session()
	balances, err := a.schema.CapitalBalances(session)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
	for _, name := range balances.Names() {
		_, _ = fmt.Fprintf(w, "%s\t%s\t\n", name, balances[name])
		acct, err := a.schema.AccountByName(session, name)
		if err != nil {
			return err
		}
		terms, err := a.loan.Terms(acct)
		if err != nil {
			return err
		}
		if terms.IsLoan() {
			_, _ = fmt.Fprintf(w, "  interest/yr @ %.2f%%\t%s\t\n", terms.InterestRate, terms.YearlyInterest(balances[name]))
		}
	}
	return w.Flush()
}

// seed populates an empty ledger with sample accounts and transactions. A
// ledger that already holds currencies is left untouched.
func (a *app) seed(ctx context.Context) error {
	session := a.svc.Session()
	if _, err := a.schema.FindCurrency(session, "USD"); err == nil {
		a.log.Info("demo data already present")
		return nil
	}
	s := a.schema
	created := func(op interface {
		datamodel.Operation
		Created() datamodel.ObjectKey
	}) (*datamodel.ExtendableObject, error) {
		if _, err := a.svc.Execute(ctx, op); err != nil {
			return nil, err
		}
		return session.Object(op.Created())
	}

	usd, err := created(s.AddCurrency("USD", "US Dollar", 2))
	if err != nil {
		return err
	}
	checking, err := created(s.OpenBankAccount("Checking", "First Bank", usd, 250000))
	if err != nil {
		return err
	}
	mortgage, err := created(s.OpenBankAccount("Mortgage", "Home Loans", usd, -18000000))
	if err != nil {
		return err
	}
	groceries, err := created(s.AddCategory("Groceries", usd))
	if err != nil {
		return err
	}

	jan := func(day int) time.Time { return time.Date(2024, time.January, day, 0, 0, 0, 0, time.UTC) }
	if _, err := created(s.AddTransaction(jan(6),
		ledger.EntrySpec{Account: checking, Amount: -8450, Memo: "market"},
		ledger.EntrySpec{Account: groceries, Amount: 8450},
	)); err != nil {
		return err
	}
	if _, err := created(s.Transfer(checking, mortgage, 120000, jan(15), "January payment")); err != nil {
		return err
	}
	if _, err := a.svc.Execute(ctx, a.loan.SetTerms(mortgage, loan.Terms{
		InterestRate: 4.25,
		Lender:       "Home Loans",
		Maturity:     time.Date(2049, time.January, 1, 0, 0, 0, 0, time.UTC),
	})); err != nil {
		return err
	}

	postings, err := s.Postings(session, checking)
	if err != nil {
		return err
	}
	entries := make([]*datamodel.ExtendableObject, 0, len(postings))
	for _, p := range postings {
		entries = append(entries, p.Entry)
	}
	if _, err := a.svc.Execute(ctx, a.recon.Mark(reconcile.Cleared, "2024-01", entries...)); err != nil {
		return err
	}
	a.log.Info("demo data seeded", zap.Int("objects", session.ObjectCount()), zap.Int("history", len(a.svc.History())))
	return nil
}

func (a *app) archive(ctx context.Context, out io.Writer) error {
	blobs, err := config.OpenArchive(ctx, a.cfg)
	if err != nil {
		return err
	}
	key := core.ArchiveKey(a.cfg.ArchivePrefix, time.Now())
	info, err := a.svc.Archive(ctx, blobs, key)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "archived %s (%d bytes, %s objects) to %s\n", info.Key, info.Size, info.Metadata["objects"], blobs.Driver())
	if p, ok := blobs.(blob.Presigner); ok {
		url, err := p.PresignURL(ctx, info.Key, 0)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "download: %s\n", url)
	}
	return nil
}

func (a *app) restore(ctx context.Context, key string, out io.Writer) error {
	blobs, err := config.OpenArchive(ctx, a.cfg)
	if err != nil {
		return err
	}
	header, err := a.svc.Restore(ctx, blobs, key)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "restored %s: %d objects, format v%d\n", key, header.Objects, header.Version)
	return nil
}

func printMetrics(out io.Writer, reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if m.GetCounter() == nil {
				continue
			}
			labels := make([]string, 0, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			_, _ = fmt.Fprintf(out, "%s{%s} %g\n", mf.GetName(), strings.Join(labels, ","), m.GetCounter().GetValue())
		}
	}
	return nil
}

// printExpvar writes the expvar totals in the same shape as printMetrics.
func printExpvar(out io.Writer, rec *core.ExpvarMetricsRecorder) {
	snap := rec.Snapshot()
	for _, action := range slices.Sorted(maps.Keys(snap.Success)) {
		_, _ = fmt.Fprintf(out, "ledgercore_service_actions_total{action=%s,status=success} %d\n", action, snap.Success[action])
	}
	for _, action := range slices.Sorted(maps.Keys(snap.Failure)) {
		_, _ = fmt.Fprintf(out, "ledgercore_service_actions_total{action=%s,status=error} %d\n", action, snap.Failure[action])
	}
	_, _ = fmt.Fprintf(out, "expvar %s\n", rec.Name())
}
