package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rowjay/solr-backups/internal/config"
	"github.com/rowjay/solr-backups/internal/dispatch"
	"github.com/rowjay/solr-backups/internal/lock"
	"github.com/rowjay/solr-backups/internal/manifest"
	"github.com/rowjay/solr-backups/internal/notify"
	"github.com/rowjay/solr-backups/internal/solr"
	"github.com/rowjay/solr-backups/internal/storage"
	"github.com/rowjay/solr-backups/internal/util"
)

// Cluster is what the app needs from a Solr cluster.
type Cluster interface {
	dispatch.API
	Collections(ctx context.Context) ([]string, error)
	ClusterStatus(ctx context.Context) (solr.ClusterState, error)
	BaseURL() string
}

type App struct {
	Cfg       *config.Config
	Solr      Cluster
	Storage   storage.Storage
	Manifests *manifest.Store
	Log       zerolog.Logger
	Notifier  notify.Notifier
	Clock     clock.Clock
}

func New(cfg *config.Config, cluster Cluster, store storage.Storage, log zerolog.Logger, notifier notify.Notifier) *App {
	return &App{
		Cfg:       cfg,
		Solr:      cluster,
		Storage:   store,
		Manifests: manifest.NewStore(store),
		Log:       log,
		Notifier:  notifier,
		Clock:     clock.WallClock,
	}
}

// Report describes a finished run.
type Report struct {
	Mode        string
	BackupName  string
	Selection   Selection
	Outcomes    []dispatch.Outcome
	Manifest    *manifest.Manifest // backup: attempts that succeeded; restore: attempts restored
	ManifestKey string
}

// Succeeded lists collections that completed, in run order.
func (r *Report) Succeeded() []string {
	var names []string
	for _, o := range r.Outcomes {
		if o.OK() {
			names = append(names, o.Collection)
		}
	}
	return names
}

// Failed lists collections that did not complete, in run order.
func (r *Report) Failed() []string {
	var names []string
	for _, o := range r.Outcomes {
		if !o.OK() {
			names = append(names, o.Collection)
		}
	}
	return names
}

// Backup backs up every selected collection and writes the manifest. The
// manifest is written even when some collections fail; the returned error
// then names them.
func (a *App) Backup(ctx context.Context) (*Report, error) {
	return a.run(ctx, config.ModeBackup, func(ctx context.Context, report *Report) error {
		available, err := a.Solr.Collections(ctx)
		if err != nil {
			return fmt.Errorf("discover collections: %w", err)
		}
		report.Selection = a.selectFrom(available)

		a.dispatchAll(ctx, report, func(collection string) dispatch.Task {
			return dispatch.Task{
				Action:     solr.ActionBackup,
				Collection: collection,
				BackupName: a.Cfg.Backup.Name,
				Location:   a.Cfg.Backup.Path,
				Repository: a.Cfg.Backup.Repository,
			}
		})

		// Persist what succeeded even if the run was interrupted.
		wctx := context.WithoutCancel(ctx)
		if report.Manifest.Len() == 0 {
			key := util.ManifestKey(a.Cfg.Backup.Name)
			exists, err := a.Storage.Exists(wctx, key)
			if err != nil {
				return fmt.Errorf("check manifest %s: %w", key, err)
			}
			if exists {
				a.Log.Warn().Str("manifest", key).Msg("no collection succeeded, keeping existing manifest")
				return runError(ctx, report)
			}
		}
		key, err := a.Manifests.Write(wctx, a.Cfg.Backup.Name, report.Manifest)
		if err != nil {
			return err
		}
		report.ManifestKey = key
		a.Log.Info().Str("manifest", key).Int("entries", report.Manifest.Len()).Msg("manifest written")
		return runError(ctx, report)
	})
}

// Restore restores every selected collection recorded in the manifest of
// the configured backup name.
func (a *App) Restore(ctx context.Context) (*Report, error) {
	return a.run(ctx, config.ModeRestore, func(ctx context.Context, report *Report) error {
		recorded, err := a.Manifests.Read(ctx, a.Cfg.Backup.Name)
		if err != nil {
			return err
		}
		report.ManifestKey = util.ManifestKey(a.Cfg.Backup.Name)
		report.Selection = a.selectFrom(recorded.Collections())

		a.dispatchAll(ctx, report, func(collection string) dispatch.Task {
			name, _ := recorded.Get(collection)
			return dispatch.Task{
				Action:     solr.ActionRestore,
				Collection: collection,
				BackupName: name,
				Location:   a.Cfg.Backup.Path,
				Repository: a.Cfg.Backup.Repository,
			}
		})
		return runError(ctx, report)
	})
}

// Collections returns the selection a run would act on, without acting.
func (a *App) Collections(ctx context.Context) (Selection, error) {
	available, err := a.Solr.Collections(ctx)
	if err != nil {
		return Selection{}, fmt.Errorf("discover collections: %w", err)
	}
	return Select(available, a.Cfg.Backup.Collections, a.Cfg.Backup.Blacklist), nil
}

// ReadManifest loads the manifest of the configured backup name.
func (a *App) ReadManifest(ctx context.Context) (*manifest.Manifest, error) {
	return a.Manifests.Read(ctx, a.Cfg.Backup.Name)
}

// Validate checks cluster reachability and manifest storage in parallel.
// For backups storage must be writable; for restores the manifest must exist.
func (a *App) Validate(ctx context.Context) error {
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		state, err := a.Solr.ClusterStatus(egCtx)
		if err != nil {
			return fmt.Errorf("solr %s: %w", a.Solr.BaseURL(), err)
		}
		if len(state.LiveNodes) == 0 {
			return fmt.Errorf("solr %s: cluster has no live nodes", a.Solr.BaseURL())
		}
		a.Log.Info().Str("host", a.Solr.BaseURL()).Int("collections", len(state.Collections)).Strs("live_nodes", state.LiveNodes).Msg("solr reachable")
		return nil
	})
	eg.Go(func() error {
		if a.Cfg.Global.Mode == config.ModeRestore {
			key := util.ManifestKey(a.Cfg.Backup.Name)
			ok, err := a.Storage.Exists(egCtx, key)
			if err != nil {
				return fmt.Errorf("manifest storage: %w", err)
			}
			if !ok {
				return fmt.Errorf("manifest storage: %s: %w", key, manifest.ErrNotFound)
			}
			return nil
		}
		probe := ".probe-" + uuid.NewString()
		if err := a.Storage.Put(egCtx, probe, strings.NewReader("ok"), 2); err != nil {
			return fmt.Errorf("manifest storage not writable: %w", err)
		}
		return a.Storage.Delete(egCtx, probe)
	})
	return eg.Wait()
}

func (a *App) run(ctx context.Context, mode string, body func(context.Context, *Report) error) (*Report, error) {
	start := a.Clock.Now()
	report := &Report{Mode: mode, BackupName: a.Cfg.Backup.Name, Manifest: manifest.New()}
	var opErr error
	defer func() {
		if a.Notifier == nil {
			return
		}
		event := notify.Event{
			Type:       mode,
			Message:    fmt.Sprintf("%s %s", mode, a.Cfg.Backup.Name),
			Status:     statusOf(report, opErr),
			Host:       a.Solr.BaseURL(),
			BackupName: a.Cfg.Backup.Name,
			StartedAt:  start,
			EndedAt:    a.Clock.Now(),
			Duration:   a.Clock.Now().Sub(start).Round(time.Millisecond).String(),
			Manifest:   report.ManifestKey,
			Succeeded:  report.Succeeded(),
			Failed:     report.Failed(),
		}
		if opErr != nil {
			event.Error = opErr.Error()
		}
		if err := a.Notifier.Notify(context.WithoutCancel(ctx), event); err != nil {
			a.Log.Warn().Err(err).Msg("notification failed")
		}
	}()

	guard, err := lock.Acquire(a.Cfg.Global.LockFile)
	if err != nil {
		opErr = err
		return report, err
	}
	defer guard.Release()

	a.Log.Info().Str("mode", mode).Str("host", a.Solr.BaseURL()).Str("name", a.Cfg.Backup.Name).Str("path", a.Cfg.Backup.Path).Str("lock", guard.Path()).Msg("run started")
	opErr = body(ctx, report)
	return report, opErr
}

func (a *App) selectFrom(available []string) Selection {
	sel := Select(available, a.Cfg.Backup.Collections, a.Cfg.Backup.Blacklist)
	for _, name := range sel.Missing {
		a.Log.Warn().Str("collection", name).Msg("requested collection not found, skipping")
	}
	if len(sel.Excluded) > 0 {
		a.Log.Info().Strs("collections", sel.Excluded).Msg("blacklisted collections skipped")
	}
	if len(sel.Selected) == 0 {
		a.Log.Warn().Msg("no collections selected")
	}
	return sel
}

// dispatchAll runs the selected collections one at a time, recording
// successes in report.Manifest.
func (a *App) dispatchAll(ctx context.Context, report *Report, taskFor func(string) dispatch.Task) {
	d := dispatch.New(a.Solr, a.Clock, dispatch.Policy{
		MaxAttempts:  a.Cfg.Backup.RetryCount,
		Backoff:      a.Cfg.Backup.RetryBackoff,
		MaxBackoff:   a.Cfg.Backup.MaxBackoff,
		PollInterval: a.Cfg.Backup.PollInterval,
		PollTimeout:  a.Cfg.Backup.PollTimeout,
	})
	d.Observe = a.logTransition

	for _, collection := range report.Selection.Selected {
		if ctx.Err() != nil {
			return
		}
		out := d.Run(ctx, taskFor(collection))
		report.Outcomes = append(report.Outcomes, out)
		if out.OK() {
			report.Manifest.Record(collection, out.Name)
			a.Log.Info().Str("collection", collection).Str("name", out.Name).Int("attempts", len(out.Attempts)).Msg(report.Mode + " completed")
			continue
		}
		a.Log.Error().Err(out.Err).Str("collection", collection).Int("attempts", len(out.Attempts)).Msg(report.Mode + " failed")
		if a.Cfg.Global.FailFast {
			return
		}
	}
}

func (a *App) logTransition(tr dispatch.Transition) {
	lvl := zerolog.DebugLevel
	switch tr.To {
	case dispatch.Failed:
		lvl = zerolog.WarnLevel
	case dispatch.Exhausted:
		lvl = zerolog.ErrorLevel
	}
	a.Log.WithLevel(lvl).Err(tr.Err).
		Str("collection", tr.Collection).
		Int("attempt", tr.Attempt).
		Str("name", tr.Name).
		Str("request_id", tr.RequestID).
		Str("from", tr.From.String()).
		Str("state", tr.To.String()).
		Msg("state change")
}

// runError reports cancellation first, then any failed collections.
func runError(ctx context.Context, report *Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	failed := report.Failed()
	if len(failed) == 0 {
		return nil
	}
	errs := make([]error, 0, len(failed))
	for _, o := range report.Outcomes {
		if !o.OK() {
			errs = append(errs, fmt.Errorf("%s: %w", o.Collection, o.Err))
		}
	}
	return fmt.Errorf("%d of %d collections failed: %w", len(failed), len(report.Selection.Selected), errors.Join(errs...))
}

func statusOf(report *Report, err error) string {
	switch {
	case err == nil:
		return notify.StatusSuccess
	case len(report.Succeeded()) > 0:
		return notify.StatusPartial
	default:
		return notify.StatusFailed
	}
}
