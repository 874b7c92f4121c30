package cli

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/imxup/imxup/artifacts"
	"github.com/imxup/imxup/bandwidth"
	"github.com/imxup/imxup/config"
	"github.com/imxup/imxup/engine"
	"github.com/imxup/imxup/filehost"
	"github.com/imxup/imxup/hooks"
	"github.com/imxup/imxup/imx"
	"github.com/imxup/imxup/logging"
	"github.com/imxup/imxup/queue"
	"github.com/imxup/imxup/renamer"
	"github.com/imxup/imxup/secrets"
	"github.com/imxup/imxup/store"
)

// Secret-store keys for credentials referenced from the ini.
const (
	apiKeySecret      = "imx-api-key"
	webPasswordSecret = "imx-web-password"
)

func filehostSecret(host string) string { return "filehost-" + host }

// Runtime is the opened application state shared by all commands. Worker
// components are nil unless the command was bound with workerAction.
type Runtime struct {
	Layout  *config.Layout
	Config  *config.Config
	Store   *store.Store
	Queue   *queue.Manager
	Secrets secrets.Store

	Bandwidth *bandwidth.Aggregator
	Client    imx.Client
	Writer    *artifacts.Writer
	Hooks     *hooks.Executor
	Renamer   *renamer.Worker
	Engine    *engine.Engine
	FileHosts *filehost.Pool

	releaseLock func()
	cancel      context.CancelFunc
	closers     []func()
}

func openRuntime(ctx context.Context, configDir, logLevel string, workers bool) (*Runtime, error) {
	layout, err := config.NewLayout(configDir)
	if err != nil {
		return nil, err
	}

	logging.Setup(logLevel, layout.LogsDir())

	cfg, err := config.Load(layout.IniPath())
	if err != nil {
		return nil, err
	}

	release, err := config.AcquireLock(layout)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{
		Layout:      layout,
		Config:      cfg,
		Secrets:     secrets.NewKeyring(),
		releaseLock: release,
	}

	if err := rt.openBase(ctx); err != nil {
		rt.Close()
		return nil, err
	}

	if workers {
		if err := rt.openWorkers(ctx); err != nil {
			rt.Close()
			return nil, err
		}
	}

	return rt, nil
}

func (rt *Runtime) openBase(ctx context.Context) error {
	s, err := store.Open(ctx, rt.Layout.DBPath())
	if err != nil {
		return err
	}

	rt.Store = s
	rt.closers = append(rt.closers, func() { _ = s.Close() })

	if err := s.InitializeDefaultTabs(ctx); err != nil {
		return err
	}

	if err := artifacts.EnsureDefaultTemplate(rt.Layout.TemplatesDir()); err != nil {
		return err
	}

	rt.Hooks = hooks.NewExecutor(rt.Config.Hooks, rt.Layout.TempDir())

	q := queue.NewManager(s, rt.Config.Scanning)
	if err := q.Load(ctx); err != nil {
		return err
	}

	q.Start(ctx)

	rt.Queue = q
	rt.closers = append(rt.closers, q.Close)

	q.Signals().GalleryAdded.Subscribe(func(ev queue.GalleryAdded) {
		rt.runAddedHook(ctx, ev.Path)
	})

	if days := rt.Config.General.AutoArchiveDays; days > 0 {
		moved := q.ExecuteAutoArchive(ctx, time.Duration(days)*24*time.Hour)
		if len(moved) > 0 {
			log(ctx).Infof("auto-archived %v completed galleries", len(moved))
		}
	}

	return nil
}

func (rt *Runtime) openWorkers(ctx context.Context) error {
	workerCtx, cancel := context.WithCancel(ctx)
	rt.cancel = cancel

	apiKey, err := rt.Secrets.Get(apiKeySecret)
	if err != nil && !errors.Is(err, secrets.ErrNotFound) {
		return err
	}

	client, err := imx.NewHTTPClient(imx.Options{
		BaseURL:     rt.Config.General.BaseURL,
		APIKey:      apiKey,
		ReadTimeout: rt.Config.Upload.Timeout,
	})
	if err != nil {
		return err
	}

	rt.Client = client

	bw := bandwidth.NewAggregator(workerCtx, rt.Store)
	rt.Bandwidth = bw
	rt.closers = append(rt.closers, bw.Close)

	if peak, when, err := rt.Store.PeakThroughput(ctx); err == nil {
		bw.SeedPeak(peak, when)
	}

	rt.Writer = artifacts.NewWriter(rt.Layout.GalleriesDir(), rt.Layout.TemplatesDir())

	webPassword, _ := rt.Secrets.Get(webPasswordSecret)

	rw, err := renamer.NewWorker(renamer.Options{
		BaseURL:  rt.Config.General.BaseURL,
		Username: rt.Config.General.Username,
		Password: webPassword,
	}, rt.Store, rt.Secrets)
	if err != nil {
		return err
	}

	rt.Renamer = rw

	go rw.Run(workerCtx)

	rt.closers = append(rt.closers, rw.Close)

	eng := engine.New(rt.Queue, client, bw, rt.Writer, rt.Hooks, rw, engine.Options{
		ParallelBatchSize: rt.Config.Upload.BatchSize,
		MaxRetries:        rt.Config.Upload.Retries,
		ThumbnailSize:     atoiDefault(rt.Config.General.ThumbnailSize, 300),
		ThumbnailFormat:   rt.Config.General.ThumbnailFormat,
	})
	rt.Engine = eng

	// lifetime totals accumulate on gallery completion
	eng.Events().GalleryCompleted.Subscribe(func(ev engine.GalleryCompleted) {
		if g, ok := rt.Queue.GetItem(ev.Path); ok {
			if err := rt.Store.AddLifetimeTotals(ctx, g.UploadedBytes, ev.Succeeded); err != nil {
				log(ctx).Warnf("unable to update lifetime totals: %v", err)
			}
		}
	})

	go eng.Run(workerCtx)

	rt.closers = append(rt.closers, eng.Close)

	hosts, err := rt.buildFileHosts()
	if err != nil {
		return err
	}

	pool := filehost.NewPool(rt.Store, bw, rt.Layout.TempDir(), hosts)
	pool.Start(workerCtx)

	rt.FileHosts = pool
	rt.closers = append(rt.closers, pool.Close)

	return nil
}

// runAddedHook fires the added hook for a freshly queued gallery and merges
// any returned ext fields. Runs on the signal dispatch goroutine, which the
// queue drains on close, so a configured hook finishes before shutdown.
func (rt *Runtime) runAddedHook(ctx context.Context, path string) {
	if !rt.Hooks.Enabled(hooks.EventAdded) {
		return
	}

	g, ok := rt.Queue.GetItem(path)
	if !ok {
		return
	}

	for field, value := range rt.Hooks.Run(ctx, hooks.EventAdded, g, hooks.ArtifactPaths{}) {
		rt.Queue.UpdateCustomField(ctx, path, field, value)
	}
}

func (rt *Runtime) buildFileHosts() ([]filehost.Host, error) {
	var hosts []filehost.Host

	for _, fh := range rt.Config.FileHosts {
		if !fh.Enabled {
			continue
		}

		password, err := rt.Secrets.Get(filehostSecret(fh.Name))
		if err != nil && !errors.Is(err, secrets.ErrNotFound) {
			return nil, err
		}

		h, err := filehost.NewFormHost(filehost.FormHostOptions{
			Name:     fh.Name,
			BaseURL:  fh.BaseURL,
			Username: fh.Username,
			Password: password,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "invalid file host %q", fh.Name)
		}

		hosts = append(hosts, h)
	}

	return hosts, nil
}

// Close tears down the runtime in reverse open order.
func (rt *Runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}

	if rt.cancel != nil {
		rt.cancel()
	}

	if rt.releaseLock != nil {
		rt.releaseLock()
	}
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}

	return n
}
