//go:build linux
// +build linux

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/momentics/hioload-dispatch/api"
	"github.com/momentics/hioload-dispatch/control"
	"github.com/momentics/hioload-dispatch/core/concurrency"
	"github.com/momentics/hioload-dispatch/logs"
	"github.com/momentics/hioload-dispatch/observer"
	"github.com/momentics/hioload-dispatch/reactor"
)

// instance is one running substrate: a reactor driven by a thread pool, a
// heartbeat fanned out through a multiplexer, and the config store.
type instance struct {
	log      *zap.Logger
	metrics  *control.Metrics
	probes   *control.DebugProbes
	store    *control.ConfigStore
	executor api.Executor
	reactor  *reactor.MultiplexingDispatchable
	threads  *reactor.ThreadedDispatcher
	actions  *reactor.ActionQueue
	beats    *observer.Multiplexer[HeartbeatObserver]
	server   *http.Server

	// observers kept reachable for the lifetime of the instance
	logger  *beatLogger
	counter *beatCounter
}

func runAction(ctx *cli.Context) error {
	cfg, watchPath, err := loadConfig(ctx.String(flagConfig.Name))
	if err != nil {
		return err
	}
	if lvl := ctx.String(flagLogLevel.Name); lvl != "" {
		cfg.Log.Level = lvl
	}
	if err := logs.SetLevel(cfg.Log.Level); err != nil {
		return errors.Wrap(err, "log level")
	}
	defer logs.Sync()

	inst, err := start(cfg, watchPath, ctx.Duration(flagHeartbeat.Name))
	if err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()
	inst.log.Info("shutting down")
	return inst.close()
}

// loadConfig reads path if it exists. A missing default file falls back to
// defaults and environment; the returned watch path is then empty.
func loadConfig(path string) (control.Config, string, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			cfg, err := control.LoadConfig(path)
			return cfg, path, err
		} else if path != defaultConfigPath() {
			return control.Config{}, "", errors.Wrapf(err, "config %s", path)
		}
	}
	cfg, err := control.LoadConfig("")
	return cfg, "", err
}

func start(cfg control.Config, watchPath string, heartbeat time.Duration) (_ *instance, err error) {
	inst := &instance{
		log:     logs.Named("main"),
		metrics: control.NewMetrics(cfg.Metrics.Namespace),
		probes:  control.NewDebugProbes(),
	}
	defer func() {
		if err != nil {
			_ = inst.close()
		}
	}()

	inst.executor, err = concurrency.New(cfg.Executor.Kind, cfg.Executor.Workers, cfg.Dispatch.CPUs)
	if err != nil {
		return nil, err
	}
	inst.store = control.NewConfigStore(cfg, inst.executor, observer.WithRecorder(inst.metrics))

	inst.reactor, err = reactor.NewMultiplexingDispatchable(reactor.WithMetrics(inst.metrics), reactor.WithName("main"))
	if err != nil {
		return nil, err
	}

	// Heartbeat observers run on the dispatch threads through the action queue.
	inst.actions, err = reactor.NewActionQueue()
	if err != nil {
		return nil, err
	}
	if err = inst.reactor.AddWatch(inst.actions); err != nil {
		return nil, err
	}
	inst.beats = observer.NewMultiplexer[HeartbeatObserver](inst.actions, observer.WithRecorder(inst.metrics))
	inst.logger = &beatLogger{log: logs.Named("heartbeat")}
	inst.counter = &beatCounter{}
	inst.beats.RegisterEarlyObserver(observer.Weak[HeartbeatObserver](inst.counter), concurrency.Immediate)
	inst.beats.RegisterInterest(observer.Weak[HeartbeatObserver](inst.logger), nil)

	var seq atomic.Uint64
	timer, err := reactor.NewTimerDispatchable(heartbeat, func(expirations uint64) {
		n := seq.Add(1)
		inst.beats.ForEachObserver(func(o HeartbeatObserver) { o.Beat(n, expirations) })
	})
	if err != nil {
		return nil, err
	}
	if err = inst.reactor.AddWatch(timer, reactor.Owned()); err != nil {
		_ = timer.Close()
		return nil, err
	}

	inst.threads, err = reactor.NewThreadedDispatcher("dispatch", inst.reactor, cfg.Dispatch.Threads,
		reactor.WithMetrics(inst.metrics),
		reactor.WithCPUs(cfg.Dispatch.CPUs),
		reactor.WithErrorHandler(func(err error) {
			inst.log.Error("dispatch thread failed", zap.Error(err))
		}))
	if err != nil {
		return nil, err
	}

	inst.registerProbes()
	inst.store.Subscribe(observer.Weak[control.ReloadObserver](inst), nil)
	if watchPath != "" {
		if err = inst.store.Watch(watchPath); err != nil {
			return nil, err
		}
	}

	if cfg.Metrics.Addr != "" {
		inst.serve(cfg.Metrics.Addr)
	}
	inst.log.Info("dispatch started",
		zap.Int("threads", cfg.Dispatch.Threads),
		zap.Ints("cpus", cfg.Dispatch.CPUs),
		zap.String("executor", cfg.Executor.Kind),
		zap.Duration("heartbeat", heartbeat))
	return inst, nil
}

func (inst *instance) registerProbes() {
	control.RegisterPlatformProbes(inst.probes)
	inst.probes.RegisterProbe("reactor", func() any { return inst.reactor.Stats() })
	inst.probes.RegisterProbe("threads", func() any { return inst.threads.Len() })
	inst.probes.RegisterProbe("actions.pending", func() any { return inst.actions.Len() })
	inst.probes.RegisterProbe("heartbeat", inst.counter.probe)
	inst.probes.RegisterProbe("heartbeat.observers", func() any { return inst.beats.Len() })
	inst.probes.RegisterProbe("config", func() any { return inst.store.Snapshot() })
	if pool, ok := inst.executor.(*concurrency.Executor); ok {
		inst.probes.RegisterProbe("executor", func() any {
			return map[string]any{
				"workers": pool.NumWorkers(),
				"pending": pool.Pending(),
				"spilled": pool.Spilled(),
			}
		})
	}
}

// OnReload applies thread count and log level changes.
func (inst *instance) OnReload(old, updated control.Config) {
	if updated.Log.Level != old.Log.Level {
		if err := logs.SetLevel(updated.Log.Level); err != nil {
			inst.log.Warn("bad log level", zap.String("level", updated.Log.Level), zap.Error(err))
		}
	}
	if updated.Dispatch.Threads != old.Dispatch.Threads {
		if err := inst.threads.Resize(updated.Dispatch.Threads); err != nil {
			inst.log.Error("resizing dispatch threads", zap.Error(err))
			return
		}
		inst.log.Info("dispatch threads resized", zap.Int("threads", updated.Dispatch.Threads))
	}
}

func (inst *instance) serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", inst.metrics.Handler())
	mux.HandleFunc("/debug/probes", inst.serveProbes)
	inst.server = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := inst.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			inst.log.Error("metrics server stopped", zap.Error(err))
		}
	}()
}

// serveProbes writes every probe, or the one named by ?name=, as JSON.
func (inst *instance) serveProbes(w http.ResponseWriter, r *http.Request) {
	var body any = inst.probes.DumpState()
	if name := r.URL.Query().Get("name"); name != "" {
		v, ok := inst.probes.Probe(name)
		if !ok {
			http.Error(w, "unknown probe "+name, http.StatusNotFound)
			return
		}
		body = v
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		inst.log.Warn("writing probes", zap.Error(err))
	}
}

// close stops the threads before the reactor they drive.
func (inst *instance) close() error {
	var err error
	if inst.store != nil {
		inst.store.Unsubscribe(inst)
	}
	if inst.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = multierr.Append(err, inst.server.Shutdown(shutdownCtx))
		cancel()
	}
	if inst.threads != nil {
		err = multierr.Append(err, inst.threads.Close())
	}
	if inst.reactor != nil {
		err = multierr.Append(err, inst.reactor.Close())
	}
	if inst.actions != nil {
		err = multierr.Append(err, inst.actions.Close())
	}
	if pool, ok := inst.executor.(*concurrency.Executor); ok {
		pool.Close()
	}
	return err
}
