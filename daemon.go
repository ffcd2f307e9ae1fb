package main

import (
	"context"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"inlinesuggest/cache"
	"inlinesuggest/client/languageserver"
	"inlinesuggest/config"
	"inlinesuggest/engine"
	"inlinesuggest/host"
	"inlinesuggest/logger"
	"inlinesuggest/metrics"
	"inlinesuggest/workspace"

	"github.com/neovim/go-client/nvim"
)

var _ engine.Service = (*languageserver.Client)(nil)

const shutdownTimeout = 5 * time.Second

type Daemon struct {
	config      config.Config
	service     *languageserver.Client
	cache       *cache.Cache
	metrics     *metrics.Provider
	engine      *engine.Engine
	host        *host.Host
	watcher     *workspace.Watcher
	listener    net.Listener
	socketPath  string
	pidPath     string
	clientCount int64
	ctx         context.Context
	cancel      context.CancelFunc
}

func NewDaemon(cfg config.Config) (*Daemon, error) {
	service := languageserver.NewClient(languageserver.Config{
		URL:              cfg.ServiceURL,
		APIKey:           cfg.APIKey,
		IDEName:          "neovim",
		ExtensionName:    "inlinesuggest",
		ExtensionVersion: version,
	})

	provider, err := metrics.Setup("inlinesuggest")
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		config:     cfg,
		service:    service,
		metrics:    provider,
		socketPath: socketPath(cfg),
		pidPath:    getPidPath(),
	}

	// A nil *cache.Cache must not reach the engine as a non-nil interface
	var responses engine.ResponseCache
	if ttl := cfg.CacheTTL(); ttl > 0 {
		d.cache = cache.New(ttl, cache.DefaultCapacity)
		responses = d.cache
	}

	d.engine = engine.NewEngine(service, engine.EngineConfig{
		MultilineThreshold: cfg.MultilineThreshold,
		CompletionTimeout:  cfg.CompletionTimeout(),
		AcceptRetryWindow:  cfg.AcceptRetryWindow(),
	}, responses, provider.Tracker())

	sources := host.Sources{}
	if d.cache != nil {
		sources.Cache = d.cache
	}
	if len(cfg.ContextFiles) > 0 {
		w, err := workspace.Watch(cfg.ContextFiles, workspace.DefaultDebounce, d.engine.UpdateOtherDocuments)
		if err != nil {
			logger.Warn("context files not watched: %v", err)
		} else {
			d.watcher = w
			sources.Watcher = w
		}
	}
	d.host = host.New(d.engine, cfg.ResolvedEditorOptions(), sources)

	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d, nil
}

func (d *Daemon) Start() error {
	d.writePidFile()
	defer d.removePidFile()

	if err := d.setupSocket(); err != nil {
		return err
	}
	defer d.cleanup()

	logger.Info("daemon listening on socket: %s", d.socketPath)

	d.engine.Start(d.ctx)

	d.setupShutdownHandling()

	go d.acceptConnections()
	go d.monitorIdleShutdown()

	<-d.ctx.Done()
	logger.Info("daemon shutting down...")
	d.release()
	return nil
}

func (d *Daemon) setupSocket() error {
	os.Remove(d.socketPath)

	listener, err := net.Listen("unix", d.socketPath)
	if err != nil {
		return err
	}
	d.listener = listener
	return nil
}

func (d *Daemon) setupShutdownHandling() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received shutdown signal")
		d.Stop()
	}()
}

func (d *Daemon) acceptConnections() {
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			select {
			case <-d.ctx.Done():
				return
			default:
				logger.Error("error accepting connection: %v", err)
				continue
			}
		}

		atomic.AddInt64(&d.clientCount, 1)
		logger.Info("new client connected, total clients: %d", atomic.LoadInt64(&d.clientCount))
		go d.handleConnection(conn)
	}
}

func (d *Daemon) handleConnection(conn net.Conn) {
	defer conn.Close()
	defer func() {
		atomic.AddInt64(&d.clientCount, -1)
		logger.Info("client disconnected, remaining clients: %d", atomic.LoadInt64(&d.clientCount))
	}()

	n, err := nvim.New(conn, conn, conn, logger.Debug)
	if err != nil {
		logger.Error("error creating nvim client: %v", err)
		return
	}

	if err := d.host.Attach(n); err != nil {
		logger.Error("error registering handlers: %v", err)
		return
	}
	defer d.host.Detach(n)

	select {
	case <-d.ctx.Done():
		return
	default:
		if err := n.Serve(); err != nil && err != io.EOF {
			logger.Error("error serving connection: %v", err)
		}
	}
}

func (d *Daemon) monitorIdleShutdown() {
	// In debug mode, shut down immediately when no clients are connected
	if d.config.DebugImmediateShutdown {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-d.ctx.Done():
				return
			case <-ticker.C:
				if atomic.LoadInt64(&d.clientCount) == 0 {
					logger.Info("debug mode: no clients connected, shutting down daemon immediately")
					d.Stop()
					return
				}
			}
		}
	}

	idleTimer := time.NewTimer(30 * time.Second)
	defer idleTimer.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-idleTimer.C:
			if atomic.LoadInt64(&d.clientCount) == 0 {
				logger.Info("no clients connected for timeout period, shutting down daemon")
				d.Stop()
				return
			}
		}

		if atomic.LoadInt64(&d.clientCount) == 0 {
			idleTimer.Reset(5 * time.Second)
		} else {
			idleTimer.Reset(30 * time.Second)
		}
	}
}

func (d *Daemon) Stop() {
	d.engine.Stop()
	if d.listener != nil {
		d.listener.Close()
	}
	d.cancel()
}

// release closes everything that outlives the engine
func (d *Daemon) release() {
	if d.watcher != nil {
		if err := d.watcher.Close(); err != nil {
			logger.Warn("closing watcher: %v", err)
		}
	}
	d.host.Close()
	if d.cache != nil {
		d.cache.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if totals, err := d.metrics.Totals(ctx); err == nil {
		logger.Info("session totals: %v", totals)
	}
	if err := d.metrics.Shutdown(ctx); err != nil {
		logger.Warn("metrics shutdown: %v", err)
	}
}

func (d *Daemon) cleanup() {
	os.Remove(d.socketPath)
}

func (d *Daemon) writePidFile() {
	pid := os.Getpid()
	err := os.WriteFile(d.pidPath, []byte(strconv.Itoa(pid)), 0644)
	if err != nil {
		logger.Warn("could not write PID file: %v", err)
	}
	logger.Info("server started with PID %d", pid)
}

func (d *Daemon) removePidFile() {
	if err := os.Remove(d.pidPath); err != nil && !os.IsNotExist(err) {
		logger.Warn("could not remove PID file: %v", err)
	}
}
