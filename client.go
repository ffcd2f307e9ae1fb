package main

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"inlinesuggest/config"
	"inlinesuggest/logger"
)

const startPollInterval = 50 * time.Millisecond

// Client relays the editor's msgpack-rpc stream to the daemon, starting the
// daemon first when nothing listens on the socket.
type Client struct {
	socketPath   string
	dialTimeout  time.Duration
	startTimeout time.Duration
	daemonArgs   []string
}

func NewClient(cfg config.Config) *Client {
	return &Client{
		socketPath:   socketPath(cfg),
		dialTimeout:  cfg.DialTimeout(),
		startTimeout: cfg.StartTimeout(),
		daemonArgs:   []string{os.Args[0], "--daemon"},
	}
}

// Connect copies stdin to the daemon and the daemon's replies to stdout
// until either side closes.
func (c *Client) Connect() error {
	conn, err := net.DialTimeout("unix", c.socketPath, c.dialTimeout)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.socketPath, err)
	}
	defer conn.Close()

	go func() {
		if _, err := io.Copy(conn, os.Stdin); err != nil {
			logger.Debug("relay stdin: %v", err)
		}
		// Half-close so the daemon sees EOF and finishes the session
		if uc, ok := conn.(*net.UnixConn); ok {
			uc.CloseWrite()
		} else {
			conn.Close()
		}
	}()

	if _, err := io.Copy(os.Stdout, conn); err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("relay stdout: %w", err)
	}
	return nil
}

// EnsureDaemonRunning starts the daemon unless its socket accepts connections
func (c *Client) EnsureDaemonRunning() error {
	if c.reachable() {
		logger.Debug("daemon already listening on %s", c.socketPath)
		return nil
	}
	return c.startDaemon()
}

func (c *Client) reachable() bool {
	conn, err := net.DialTimeout("unix", c.socketPath, c.dialTimeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// startDaemon launches the daemon in its own session and waits until it
// listens. If it exits first, its stderr is returned as the error.
func (c *Client) startDaemon() error {
	logger.Debug("starting daemon: %v", c.daemonArgs)

	stderr, err := os.CreateTemp("", "inlinesuggest-start-*.log")
	if err != nil {
		return fmt.Errorf("create start-up log: %w", err)
	}
	defer os.Remove(stderr.Name())
	defer stderr.Close()

	cmd := exec.Command(c.daemonArgs[0], c.daemonArgs[1:]...)
	cmd.Env = os.Environ()
	cmd.Stderr = stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	ticker := time.NewTicker(startPollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(c.startTimeout)
	defer deadline.Stop()

	for {
		select {
		case err := <-exited:
			return startFailure(stderr.Name(), err)
		case <-ticker.C:
			if c.reachable() {
				logger.Debug("daemon started with PID %d", cmd.Process.Pid)
				return nil
			}
		case <-deadline.C:
			return fmt.Errorf("daemon did not listen on %s within %v", c.socketPath, c.startTimeout)
		}
	}
}

// startFailure describes a daemon that exited during start-up, quoting what
// it wrote to stderr (typically a config error).
func startFailure(stderrPath string, exitErr error) error {
	if exitErr == nil {
		exitErr = errors.New("exit status 0")
	}
	data, _ := os.ReadFile(stderrPath)
	if msg := strings.TrimSpace(string(data)); msg != "" {
		return fmt.Errorf("daemon exited during start-up (%v): %s", exitErr, msg)
	}
	return fmt.Errorf("daemon exited during start-up: %w", exitErr)
}
