// Package browser starts a local headless Chromium for the CDP capture
// backend when no browser is already listening on the DevTools endpoint.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"runtime"
	"syscall"
	"time"
)

const readyTimeout = 15 * time.Second

// Config holds launch settings. CDPURL is the DevTools endpoint the capture
// driver will attach to, e.g. http://127.0.0.1:9222.
type Config struct {
	CDPURL     string
	ProfileDir string
	Headless   bool
	// Binary overrides browser detection.
	Binary string
}

// Launcher owns at most one browser process.
type Launcher struct {
	cfg  Config
	host string
	port string
	cmd  *exec.Cmd
}

// NewLauncher validates the endpoint and returns a launcher for it.
func NewLauncher(cfg Config) (*Launcher, error) {
	u, err := url.Parse(cfg.CDPURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("browser: invalid CDP url %q", cfg.CDPURL)
	}
	host, port, err := net.SplitHostPort(u.Host)
	if err != nil {
		return nil, fmt.Errorf("browser: CDP url %q needs an explicit port: %w", cfg.CDPURL, err)
	}
	if cfg.ProfileDir == "" {
		cfg.ProfileDir = "./data/chromium-profile"
	}
	return &Launcher{cfg: cfg, host: host, port: port}, nil
}

func detectBrowser() (string, error) {
	for _, name := range []string{"chromium-browser", "chromium", "google-chrome", "headless-shell"} {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	if runtime.GOOS == "darwin" {
		macPath := "/Applications/Google Chrome.app/Contents/MacOS/Google Chrome"
		if _, err := os.Stat(macPath); err == nil {
			return macPath, nil
		}
	}
	return "", errors.New("browser: no chromium binary found")
}

func (l *Launcher) addr() string { return net.JoinHostPort(l.host, l.port) }

func (l *Launcher) listening() bool {
	conn, err := net.DialTimeout("tcp", l.addr(), time.Second)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

func (l *Launcher) args() []string {
	args := []string{
		"--remote-debugging-port=" + l.port,
		"--remote-debugging-address=" + l.host,
		"--user-data-dir=" + l.cfg.ProfileDir,
		"--no-first-run",
		"--disable-dev-shm-usage",
		"--disable-breakpad",
		"--window-size=1920,1080",
	}
	if l.cfg.Headless {
		args = append(args, "--headless=new", "--hide-scrollbars", "--mute-audio")
	}
	return append(args, "about:blank")
}

// Launch starts the browser unless something already listens on the
// endpoint, then waits for /json/version to answer.
func (l *Launcher) Launch(ctx context.Context) error {
	if l.listening() {
		slog.Info("browser already listening, skipping launch", "addr", l.addr())
		return nil
	}

	bin := l.cfg.Binary
	if bin == "" {
		var err error
		if bin, err = detectBrowser(); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(l.cfg.ProfileDir, 0o755); err != nil {
		return fmt.Errorf("browser: create profile dir: %w", err)
	}

	l.cmd = exec.Command(bin, l.args()...)
	l.cmd.Stderr = os.Stderr
	if err := l.cmd.Start(); err != nil {
		l.cmd = nil
		return fmt.Errorf("browser: start %s: %w", bin, err)
	}
	slog.Info("browser process started", "path", bin, "pid", l.cmd.Process.Pid, "headless", l.cfg.Headless)

	if err := l.waitReady(ctx); err != nil {
		l.Stop()
		return err
	}
	slog.Info("CDP endpoint ready", "addr", l.addr())
	return nil
}

func (l *Launcher) waitReady(ctx context.Context) error {
	endpoint := "http://" + l.addr() + "/json/version"
	deadline := time.After(readyTimeout)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	client := &http.Client{Timeout: time.Second}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("browser: CDP not ready within %s at %s", readyTimeout, endpoint)
		case <-ticker.C:
			resp, err := client.Get(endpoint)
			if err != nil {
				continue
			}
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
	}
}

// Running reports whether this launcher spawned a browser process.
func (l *Launcher) Running() bool { return l.cmd != nil }

// Stop sends SIGTERM to a spawned browser and SIGKILL after five seconds.
func (l *Launcher) Stop() {
	if l.cmd == nil || l.cmd.Process == nil {
		return
	}
	slog.Info("stopping browser", "pid", l.cmd.Process.Pid)
	_ = l.cmd.Process.Signal(syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		_ = l.cmd.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		slog.Warn("browser did not exit, sending SIGKILL")
		_ = l.cmd.Process.Kill()
		<-done
	}
	l.cmd = nil
}
