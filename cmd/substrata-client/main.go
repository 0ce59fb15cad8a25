// Command substrata-client is the client binary's composition root: it
// parses the CLI surface, builds a Runtime, drives its connect/tick/shutdown
// lifecycle, and -- in --screenshotslave mode -- serves the loopback control
// channel instead of waiting on a human operator (spec §6).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/petervdpas/substrata-client/internal/control"
	"github.com/petervdpas/substrata-client/internal/runtime"
	"github.com/petervdpas/substrata-client/internal/world"
)

var (
	host            = flag.String("h", "", "server host (overrides the config/URL host)")
	screenshotSlave = flag.Bool("screenshotslave", false, "become a controllable slave via a local socket")
	screenshotPath  = flag.String("screenshot", "", "capture a screenshot to this path and exit")
	configPath      = flag.String("config", "", "path to the client config file (default: <data dir>/config.json)")
)

// appVersion is set at build time via -ldflags "-X main.appVersion=x.y.z".
var appVersion = "dev"

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "substrata-client:", err)
		os.Exit(1)
	}
}

func run() error {
	args := flag.Args()

	cfg, cfgPath, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var worldName, parcelID string
	if len(args) > 0 {
		h, w, p, err := parseSubstrataURL(args[0])
		if err != nil {
			return fmt.Errorf("parse %q: %w", args[0], err)
		}
		cfg.Server.Addr = h
		worldName, parcelID = w, p
	}
	if *host != "" {
		cfg.Server.Addr = *host
	}
	if worldName != "" {
		cfg.Server.WorldName = worldName
	}
	_ = parcelID // parcel navigation is a foreground/camera concern outside this package's scope

	rt, err := runtime.New(cfg)
	if err != nil {
		return fmt.Errorf("build runtime: %w", err)
	}
	log.Printf("substrata-client %s: config %s, data dir %s", appVersion, cfgPath, cfg.Paths.DataDir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutting down gracefully...")
		cancel()
	}()

	rt.Start()
	defer rt.Shutdown()

	if err := rt.Connect(ctx, cfg.Identity.Username, os.Getenv("SUBSTRATA_PASSWORD")); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	app := &appHandler{rt: rt, cancel: cancel}

	if *screenshotSlave {
		return runScreenshotSlave(ctx, cfg.Control.Port, app, rt)
	}
	if *screenshotPath != "" {
		if err := app.Screenshot(*screenshotPath); err != nil {
			return fmt.Errorf("screenshot: %w", err)
		}
		return nil
	}

	return runForeground(ctx, rt)
}

// runForeground drives the per-frame tick loop until ctx is cancelled. A
// real client drives Tick from its render loop with the live camera
// position; this headless composition root ticks on a fixed interval with
// the world-state avatar's last known position, since camera input and
// rendering are explicitly out of scope (spec §1 Non-goals).
func runForeground(ctx context.Context, rt *runtime.Runtime) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			rt.Tick(selfAvatarPos(rt), now)
		}
	}
}

func selfAvatarPos(rt *runtime.Runtime) world.Vec3d {
	if av, ok := rt.State.GetAvatar(rt.Receiver.SelfUID()); ok {
		return av.Pos
	}
	return world.Vec3d{}
}

// runScreenshotSlave drives the foreground tick loop and the loopback
// control server concurrently, returning once either stops (spec §6
// "become a controllable slave via a local socket on port 34534").
func runScreenshotSlave(ctx context.Context, port int, app *appHandler, rt *runtime.Runtime) error {
	srv := control.New(port, app, rt.Logger)
	log.Printf("screenshotslave: listening on %s", srv.Addr())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run() }()

	go func() {
		<-ctx.Done()
		srv.Shutdown()
	}()

	tickErrCh := make(chan error, 1)
	go func() { tickErrCh <- runForeground(ctx, rt) }()

	select {
	case err := <-errCh:
		return err
	case err := <-tickErrCh:
		srv.Shutdown()
		return err
	}
}

// appHandler adapts Runtime to control.Handler.
type appHandler struct {
	rt     *runtime.Runtime
	cancel context.CancelFunc
}

// Goto tears down the current session and reconnects to a new host/world
// (spec §6's positional substrata URL, driven here instead of at startup).
func (a *appHandler) Goto(url string) error {
	host, worldName, _, err := parseSubstrataURL(url)
	if err != nil {
		return err
	}
	if a.rt.Sender != nil {
		a.rt.Sender.Shutdown(2 * time.Second)
	}
	if a.rt.Receiver != nil {
		a.rt.Receiver.Stop()
	}
	if a.rt.Voice != nil {
		a.rt.Voice.Stop()
	}
	if a.rt.Session != nil {
		a.rt.Session.Close()
	}

	a.rt.Config.Server.Addr = host
	a.rt.Config.Server.WorldName = worldName
	return a.rt.Connect(context.Background(), a.rt.Config.Identity.Username, os.Getenv("SUBSTRATA_PASSWORD"))
}

// Screenshot is a stub: frame capture belongs to the renderer, which this
// module never builds (spec §1 Non-goals). The control protocol still needs
// a response, so this reports a capture as unsupported rather than timing
// out the caller.
func (a *appHandler) Screenshot(path string) error {
	return errors.New("substrata-client: screenshot capture requires a renderer, not available headless")
}

func (a *appHandler) Quit() {
	a.cancel()
}

func loadConfig() (runtime.Config, string, error) {
	path := *configPath
	if path == "" {
		def := runtime.Default()
		path = filepath.Join(def.Paths.DataDir, "config.json")
	}
	cfg, _, err := runtime.Ensure(path)
	return cfg, path, err
}

// defaultServerPort is appended when a substrata URL names a bare host.
const defaultServerPort = "7600"

// parseSubstrataURL parses sub://<host>[/worldname][/parcel/<id>] (spec §6).
// The returned host is a dialable "host:port" string.
func parseSubstrataURL(raw string) (host, worldName, parcelID string, err error) {
	const scheme = "sub://"
	if !strings.HasPrefix(raw, scheme) {
		return "", "", "", fmt.Errorf("missing %q scheme", scheme)
	}
	rest := strings.TrimPrefix(raw, scheme)
	parts := strings.Split(rest, "/")
	if len(parts) == 0 || parts[0] == "" {
		return "", "", "", errors.New("missing host")
	}
	host = parts[0]
	if !strings.Contains(host, ":") {
		host += ":" + defaultServerPort
	}

	switch len(parts) {
	case 1:
		return host, "", "", nil
	case 2:
		return host, parts[1], "", nil
	case 3:
		if parts[1] != "parcel" {
			return "", "", "", fmt.Errorf("expected /parcel/<id>, got /%s/%s", parts[1], parts[2])
		}
		return host, "", parts[2], nil
	case 4:
		if parts[1] != "" {
			worldName = parts[1]
		}
		if parts[2] != "parcel" {
			return "", "", "", fmt.Errorf("expected /parcel/<id>, got /%s/%s", parts[2], parts[3])
		}
		return host, worldName, parts[3], nil
	default:
		return "", "", "", fmt.Errorf("malformed substrata URL %q", raw)
	}
}
