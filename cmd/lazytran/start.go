package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"go.lazytran.dev/lazytran/internal/banlist"
	"go.lazytran.dev/lazytran/internal/config"
	"go.lazytran.dev/lazytran/internal/dispatch"
	"go.lazytran.dev/lazytran/internal/lifecycle"
	"go.lazytran.dev/lazytran/internal/lobby"
	"go.lazytran.dev/lazytran/internal/probe"
	"go.lazytran.dev/lazytran/internal/procctl"
	"go.lazytran.dev/lazytran/internal/rcon"
	"go.lazytran.dev/lazytran/internal/router"
	"go.lazytran.dev/lazytran/internal/serverprops"
	"go.lazytran.dev/lazytran/internal/state"
	"go.lazytran.dev/lazytran/internal/status"
)

const drainGrace = 10 * time.Second

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Run the proxy",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd.Context())
		},
	}
}

func runStart(ctx context.Context) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}
	if err := initLogger(cfg.Debug || debugFlag); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	// spec.md §4.6: "set server-port to an internally chosen free port"
	// rather than trusting a statically configured one, which would drift
	// out of sync with whatever's actually free on the host.
	internalHost, _, err := net.SplitHostPort(cfg.Server.Address)
	if err != nil {
		return fmt.Errorf("server.address: %w", err)
	}
	internalPort, err := pickFreePort(internalHost)
	if err != nil {
		return fmt.Errorf("allocate internal server port: %w", err)
	}
	internalAddr := net.JoinHostPort(internalHost, strconv.Itoa(internalPort))

	if cfg.Server.RewriteServerProps {
		if err := rewriteServerProperties(*cfg, internalHost, internalPort); err != nil {
			return err
		}
	}

	tracker := state.NewTracker()

	var rconClient *rcon.Client
	var stopper interface {
		Send(string) (string, error)
	}
	if cfg.Rcon.Enabled {
		rconClient = rcon.NewClient(net.JoinHostPort(internalHost, strconv.Itoa(cfg.Rcon.Port)), cfg.Rcon.Password)
		stopper = rconClient
	}

	proc := procctl.New(procctl.Options{
		Command:         cfg.Server.Command,
		Dir:             cfg.Server.Directory,
		StartTimeout:    cfg.Server.StartTimeout,
		StopTimeout:     cfg.Server.StopTimeout,
		StopStepTimeout: cfg.Server.StopStepTimeout,
		Stopper:         stopper,
	})
	prober := probe.New(internalAddr, rconClient)
	actor := lifecycle.New(tracker, proc, prober, lifecycle.Config{
		StartTimeout:        cfg.Server.StartTimeout,
		IdleTimeout:         cfg.Time.SleepAfter,
		PollIntervalStarted: cfg.Time.PollInterval,
		RestartOnCrash:      cfg.Advanced.RestartOnCrash,
		FreezeProcess:       cfg.Server.FreezeProcess,
		WakeOnCrash:         cfg.Server.WakeOnCrash,
		WakeOnStatus:        cfg.Server.WakeOnStatus,
		LockoutEnabled:      cfg.Lockout.Enabled,
	})

	banPath := filepath.Join(cfg.Server.Directory, "banned-ips.json")
	banWatcher, err := banlist.Watch(banPath)
	if err != nil {
		return fmt.Errorf("banlist: %w", err)
	}

	dispatcher := dispatch.New(tracker, actor, dispatch.Config{
		Methods:         cfg.Join.Methods,
		InternalBackend: internalAddr,
		HoldTimeout:     cfg.Join.Hold.Timeout,
		KickStarting:    cfg.Join.Kick.Starting,
		KickStarted:     cfg.Join.Kick.Started,
		KickStopping:    cfg.Join.Kick.Stopping,
		ForwardAddress:  cfg.Join.Forward.Address,
		Lobby: lobby.Config{
			PublicHost: cfg.Join.Lobby.PublicHost,
			PublicPort: cfg.Join.Lobby.PublicPort,
			Timeout:    cfg.Join.Lobby.Timeout,
		},
		LockoutMessage: cfg.Lockout.Message,
	})

	r := router.New(tracker, banWatcher.Set, dispatcher, actor, router.Config{
		PublicAddress: cfg.Public.Address,
		Status: status.Info{
			VersionName: cfg.Public.Version,
			MaxPlayers:  cfg.Server.MaxPlayers,
			MOTD:        cfg.Motd.Sleeping,
			FaviconPath: cfg.Motd.FaviconPath,
		},
		MotdStarting:   cfg.Motd.Starting,
		MotdFromServer: cfg.Motd.FromServer,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	routerCtx, cancelRouter := context.WithCancel(ctx)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error { return actor.Run(egCtx) })
	eg.Go(func() error { return banWatcher.Run(egCtx) })
	eg.Go(func() error { return r.ListenAndServe(routerCtx) })
	go proc.ForwardConsole(egCtx, os.Stdin)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer func() { signal.Stop(sig); close(sig) }()

	shutdown := make(chan struct{})
	go func() {
		s, ok := <-sig
		if !ok {
			return
		}
		zap.S().Infow("received signal, shutting down", "signal", s)

		cancelRouter()
		time.Sleep(drainGrace)

		actor.RequestLockout()
		awaitStopped(tracker, cfg.Server.StopTimeout+cfg.Server.StopStepTimeout)

		cancel()
		close(shutdown)
	}()

	err = eg.Wait()
	select {
	case <-shutdown:
		return errSignalShutdown
	default:
		return err
	}
}

// awaitStopped polls tracker until it reaches Stopped or timeout elapses,
// used by the signal handler to wait for the stop ladder (spec.md §7).
func awaitStopped(tracker *state.Tracker, timeout time.Duration) {
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for time.Now().Before(deadline) {
		if tracker.Server() == state.Stopped {
			return
		}
		<-ticker.C
	}
}

// pickFreePort binds host:0 just long enough to learn which port the OS
// handed out, then releases it for the soon-to-be-spawned backend to bind
// itself (spec.md §4.6: "set server-port to an internally chosen free
// port").
func pickFreePort(host string) (int, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return 0, err
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port, nil
}

func rewriteServerProperties(cfg config.Config, host string, port int) error {
	o := serverprops.Overrides{
		ServerPort: port,
		ServerIP:   host,
	}
	if cfg.Rcon.Enabled {
		o.RCONEnabled = true
		o.RCONPort = cfg.Rcon.Port
		o.RCONPass = cfg.Rcon.Password
	}
	return serverprops.Rewrite(cfg.Server.Directory, o)
}
