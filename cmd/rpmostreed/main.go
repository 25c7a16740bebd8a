package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	bolt "go.etcd.io/bbolt"
	"google.golang.org/grpc"

	"github.com/ostreedev/rpmostreed-core/internal/config"
	"github.com/ostreedev/rpmostreed-core/internal/daemon"
	"github.com/ostreedev/rpmostreed-core/internal/diffcache"
	"github.com/ostreedev/rpmostreed-core/internal/httpapi"
	"github.com/ostreedev/rpmostreed-core/internal/ipc"
	"github.com/ostreedev/rpmostreed-core/internal/ostreelog"
	"github.com/ostreedev/rpmostreed-core/internal/registry"
	"github.com/ostreedev/rpmostreed-core/internal/sysroot"
	"github.com/ostreedev/rpmostreed-core/internal/txn"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "rpmostreed",
	Short:   "rpmostreed - transactional image-based system update daemon",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("rpmostreed version %s\nCommit: %s\n", Version, Commit))

	rootCmd.PersistentFlags().String("config", "/etc/rpmostreed/daemon.conf", "Path to the daemon's [Daemon] ini config")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(reloadCmd)
	rootCmd.AddCommand(statusCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json")
	ostreelog.Init(ostreelog.Config{
		Level:      ostreelog.Level(level),
		JSONOutput: jsonOut,
	})
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the daemon in the foreground",
	RunE:  runServe,
}

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Signal a running daemon to reload its config",
	RunE:  runReload,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query a running daemon's status over grpc",
	RunE:  runStatus,
}

func init() {
	serveCmd.Flags().String("grpc-addr", "127.0.0.1:9980", "Address for the root-object grpc service")
	serveCmd.Flags().String("readonly-grpc-addr", "", "Optional second grpc listener restricted to read-only methods")
	serveCmd.Flags().String("http-addr", "127.0.0.1:9981", "Address for the admin HTTP surface (/healthz, /metrics, /debug/status)")
	serveCmd.Flags().String("state-dir", "/var/lib/rpmostreed", "Directory for the bbolt-backed sysroot/diff caches and the daemon pidfile")
	serveCmd.Flags().String("pidfile", "", "Pidfile path (defaults to <state-dir>/rpmostreed.pid)")

	reloadCmd.Flags().String("pidfile", "", "Pidfile path (defaults to <state-dir>/rpmostreed.pid)")
	reloadCmd.Flags().String("state-dir", "/var/lib/rpmostreed", "Directory used to locate the default pidfile")

	statusCmd.Flags().String("grpc-addr", "127.0.0.1:9980", "Address of a running daemon's root-object grpc service")
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	grpcAddr, _ := cmd.Flags().GetString("grpc-addr")
	readonlyAddr, _ := cmd.Flags().GetString("readonly-grpc-addr")
	httpAddr, _ := cmd.Flags().GetString("http-addr")
	stateDir, _ := cmd.Flags().GetString("state-dir")
	pidfile, _ := cmd.Flags().GetString("pidfile")
	if pidfile == "" {
		pidfile = filepath.Join(stateDir, "rpmostreed.pid")
	}

	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}
	if err := writePidfile(pidfile); err != nil {
		return fmt.Errorf("writing pidfile: %w", err)
	}
	defer os.Remove(pidfile)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if v := os.Getenv("RPMOSTREE_DEBUG_DISABLE_DAEMON_IDLE_EXIT"); v != "" {
		cfg.DisableIdleExitForTest = true
	}

	cacheDB, err := bolt.Open(filepath.Join(stateDir, "sysroot.db"), 0o600, nil)
	if err != nil {
		return fmt.Errorf("opening sysroot cache: %w", err)
	}
	defer cacheDB.Close()

	diffDB, err := bolt.Open(filepath.Join(stateDir, "diffcache.db"), 0o600, nil)
	if err != nil {
		return fmt.Errorf("opening diff cache: %w", err)
	}
	defer diffDB.Close()

	view, err := sysroot.New("/ostree/repo", sysroot.NoopLoader{}, sysroot.StaticBootedRef(""), sysroot.WithCacheDB(cacheDB))
	if err != nil {
		return fmt.Errorf("constructing sysroot view: %w", err)
	}
	if err := view.Watch(); err != nil {
		ostreelog.Logger.Warn().Err(err).Msg("sysroot filesystem watch unavailable, relying on explicit Rescan")
	}
	defer view.Close()

	diffs, err := diffcache.New(diffDB, 256)
	if err != nil {
		return fmt.Errorf("constructing diff cache: %w", err)
	}

	clients := registry.New(registry.NoopResolver{})
	coordinator := txn.NewCoordinator()
	d := daemon.New(*cfg, clients, view, coordinator, daemon.NoopInitSystem{})
	d.Exit = func(code int) { os.Exit(code) }

	rootServer := ipc.NewServer(daemonStatus{d}, coordinator, clients, view, diffs, view, nil, nil)

	grpcServer := grpc.NewServer()
	ipc.RegisterRootServer(grpcServer, rootServer)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", grpcAddr, err)
	}
	go func() {
		ostreelog.Logger.Info().Str("addr", grpcAddr).Msg("grpc listener started")
		if err := grpcServer.Serve(lis); err != nil {
			ostreelog.Logger.Error().Err(err).Msg("grpc server exited")
		}
	}()
	defer grpcServer.GracefulStop()

	if readonlyAddr != "" {
		roServer := grpc.NewServer(grpc.UnaryInterceptor(ipc.ReadOnlyInterceptor()))
		ipc.RegisterRootServer(roServer, rootServer)
		roLis, err := net.Listen("tcp", readonlyAddr)
		if err != nil {
			return fmt.Errorf("listening on %s: %w", readonlyAddr, err)
		}
		go func() {
			ostreelog.Logger.Info().Str("addr", readonlyAddr).Msg("read-only grpc listener started")
			if err := roServer.Serve(roLis); err != nil {
				ostreelog.Logger.Error().Err(err).Msg("read-only grpc server exited")
			}
		}()
		defer roServer.GracefulStop()
	}

	endpoints := ipc.NewPrivateEndpointHandler(rootServer.Lookup)
	httpServer := &http.Server{Addr: httpAddr, Handler: httpapi.NewRouter(d, endpoints)}
	go func() {
		ostreelog.Logger.Info().Str("addr", httpAddr).Msg("admin http listener started")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			ostreelog.Logger.Error().Err(err).Msg("http server exited")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	go d.Run(ctx)

	for sig := range sigCh {
		switch sig {
		case syscall.SIGHUP:
			ostreelog.Logger.Info().Msg("reloading config")
			if err := d.ReloadConfig(configPath); err != nil {
				ostreelog.Logger.Error().Err(err).Msg("config reload failed")
			}
		case syscall.SIGTERM, syscall.SIGINT:
			ostreelog.Logger.Info().Msg("shutting down")
			cancel()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			_ = httpServer.Shutdown(shutdownCtx)
			shutdownCancel()
			return nil
		}
	}
	return nil
}

// daemonStatus adapts *daemon.Daemon to ipc.Status.
type daemonStatus struct{ d *daemon.Daemon }

func (s daemonStatus) Status() string               { return s.d.Status() }
func (s daemonStatus) AutomaticUpdatePolicy() string { return string(s.d.Config().AutomaticUpdatePolicy) }

func writePidfile(path string) error {
	return os.WriteFile(path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o644)
}

func runReload(cmd *cobra.Command, args []string) error {
	stateDir, _ := cmd.Flags().GetString("state-dir")
	pidfile, _ := cmd.Flags().GetString("pidfile")
	if pidfile == "" {
		pidfile = filepath.Join(stateDir, "rpmostreed.pid")
	}

	data, err := os.ReadFile(pidfile)
	if err != nil {
		return fmt.Errorf("reading pidfile %s: %w", pidfile, err)
	}
	var pid int
	if _, err := fmt.Sscanf(string(data), "%d", &pid); err != nil {
		return fmt.Errorf("parsing pidfile %s: %w", pidfile, err)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := proc.Signal(syscall.SIGHUP); err != nil {
		return fmt.Errorf("signaling pid %d: %w", pid, err)
	}
	fmt.Printf("Sent reload signal to pid %d\n", pid)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("grpc-addr")
	c, err := ipc.Dial(addr)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := c.Status(ctx)
	if err != nil {
		return fmt.Errorf("querying status: %w", err)
	}
	fmt.Printf("Status: %s\n", resp.Status)
	fmt.Printf("AutomaticUpdatePolicy: %s\n", resp.AutomaticUpdatePolicy)
	if resp.ActiveTransactionMethod != "" {
		fmt.Printf("ActiveTransaction: %s (from %s)\n", resp.ActiveTransactionMethod, resp.ActiveTransactionSender)
		fmt.Printf("ActiveTransactionPath: %s\n", resp.ActiveTransactionPath)
	}
	return nil
}
