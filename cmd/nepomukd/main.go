// Package main provides the data management core's CLI entry point.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nepomuk-go/datacore/pkg/audit"
	"github.com/nepomuk-go/datacore/pkg/auth"
	"github.com/nepomuk-go/datacore/pkg/config"
	"github.com/nepomuk-go/datacore/pkg/datamanagement"
	"github.com/nepomuk-go/datacore/pkg/ontology"
	"github.com/nepomuk-go/datacore/pkg/store"
	"github.com/nepomuk-go/datacore/pkg/transport"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "nepomukd",
		Short: "Semantic metadata store for desktop-scale resource graphs",
		Long: `nepomukd is the data management core: a named-graph RDF quad
store with ontology-aware cardinality/type checking, resource
identification and merging, and a change watcher for applications that
index, search, or otherwise derive from the metadata it holds.`,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("nepomukd v%s (%s)\n", version, commit)
		},
	})

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the mutation API listener",
		Long:  "Load configuration, import any configured ontology files, and start the RPC listener.",
		RunE:  runServe,
	}
	serveCmd.Flags().Bool("rebuild-ontology", false, "Re-import every configured ontology file even if its modification time has not changed")
	rootCmd.AddCommand(serveCmd)

	ontologyCmd := &cobra.Command{
		Use:   "ontology",
		Short: "Ontology file management",
	}
	importCmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Import one N-Quads/.trig ontology file and rebuild the CPT",
		Args:  cobra.ExactArgs(1),
		RunE:  runOntologyImport,
	}
	ontologyCmd.AddCommand(importCmd)
	rootCmd.AddCommand(ontologyCmd)

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Validate configuration and store connectivity",
		RunE:  runCheck,
	}
	rootCmd.AddCommand(checkCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openStore constructs the configured store backend, creating the data
// directory first when the backend needs one.
func openStore(cfg *config.Config) (store.Engine, error) {
	switch cfg.Store.Backend {
	case "memory":
		return store.NewMemoryEngine(), nil
	case "badger":
		if err := os.MkdirAll(cfg.Store.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		return store.NewBadgerEngine(cfg.Store.DataDir)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	forceRebuild, _ := cmd.Flags().GetBool("rebuild-ontology")

	cfg := config.LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	fmt.Printf("starting nepomukd v%s\n", version)
	fmt.Printf("  %s\n", cfg.String())

	eng, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer eng.Close()

	model := datamanagement.New(eng, datamanagement.DefaultConfig())
	defer model.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Store.OperationTimeout)
	changed, err := ontology.New(eng).ImportAll(ctx, cfg.Ontology.ImportPaths, forceRebuild)
	cancel()
	if err != nil {
		return fmt.Errorf("importing ontology: %w", err)
	}

	// Always rebuild on startup: an empty CPT rejects every mutation, so a
	// fresh process must load whatever ontology the store already has
	// even when no import path changed this run.
	rebuildCtx, rebuildCancel := context.WithTimeout(context.Background(), cfg.Store.OperationTimeout)
	err = model.Rebuild(rebuildCtx)
	rebuildCancel()
	if err != nil {
		return fmt.Errorf("rebuilding CPT/registry: %w", err)
	}
	fmt.Printf("  ontology: %d import path(s), changed=%v\n", len(cfg.Ontology.ImportPaths), changed)

	if cfg.Audit.Enabled {
		logger, err := audit.NewLogger(audit.Config{
			Enabled:    cfg.Audit.Enabled,
			LogPath:    cfg.Audit.LogPath,
			SyncWrites: cfg.Audit.SyncWrites,
		})
		if err != nil {
			return fmt.Errorf("opening audit log: %w", err)
		}
		defer logger.Close()
		model.SetAuditLogger(logger)
		fmt.Printf("  audit log: %s\n", cfg.Audit.LogPath)
	}

	var authenticator *auth.Authenticator
	if cfg.Auth.Enabled {
		authenticator, err = auth.New(auth.Config{
			MinSecretLength: cfg.Auth.MinSecretLength,
			JWTSecret:       []byte(cfg.Auth.JWTSecret),
			TokenExpiry:     cfg.Auth.TokenExpiry,
			MaxFailedLogins: cfg.Auth.MaxFailedLogins,
			LockoutDuration: cfg.Auth.LockoutDuration,
		})
		if err != nil {
			return fmt.Errorf("creating authenticator: %w", err)
		}
		fmt.Println("  auth: enabled")
	} else {
		fmt.Println("  auth: disabled (every request is trusted as its claimed app)")
	}

	if !cfg.Transport.Enabled {
		fmt.Println("transport disabled; nothing left to do")
		return nil
	}

	host, portStr, err := net.SplitHostPort(cfg.Transport.ListenAddress)
	if err != nil {
		return fmt.Errorf("parsing listen address %q: %w", cfg.Transport.ListenAddress, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("parsing listen port %q: %w", portStr, err)
	}

	transportCfg := transport.DefaultConfig()
	transportCfg.Address = host
	transportCfg.Port = port
	transportCfg.ReadTimeout = cfg.Transport.ReadTimeout
	transportCfg.WriteTimeout = cfg.Transport.WriteTimeout

	srv, err := transport.New(model, authenticator, transportCfg)
	if err != nil {
		return fmt.Errorf("creating transport server: %w", err)
	}
	if err := srv.Start(); err != nil {
		return fmt.Errorf("starting transport server: %w", err)
	}
	fmt.Printf("listening on %s\n", srv.Addr())
	fmt.Println("press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	fmt.Println("shutting down...")
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := srv.Stop(stopCtx); err != nil {
		return fmt.Errorf("stopping transport server: %w", err)
	}
	fmt.Println("stopped")
	return nil
}

func runOntologyImport(cmd *cobra.Command, args []string) error {
	path := args[0]

	cfg := config.LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	eng, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer eng.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Store.OperationTimeout)
	defer cancel()

	changed, err := ontology.New(eng).Import(ctx, path, true)
	if err != nil {
		return fmt.Errorf("importing %s: %w", path, err)
	}

	model := datamanagement.New(eng, datamanagement.DefaultConfig())
	defer model.Close()
	if err := model.Rebuild(ctx); err != nil {
		return fmt.Errorf("rebuilding CPT/registry: %w", err)
	}

	fmt.Printf("imported %s (changed=%v), CPT and graph registry rebuilt\n", path, changed)
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg := config.LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	fmt.Println("configuration: ok")
	fmt.Printf("  %s\n", cfg.String())

	eng, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer eng.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Store.OperationTimeout)
	defer cancel()
	it, err := eng.ListStatements(ctx, store.Pattern{})
	if err != nil {
		return fmt.Errorf("store connectivity check failed: %w", err)
	}
	it.Close()
	fmt.Println("store connectivity: ok")
	return nil
}
