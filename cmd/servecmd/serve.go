// Package servecmd implements the daemon entrypoint: it wires the task
// store, config controller, event router, and replication manager
// together and serves the control API until interrupted.
package servecmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/vcsreplica/engine/admin"
	"github.com/vcsreplica/engine/config"
	"github.com/vcsreplica/engine/controlapi"
	"github.com/vcsreplica/engine/pkgs/logger"
	"github.com/vcsreplica/engine/push"
	"github.com/vcsreplica/engine/replication"
	"github.com/vcsreplica/engine/router"
	"github.com/vcsreplica/engine/store"
)

// ServeCmd launches the replication daemon.
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the replication daemon",
	Run: func(cmd *cobra.Command, args []string) {
		run()
	},
}

func init() {
	ServeCmd.Flags().String("listen", "127.0.0.1:8089", "Control API listen address")
	ServeCmd.Flags().String("repos", "", "Root directory of local bare repositories (defaults to <home>/repos)")
	viper.BindPFlag("serve.listen", ServeCmd.Flags().Lookup("listen"))
	viper.BindPFlag("serve.repos", ServeCmd.Flags().Lookup("repos"))
}

func run() {
	log := logger.NewLogrus()
	home := viper.GetString("home")

	repoRoot := viper.GetString("serve.repos")
	if repoRoot == "" {
		repoRoot = filepath.Join(home, "repos")
	}

	st, err := store.Open(filepath.Join(home, "ref-updates"), log)
	if err != nil {
		log.Fatal("failed to open task store", "Err", err.Error())
	}

	worker := push.NewWorker(repoRoot, push.NoAuth{}, log)
	manager := replication.NewManager(st, worker, func(cfg *config.RemoteConfig) replication.AdminTransport {
		t, err := admin.New(cfg.AdminURL, nil, log)
		if err != nil {
			log.Error("failed to build admin transport", "Remote", cfg.Name, "Err", err.Error())
			return nil
		}
		return t
	}, log)

	loader := config.NewLoader(home)
	controller := config.NewController(loader, log, manager.IsReplaying, func(snap *config.Snapshot) error {
		return manager.Reload(snap)
	})
	if err := controller.Start(); err != nil {
		log.Fatal("failed to start config controller", "Err", err.Error())
	}
	defer controller.Stop()

	// The external event source (spec §6) is out of scope. events is
	// local to this function and nothing here sends on it, so Run only
	// waits until stop is closed; tasks already in the store are still
	// replayed by the manager.
	r := router.New(st, controller.Current, manager, log)
	events := make(chan router.RefUpdateEvent)
	stop := make(chan struct{})
	go r.Run(events, stop)
	defer close(stop)

	names := func() []string {
		var out []string
		for _, d := range controller.Current().Destinations {
			out = append(out, d.Name)
		}
		return out
	}

	apiServer := controlapi.New(manager, st, names, log)
	httpServer := &http.Server{Addr: viper.GetString("serve.listen"), Handler: apiServer}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("control API server stopped unexpectedly", "Err", err.Error())
		}
	}()

	waitForInterrupt()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	httpServer.Shutdown(ctx)
	manager.Stop()
}

func waitForInterrupt() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
}
