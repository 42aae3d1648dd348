package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"moodiary/pkg/handlers"
	"moodiary/pkg/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the diary page",
	Long:  "Serve the diary page, its JSON API and uploaded photos over HTTP.",
	RunE:  runServe,
}

var watchQuiet time.Duration

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "Listen address (default :8080)")
	serveCmd.Flags().Bool("watch", true, "Reload the diary when diary.json changes on disk")
	serveCmd.Flags().DurationVar(&watchQuiet, "watch-quiet", 200*time.Millisecond, "Quiet period before reloading after a file change")

	if err := globalViper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr")); err != nil {
		panic(err)
	}
	if err := globalViper.BindPFlag("storage.watch", serveCmd.Flags().Lookup("watch")); err != nil {
		panic(err)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	log := globalLogger

	// An unreadable file is reported on the page, not fatal at startup.
	if err := globalDiary.Refresh(); err != nil {
		log.Warnw("Diary could not be loaded", "path", globalEntries.Path(), "error", err)
	}

	router, err := handlers.NewRouter(handlers.RouterDeps{
		Diary:     globalDiary,
		Images:    globalImages,
		BackupDir: globalConfig.Storage.BackupDir,
		Logger:    log,
		Metrics:   globalMetrics,
	})
	if err != nil {
		return fmt.Errorf("failed to build router: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watchDone := make(chan struct{})
	if globalConfig.Storage.Watch {
		watcher, err := storage.NewWatcher(globalEntries, watchQuiet, log)
		if err != nil {
			return fmt.Errorf("failed to watch diary: %w", err)
		}
		watcher.OnReload = globalDiary.ReportReload
		watcher.OnError = globalDiary.ReportReloadError
		go func() {
			defer close(watchDone)
			if err := watcher.Run(ctx); err != nil {
				log.Errorw("Watcher stopped", "error", err)
			}
		}()
	} else {
		close(watchDone)
	}

	server := &http.Server{
		Addr:         globalConfig.Server.Addr,
		Handler:      router,
		ReadTimeout:  globalConfig.Server.ReadTimeout,
		WriteTimeout: globalConfig.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Infow("Server starting", "addr", server.Addr, "diary", globalEntries.Path(), "watch", globalConfig.Storage.Watch)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		stop()
		<-watchDone
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	<-watchDone
	return nil
}
