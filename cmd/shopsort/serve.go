package main

import (
	"fmt"
	"log/slog"

	"github.com/Veraticus/shopsort/internal/events"
	"github.com/Veraticus/shopsort/internal/server"
	"github.com/Veraticus/shopsort/internal/storage"
	"github.com/Veraticus/shopsort/internal/task"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the pipeline over HTTP",
		Long: `Serve starts the HTTP API: product ingestion, taxonomy generation,
background classification with polling, and a server-sent-events stream for
sync progress. Sessions are persisted to SQLite when storage.path is set.`,
		RunE: runServe,
	}

	cmd.Flags().String("addr", "", "listen address (default :8080)")
	cmd.Flags().String("db", "", "SQLite session database path (default: in-memory sessions)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	llmClient, err := createLLMClient()
	if err != nil {
		return err
	}

	sessions, err := createSessionStore(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if err := sessions.Close(); err != nil {
			slog.Warn("failed to close session store", "error", err)
		}
	}()

	broker := events.NewBroker()
	defer broker.Close()

	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = viper.GetString("server.addr")
	}

	srv, err := server.New(server.Config{Addr: addr}, server.Deps{
		Sessions: sessions,
		Tasks:    task.NewRegistry(),
		Broker:   broker,
		LLM:      llmClient,
	})
	if err != nil {
		return err
	}
	return srv.Start(cmd.Context())
}

func createSessionStore(cmd *cobra.Command) (storage.SessionStore, error) {
	dbPath, _ := cmd.Flags().GetString("db")
	if dbPath == "" {
		dbPath = viper.GetString("storage.path")
	}
	if dbPath == "" {
		slog.Info("no storage path configured, sessions are in-memory only")
		return storage.NewMemoryStore(), nil
	}

	store, err := storage.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}
	slog.Info("sessions persisted to SQLite", "path", dbPath)
	return store, nil
}
