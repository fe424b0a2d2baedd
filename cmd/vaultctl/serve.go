// Copyright (C) 2025 vaultsync contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	vaultsync "github.com/vaultsync/vaultsync"
	"github.com/vaultsync/vaultsync/health"
	"github.com/vaultsync/vaultsync/internal/logger"
	"github.com/vaultsync/vaultsync/internal/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Keep the vault unlocked, connected to the relay, and expose health/metrics endpoints",
	Long: `serve unlocks the vault once and keeps it running as a background
process: connected to the sync relay (if configured), draining its event
stream into the log, and serving /healthz and /metrics for an operator
or orchestrator to poll. It runs until interrupted.`,
	Example: `  vaultctl serve`,
	RunE:    runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	password, err := readPassword("Vault passphrase: ")
	if err != nil {
		return err
	}

	v, err := openVault(password)
	if err != nil {
		return fmt.Errorf("failed to unlock vault: %w", err)
	}
	defer v.Lock()

	checker := health.NewHealthChecker(5 * time.Second)
	checker.RegisterCheck("vault_unlocked", health.VaultUnlockedHealthCheck(func() bool { return true }))
	checker.RegisterCheck("sync_relay", health.TransportConnectedHealthCheck(v.Connected))
	checker.RegisterCheck("storage", health.StorageHealthCheck(func(ctx context.Context) error {
		_, err := os.Stat(appCfg.Storage.Path)
		return err
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go drainEvents(ctx, v)

	mux := http.NewServeMux()
	if appCfg.Health.Enabled {
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			systemHealth := checker.GetSystemHealth(r.Context())
			w.Header().Set("Content-Type", "application/json")
			if systemHealth.Status != health.StatusHealthy {
				w.WriteHeader(http.StatusServiceUnavailable)
			}
			_ = json.NewEncoder(w).Encode(systemHealth)
		})
	}
	if appCfg.Metrics.Enabled {
		mux.Handle("/metrics", metrics.Handler())
	}

	addr := appCfg.Health.Addr
	if !appCfg.Health.Enabled {
		addr = appCfg.Metrics.Addr
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("serving health/metrics endpoints", logger.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		return fmt.Errorf("health/metrics server failed: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}

// drainEvents logs every event a running vault emits, since nothing else
// is consuming Events() in a long-lived serve process.
func drainEvents(ctx context.Context, v *vaultsync.Vault) {
	for {
		select {
		case ev := <-v.Events():
			switch ev.Kind {
			case vaultsync.EventLog:
				if payload, ok := ev.Payload.(vaultsync.LogPayload); ok {
					logger.Warn(payload.Message, logger.String("severity", string(payload.Severity)))
					continue
				}
			}
			logger.Info("vault event", logger.String("kind", string(ev.Kind)))
		case <-ctx.Done():
			return
		}
	}
}
