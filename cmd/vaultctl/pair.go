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
	"fmt"
	"time"

	"github.com/spf13/cobra"

	vaultsync "github.com/vaultsync/vaultsync"
)

var pairTimeout time.Duration

var pairCmd = &cobra.Command{
	Use:   "pair",
	Short: "Add-device pairing over the sync relay",
}

var pairInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Start pairing as the initiator and print the bundle to share out-of-band",
	Example: `  vaultctl pair init
  # copy the printed bundle to the new device, then run:
  # vaultctl pair respond <bundle>`,
	RunE: runPairInit,
}

var pairRespondCmd = &cobra.Command{
	Use:     "respond <bundle>",
	Short:   "Complete pairing as the responder, joining the initiator's vault",
	Example: `  vaultctl pair respond eyJkZXZpY2VJZCI6...`,
	Args:    cobra.ExactArgs(1),
	RunE:    runPairRespond,
}

var pairCancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Abort an in-progress add-device flow",
	RunE:  runPairCancel,
}

func init() {
	rootCmd.AddCommand(pairCmd)
	pairCmd.AddCommand(pairInitCmd)
	pairCmd.AddCommand(pairRespondCmd)
	pairCmd.AddCommand(pairCancelCmd)

	pairCmd.PersistentFlags().DurationVar(&pairTimeout, "timeout", 2*time.Minute, "how long to wait for the pairing flow to settle")
}

func runPairInit(cmd *cobra.Command, args []string) error {
	return withVault(func(v *vaultsync.Vault) error {
		if err := v.InitiateAddDevice(); err != nil {
			return fmt.Errorf("failed to initiate pairing: %w", err)
		}
		return waitForPairingOutcome(v, func(ev vaultsync.Event) (bool, error) {
			switch ev.Kind {
			case vaultsync.EventPairingBundleReady:
				bundle, _ := ev.Payload.(string)
				fmt.Println(bundle)
				fmt.Println("Waiting for the responding device to complete pairing...")
			case vaultsync.EventConnectToExistingVaultFinished:
				fmt.Println("Device paired successfully")
				return true, nil
			}
			return false, nil
		})
	})
}

func runPairRespond(cmd *cobra.Command, args []string) error {
	bundle := args[0]
	return withVault(func(v *vaultsync.Vault) error {
		if err := v.RespondToAddDevice(bundle); err != nil {
			return fmt.Errorf("failed to respond to pairing: %w", err)
		}
		return waitForPairingOutcome(v, func(ev vaultsync.Event) (bool, error) {
			if ev.Kind == vaultsync.EventConnectToExistingVaultFinished {
				fmt.Println("Paired successfully")
				return true, nil
			}
			return false, nil
		})
	})
}

func runPairCancel(cmd *cobra.Command, args []string) error {
	return withVault(func(v *vaultsync.Vault) error {
		if err := v.CancelAddDevice(); err != nil {
			return fmt.Errorf("failed to cancel pairing: %w", err)
		}
		fmt.Println("Pairing cancelled")
		return nil
	})
}

// waitForPairingOutcome drains Events() until onEvent reports success, a
// cancellation event arrives, or pairTimeout elapses.
func waitForPairingOutcome(v *vaultsync.Vault, onEvent func(vaultsync.Event) (bool, error)) error {
	deadline := time.After(pairTimeout)
	for {
		select {
		case ev := <-v.Events():
			if ev.Kind == vaultsync.EventPairingCancelled {
				return fmt.Errorf("pairing was cancelled")
			}
			done, err := onEvent(ev)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		case <-deadline:
			return fmt.Errorf("timed out waiting for pairing to complete")
		}
	}
}
