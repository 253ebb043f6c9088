package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ledgerengine/core"
	"ledgerengine/pkg/config"
)

func main() {
	rootCmd := &cobra.Command{Use: "engine"}
	rootCmd.AddCommand(manifestCmd())
	rootCmd.AddCommand(stateCmd())
	rootCmd.AddCommand(configCmd())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func manifestCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "manifest"}
	run := &cobra.Command{
		Use:   "run-demo",
		Short: "execute a built-in demo manifest against a fresh in-memory ledger",
		Run: func(cmd *cobra.Command, args []string) {
			costLimit, _ := cmd.Flags().GetInt64("cost-limit")
			receipt := runDemoManifest(costLimit)
			fmt.Printf("outcome: %s\n", receipt.Outcome)
			if receipt.Outcome == core.OutcomeAbort {
				fmt.Printf("reason: %s\n", receipt.Reason)
			}
			fmt.Printf("consumed cost units: %d\n", receipt.ConsumedCostUnits)
			for _, e := range receipt.Events {
				fmt.Printf("event: %s\n", e.Name)
			}
			fmt.Printf("new state root: %s\n", hex.EncodeToString(receipt.NewStateRoot[:]))
		},
	}
	run.Flags().Int64("cost-limit", 1_000_000, "cost unit budget for the demo transaction")
	cmd.AddCommand(run)
	return cmd
}

// runDemoManifest mints a fungible resource into a vault and transfers part
// of it to a second vault, the same S1-style scenario exercised in
// core/manifest_test.go, since manifest text parsing is out of scope for
// this engine and there is no file format to read a manifest from.
func runDemoManifest(costLimit int64) *core.Receipt {
	db := core.NewMemSubstateDB()
	tr := core.NewTrack(db)
	meter := core.NewCostUnitMeter(costLimit)
	k := core.NewKernel(tr, [32]byte{1}, 8, meter)
	ex := core.NewExecutor(k, tr, meter)

	resource := core.NewGlobalNodeId(core.EntityGlobalFungibleResource, core.AddressZero, "demo_xrd", []byte("engine-cli"))
	cap := core.DecimalFromInt64(1_000_000)
	if _, err := core.NewFungibleResourceManager(tr, resource, 18, &cap, false); err != nil {
		fmt.Fprintf(os.Stderr, "create resource manager: %v\n", err)
		os.Exit(1)
	}

	vaultA := core.NewInternalNodeId(core.EntityInternalVault, [32]byte{0xA}, 1)
	va := core.NewVault(tr, vaultA, resource)
	rm := &core.FungibleResourceManager{Address: resource, Divisibility: 18}
	funded, err := rm.Mint(tr, nil, core.DecimalFromInt64(1000))
	if err != nil {
		fmt.Fprintf(os.Stderr, "mint: %v\n", err)
		os.Exit(1)
	}
	if err := va.Deposit(tr, funded); err != nil {
		fmt.Fprintf(os.Stderr, "seed deposit: %v\n", err)
		os.Exit(1)
	}
	vaultB := core.NewInternalNodeId(core.EntityInternalVault, [32]byte{0xB}, 1)
	core.NewVault(tr, vaultB, resource)

	m := core.Manifest{Instructions: []core.Instruction{
		core.LockFeeInstr(vaultA, core.DecimalFromInt64(10)),
		core.RecallInstr(vaultA, core.DecimalFromInt64(123)),
		core.TakeAllFromWorktop(resource, "received"),
		core.DepositInstr(vaultB, "received"),
	}}
	return ex.Execute(m)
}

func stateCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "state"}
	root := &cobra.Command{
		Use:   "root [db-path]",
		Short: "open a disk substate database and print the node root of a new, empty hash tree (the database contents are not hashed)",
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) == 0 {
				fmt.Fprintln(os.Stderr, "usage: engine state root [db-path]")
				os.Exit(1)
			}
			cacheBytes, _ := cmd.Flags().GetInt64("cache-bytes")
			db, err := core.NewDiskSubstateDB(args[0], cacheBytes)
			if err != nil {
				fmt.Fprintf(os.Stderr, "open disk substate db: %v\n", err)
				os.Exit(1)
			}
			ht := core.NewHashTree()
			fmt.Printf("node root: %s\n", hex.EncodeToString(ht.NodeRoot()[:]))
			_ = db
		},
	}
	root.Flags().Int64("cache-bytes", 16<<20, "size bound in bytes for the disk substate db's LRU bookkeeping")
	cmd.AddCommand(root)
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config"}
	show := &cobra.Command{
		Use:   "show [env]",
		Short: "load and print the engine configuration for an environment",
		Run: func(cmd *cobra.Command, args []string) {
			env := ""
			if len(args) > 0 {
				env = args[0]
			}
			cfg, err := config.Load(env)
			if err != nil {
				fmt.Fprintf(os.Stderr, "load config: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("%+v\n", *cfg)
		},
	}
	cmd.AddCommand(show)
	return cmd
}
