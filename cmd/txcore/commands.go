package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
	"github.com/olekukonko/tablewriter"
	"github.com/shardnode/txcore/core"
	"github.com/shardnode/txcore/core/state"
	"github.com/shardnode/txcore/core/types"
	"github.com/shardnode/txcore/core/vm"
	"github.com/shardnode/txcore/tracing"
	"github.com/urfave/cli/v2"
)

var (
	initCommand = &cli.Command{
		Action:    initGenesis,
		Name:      "init",
		Usage:     "Bootstrap the state database from a genesis allocation",
		ArgsUsage: "<genesisPath>",
		Description: `
The init command writes the accounts of a JSON genesis allocation into an
empty state database. This is a destructive action and changes the state
root the next blocks are processed on.`,
	}
	runCommand = &cli.Command{
		Action:    runBlock,
		Name:      "run",
		Usage:     "Execute a block of transactions against the state database",
		ArgsUsage: "<blockPath>",
		Flags:     []cli.Flag{evmEndpointFlag, scillaEndpointFlag, stateAddrFlag, traceFlag},
		Description: `
The run command executes every transaction of a JSON block through the
configured interpreters, commits the state and prints the receipts. The
state callback RPC is served while the block runs.`,
	}
	accountCommand = &cli.Command{
		Action:    showAccounts,
		Name:      "account",
		Usage:     "Print accounts of the state database",
		ArgsUsage: "<address> [<address>...]",
	}
)

func readJSON(path string, v interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON in %s: %w", path, err)
	}
	return nil
}

// initGenesis is the init command.
func initGenesis(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return errors.New("need genesis file as the only argument")
	}
	var alloc state.GenesisAlloc
	if err := readJSON(ctx.Args().First(), &alloc); err != nil {
		return err
	}
	cfg, err := makeConfig(ctx)
	if err != nil {
		return err
	}
	sdb, closeDB, err := openState(&cfg, false)
	if err != nil {
		return err
	}
	defer closeDB()

	root, err := sdb.Genesis(alloc)
	if err != nil {
		return fmt.Errorf("failed to write genesis state: %w", err)
	}
	log.Info("Successfully wrote genesis state", "accounts", len(alloc), "root", root)
	return nil
}

type txOutput struct {
	Hash    common.Hash    `json:"hash"`
	Status  string         `json:"status"`
	Receipt *types.Receipt `json:"receipt,omitempty"`
}

type blockOutput struct {
	Number  uint64      `json:"number"`
	Root    common.Hash `json:"root"`
	GasUsed uint64      `json:"gasUsed"`
	Txs     []txOutput  `json:"transactions"`
}

// runBlock is the run command.
func runBlock(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return errors.New("need block file as the only argument")
	}
	var block types.Block
	if err := readJSON(ctx.Args().First(), &block); err != nil {
		return err
	}
	if block.Header == nil {
		return errors.New("block has no header")
	}
	cfg, err := makeConfig(ctx)
	if err != nil {
		return err
	}
	sdb, closeDB, err := openState(&cfg, false)
	if err != nil {
		return err
	}
	defer closeDB()

	if ctx.Bool(traceFlag.Name) {
		sdb.SetHooks(&tracing.Hooks{
			OnBalanceChange: func(addr common.Address, prev, new *uint256.Int, reason tracing.BalanceChangeReason) {
				log.Info("Balance changed", "addr", addr, "prev", prev, "new", new, "reason", reason)
			},
			OnNonceChange: func(addr common.Address, prev, new uint64, reason tracing.NonceChangeReason) {
				log.Info("Nonce changed", "addr", addr, "prev", prev, "new", new, "reason", reason)
			},
		})
	}

	var backends []vm.Backend
	for kind, endpoint := range map[vm.Kind]string{vm.KindEVM: cfg.VM.EVMEndpoint, vm.KindScilla: cfg.VM.ScillaEndpoint} {
		if endpoint == "" {
			log.Warn("No interpreter configured", "kind", kind)
			continue
		}
		b := vm.NewRPCBackend(kind, endpoint)
		defer b.Close()
		backends = append(backends, b)
	}
	engine, err := core.NewTxExecutor(&cfg.Chain, sdb, vm.NewBackends(backends...), &cfg.VM, &cfg.Engine)
	if err != nil {
		return err
	}
	defer engine.Close()

	srv, err := vm.NewStateServer(engine.Sessions())
	if err != nil {
		return err
	}
	defer srv.Stop()
	listener, err := net.Listen("tcp", cfg.Node.StateAddr)
	if err != nil {
		return fmt.Errorf("could not listen for state callbacks: %w", err)
	}
	httpSrv := &http.Server{Handler: srv, ReadHeaderTimeout: 5 * time.Second}
	go httpSrv.Serve(listener)
	defer httpSrv.Close()
	log.Info("State callback RPC started", "addr", listener.Addr())

	sigctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	res, err := core.NewStateProcessor(sdb, engine).Process(sigctx, &block)
	if err != nil {
		return err
	}

	out := blockOutput{Number: block.Number(), Root: res.Root, GasUsed: res.GasUsed}
	for i, tx := range block.Transactions {
		out.Txs = append(out.Txs, txOutput{Hash: tx.Hash(), Status: res.Statuses[i].String(), Receipt: res.Receipts[i]})
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// showAccounts is the account command.
func showAccounts(ctx *cli.Context) error {
	if ctx.NArg() == 0 {
		return errors.New("need at least one address")
	}
	cfg, err := makeConfig(ctx)
	if err != nil {
		return err
	}
	sdb, closeDB, err := openState(&cfg, true)
	if err != nil {
		return err
	}
	defer closeDB()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Address", "Balance (Qa)", "Nonce", "Kind", "Code hash"})
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, arg := range ctx.Args().Slice() {
		if !common.IsHexAddress(arg) {
			return fmt.Errorf("invalid address %q", arg)
		}
		addr := common.HexToAddress(arg)
		acc := sdb.GetAccount(addr)
		if acc == nil {
			table.Append([]string{addr.Hex(), "-", "-", "missing", "-"})
			continue
		}
		kind := "account"
		if acc.IsContract() {
			kind = vm.KindForCode(acc.Code).String() + " contract"
		}
		table.Append([]string{addr.Hex(), acc.Balance.String(), strconv.FormatUint(acc.Nonce, 10), kind, acc.CodeHash.Hex()})
	}
	table.Render()
	return nil
}
