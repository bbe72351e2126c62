package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"unicode"

	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/ethdb/leveldb"
	"github.com/ethereum/go-ethereum/ethdb/pebble"
	"github.com/ethereum/go-ethereum/log"
	"github.com/gofrs/flock"
	"github.com/naoina/toml"
	"github.com/shardnode/txcore/core"
	"github.com/shardnode/txcore/core/state"
	"github.com/shardnode/txcore/core/vm"
	"github.com/shardnode/txcore/params"
	"github.com/urfave/cli/v2"
)

var dumpConfigCommand = &cli.Command{
	Action:      dumpConfig,
	Name:        "dumpconfig",
	Usage:       "Show configuration values",
	ArgsUsage:   "",
	Flags:       []cli.Flag{evmEndpointFlag, scillaEndpointFlag, stateAddrFlag},
	Description: `The dumpconfig command shows configuration values.`,
}

// These settings ensure that TOML keys use the same names as Go struct fields.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		var link string
		if unicode.IsUpper(rune(rt.Name()[0])) && rt.PkgPath() != "main" {
			link = fmt.Sprintf(", see https://pkg.go.dev/%s#%s for available fields", rt.PkgPath(), rt.Name())
		}
		return fmt.Errorf("field '%s' is not defined in %s%s", field, rt.String(), link)
	},
}

type nodeConfig struct {
	DataDir   string
	DBEngine  string // "leveldb" or "pebble"
	StateAddr string // state callback RPC listen address
	Cache     int    // database cache, megabytes
	Handles   int    // database open files
}

type txcoreConfig struct {
	Node   nodeConfig
	Chain  params.ChainConfig
	State  state.Config
	VM     vm.Config
	Engine core.Config
}

func loadConfig(file string, cfg *txcoreConfig) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg)
	// Add file name to errors that have a line number.
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(file + ", " + err.Error())
	}
	return err
}

// makeConfig loads the defaults, the config file and the flags, in that
// order.
func makeConfig(ctx *cli.Context) (txcoreConfig, error) {
	cfg := txcoreConfig{
		Node: nodeConfig{
			DataDir:   dataDirFlag.Value,
			DBEngine:  "leveldb",
			StateAddr: stateAddrFlag.Value,
			Cache:     64,
			Handles:   256,
		},
		Chain:  *params.DefaultChainConfig,
		State:  state.DefaultConfig,
		VM:     vm.DefaultConfig,
		Engine: core.DefaultConfig,
	}
	if file := ctx.String(configFileFlag.Name); file != "" {
		if err := loadConfig(file, &cfg); err != nil {
			return cfg, err
		}
	}
	if ctx.IsSet(dataDirFlag.Name) {
		cfg.Node.DataDir = ctx.String(dataDirFlag.Name)
	}
	if ctx.IsSet(dbEngineFlag.Name) {
		cfg.Node.DBEngine = ctx.String(dbEngineFlag.Name)
	}
	if ctx.IsSet(stateAddrFlag.Name) {
		cfg.Node.StateAddr = ctx.String(stateAddrFlag.Name)
	}
	if ctx.IsSet(evmEndpointFlag.Name) {
		cfg.VM.EVMEndpoint = ctx.String(evmEndpointFlag.Name)
	}
	if ctx.IsSet(scillaEndpointFlag.Name) {
		cfg.VM.ScillaEndpoint = ctx.String(scillaEndpointFlag.Name)
	}
	return cfg, nil
}

// dumpConfig is the dumpconfig command.
func dumpConfig(ctx *cli.Context) error {
	cfg, err := makeConfig(ctx)
	if err != nil {
		return err
	}
	out, err := tomlSettings.Marshal(&cfg)
	if err != nil {
		return err
	}
	dump := os.Stdout
	if ctx.NArg() > 0 {
		dump, err = os.OpenFile(ctx.Args().Get(0), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			return err
		}
		defer dump.Close()
	}
	_, err = dump.Write(out)
	return err
}

// openState locks the data directory and opens the state store in it. The
// returned function closes the database and releases the lock.
func openState(cfg *txcoreConfig, readonly bool) (*state.StateDB, func(), error) {
	if err := os.MkdirAll(cfg.Node.DataDir, 0700); err != nil {
		return nil, nil, err
	}
	lock := flock.New(filepath.Join(cfg.Node.DataDir, "LOCK"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, nil, err
	}
	if !locked {
		return nil, nil, fmt.Errorf("data directory %s is in use", cfg.Node.DataDir)
	}

	var (
		dir = filepath.Join(cfg.Node.DataDir, "state")
		db  ethdb.KeyValueStore
	)
	switch cfg.Node.DBEngine {
	case "pebble":
		db, err = pebble.New(dir, cfg.Node.Cache, cfg.Node.Handles, "txcore/db/state/", readonly, false)
	case "leveldb", "":
		db, err = leveldb.New(dir, cfg.Node.Cache, cfg.Node.Handles, "txcore/db/state/", readonly)
	default:
		err = fmt.Errorf("unknown database engine %q", cfg.Node.DBEngine)
	}
	if err != nil {
		lock.Unlock()
		return nil, nil, fmt.Errorf("could not open state database %s: %w", dir, err)
	}
	log.Info("Opened state database", "dir", dir, "engine", cfg.Node.DBEngine, "readonly", readonly)

	sdb, err := state.New(db, &cfg.State)
	if err != nil {
		db.Close()
		lock.Unlock()
		return nil, nil, err
	}
	return sdb, func() {
		if err := db.Close(); err != nil {
			log.Error("Failed to close state database", "err", err)
		}
		lock.Unlock()
	}, nil
}
