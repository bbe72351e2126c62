// txcore executes transactions against a local state store through external
// EVM and Scilla interpreters.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"
	"go.uber.org/automaxprocs/maxprocs"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	configFileFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file",
	}
	dataDirFlag = &cli.StringFlag{
		Name:  "datadir",
		Usage: "Data directory for the state database",
		Value: "txcore-data",
	}
	dbEngineFlag = &cli.StringFlag{
		Name:  "db.engine",
		Usage: "Backing database implementation to use ('leveldb' or 'pebble')",
		Value: "leveldb",
	}
	metricsFlag = &cli.BoolFlag{
		Name:  "metrics",
		Usage: "Enable metrics collection and print them on exit",
	}
	verbosityFlag = &cli.IntFlag{
		Name:  "verbosity",
		Usage: "Logging verbosity: 0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=detail",
		Value: 3,
	}
	logFileFlag = &cli.StringFlag{
		Name:  "log.file",
		Usage: "Write logs as JSON to a rotated file instead of the terminal",
	}
	logMaxSizeFlag = &cli.IntFlag{
		Name:  "log.maxsize",
		Usage: "Maximum size in megabytes of the log file before it gets rotated",
		Value: 100,
	}
	logMaxBackupsFlag = &cli.IntFlag{
		Name:  "log.maxbackups",
		Usage: "Maximum number of rotated log files to retain",
		Value: 10,
	}
	evmEndpointFlag = &cli.StringFlag{
		Name:  "evm.endpoint",
		Usage: "RPC endpoint of the EVM interpreter",
	}
	scillaEndpointFlag = &cli.StringFlag{
		Name:  "scilla.endpoint",
		Usage: "RPC endpoint of the Scilla interpreter",
	}
	traceFlag = &cli.BoolFlag{
		Name:  "trace",
		Usage: "Log every balance and nonce change, including rolled back ones",
	}
	stateAddrFlag = &cli.StringFlag{
		Name:  "state.addr",
		Usage: "Listen address of the state callback RPC served to the interpreters",
		Value: "127.0.0.1:4201",
	}
)

var logOutput io.Closer

func newApp() *cli.App {
	app := &cli.App{
		Name:  filepath.Base(os.Args[0]),
		Usage: "transaction execution core",
		Flags: []cli.Flag{
			configFileFlag,
			dataDirFlag,
			dbEngineFlag,
			metricsFlag,
			verbosityFlag,
			logFileFlag,
			logMaxSizeFlag,
			logMaxBackupsFlag,
		},
		Commands: []*cli.Command{
			initCommand,
			runCommand,
			accountCommand,
			dumpConfigCommand,
		},
		Before: setupLogging,
		After: func(ctx *cli.Context) error {
			if ctx.Bool(metricsFlag.Name) {
				metrics.WriteOnce(metrics.DefaultRegistry, os.Stderr)
			}
			if logOutput != nil {
				return logOutput.Close()
			}
			return nil
		},
	}
	return app
}

func setupLogging(ctx *cli.Context) error {
	var glogger *log.GlogHandler
	if file := ctx.String(logFileFlag.Name); file != "" {
		out := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    ctx.Int(logMaxSizeFlag.Name),
			MaxBackups: ctx.Int(logMaxBackupsFlag.Name),
			Compress:   true,
		}
		logOutput = out
		glogger = log.NewGlogHandler(log.JSONHandler(out))
	} else {
		useColor := (isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())) && os.Getenv("TERM") != "dumb"
		glogger = log.NewGlogHandler(log.NewTerminalHandler(colorable.NewColorableStderr(), useColor))
	}
	glogger.Verbosity(log.FromLegacyLevel(ctx.Int(verbosityFlag.Name)))
	log.SetDefault(log.NewLogger(glogger))

	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
		log.Debug(fmt.Sprintf(format, args...))
	})); err != nil {
		log.Warn("Failed to set GOMAXPROCS", "err", err)
	}
	return nil
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
