package main

import (
	"fmt"
	"os"

	coreLogging "github.com/core-tools/hsu-core/pkg/logging"

	"github.com/core-tools/hsu-deployer/pkg/deployer"
	"github.com/core-tools/hsu-deployer/pkg/logging"

	flags "github.com/jessevdk/go-flags"
)

type flagOptions struct {
	Config      string `long:"config" short:"c" description:"path to the deployer configuration file" required:"true"`
	RunDuration int    `long:"run-duration" description:"stop after this many seconds, 0 runs until interrupted"`
	LogLevel    string `long:"log-level" description:"debug, info, warn or error; overrides the configuration file"`
}

func logPrefix(module string) string {
	return fmt.Sprintf("module: %s-server , ", module)
}

func main() {
	var opts flagOptions
	var argv []string = os.Args[1:]
	var parser = flags.NewParser(&opts, flags.HelpFlag)
	var err error
	_, err = parser.ParseArgs(argv)
	if err != nil {
		fmt.Printf("Command line flags parsing failed: %v", err)
		os.Exit(1)
	}

	logLevel := opts.LogLevel
	if logLevel == "" {
		logLevel = "info"
		if config, err := deployer.LoadConfigFromFile(opts.Config); err == nil {
			logLevel = config.Deployer.LogLevel
		}
	}

	logger, err := logging.NewZapLogger(logLevel)
	if err != nil {
		fmt.Printf("Failed to create logger: %v", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Infof("opts: %+v", opts)
	logger.Infof("Starting...")

	coreLogger := coreLogging.NewLogger(
		logPrefix("hsu-core"), coreLogging.LogFuncs{
			Debugf: logger.Debugf,
			Infof:  logger.Infof,
			Warnf:  logger.Warnf,
			Errorf: logger.Errorf,
		})
	deployerLogger := logging.NewLogger(
		logPrefix("hsu-deployer"), logging.LogFuncs{
			Debugf: logger.Debugf,
			Infof:  logger.Infof,
			Warnf:  logger.Warnf,
			Errorf: logger.Errorf,
		})

	if err := deployer.Run(opts.RunDuration, opts.Config, coreLogger, deployerLogger); err != nil {
		logger.Errorf("Deployer failed: %v", err)
		logger.Sync()
		os.Exit(1)
	}
}
