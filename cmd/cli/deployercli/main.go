package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	coreControl "github.com/core-tools/hsu-core/pkg/control"
	coreDomain "github.com/core-tools/hsu-core/pkg/domain"
	coreLogging "github.com/core-tools/hsu-core/pkg/logging"

	"github.com/core-tools/hsu-deployer/pkg/control"
	"github.com/core-tools/hsu-deployer/pkg/domain"
	"github.com/core-tools/hsu-deployer/pkg/logging"

	flags "github.com/jessevdk/go-flags"
	"github.com/olekukonko/tablewriter"
)

type flagOptions struct {
	Port     int    `long:"port" description:"control port of the deployer server" default:"50065"`
	Command  string `long:"command" description:"status, list, check, reload or undeploy" default:"status"`
	Name     string `long:"name" description:"application name or context path, e.g. /shop or ROOT"`
	LogLevel string `long:"log-level" description:"debug, info, warn or error" default:"warn"`
	Timeout  int    `long:"timeout" description:"request timeout in seconds" default:"30"`
}

func logPrefix(module string) string {
	return fmt.Sprintf("module: %s-client , ", module)
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

	logger, err := logging.NewZapLogger(opts.LogLevel)
	if err != nil {
		fmt.Printf("Failed to create logger: %v", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Debugf("opts: %+v", opts)

	if opts.Port <= 0 {
		fmt.Println("--port must point at a running deployer server")
		os.Exit(1)
	}

	switch opts.Command {
	case "status", "list":
	case "check", "reload", "undeploy":
		if opts.Name == "" {
			fmt.Printf("--name is required for the %s command\n", opts.Command)
			os.Exit(1)
		}
	default:
		fmt.Printf("Unknown command: %s\n", opts.Command)
		os.Exit(1)
	}

	coreLogger := coreLogging.NewLogger(
		logPrefix("hsu-core"), coreLogging.LogFuncs{
			Debugf: logger.Debugf,
			Infof:  logger.Infof,
			Warnf:  logger.Warnf,
			Errorf: logger.Errorf,
		})
	clientLogger := logging.NewLogger(
		logPrefix("hsu-deployer"), logging.LogFuncs{
			Debugf: logger.Debugf,
			Infof:  logger.Infof,
			Warnf:  logger.Warnf,
			Errorf: logger.Errorf,
		})

	coreConnectionOptions := coreControl.ConnectionOptions{
		AttachPort: opts.Port,
	}
	coreConnection, err := coreControl.NewConnection(coreConnectionOptions, coreLogger)
	if err != nil {
		logger.Errorf("Failed to create core connection: %v", err)
		os.Exit(1)
	}
	defer coreConnection.Shutdown()

	coreClientGateway := coreControl.NewGRPCClientGateway(coreConnection.GRPC(), coreLogger)
	gateway := control.NewGRPCClientGateway(coreConnection.GRPC(), clientLogger)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(opts.Timeout)*time.Second)
	defer cancel()

	retryPingOptions := coreDomain.RetryPingOptions{
		RetryAttempts: 10,
		RetryInterval: 1 * time.Second,
	}
	if err := coreDomain.RetryPing(ctx, coreClientGateway, retryPingOptions, coreLogger); err != nil {
		logger.Errorf("Deployer server is not answering: %v", err)
		os.Exit(1)
	}

	switch opts.Command {
	case "status":
		status, err := gateway.Status(ctx)
		if err != nil {
			logger.Errorf("Failed to get status: %v", err)
			os.Exit(1)
		}
		fmt.Println(status)
	case "list":
		apps, err := gateway.ListApplications(ctx)
		if err != nil {
			logger.Errorf("Failed to list applications: %v", err)
			os.Exit(1)
		}
		showApplications(apps)
	case "check":
		err = gateway.Check(ctx, opts.Name)
	case "reload":
		err = gateway.Reload(ctx, opts.Name)
	case "undeploy":
		err = gateway.Undeploy(ctx, opts.Name)
	}
	if err != nil {
		logger.Errorf("Command %s failed, app: %s, error: %v", opts.Command, opts.Name, err)
		os.Exit(1)
	}
	if opts.Command != "status" && opts.Command != "list" {
		fmt.Printf("%s: %s done\n", opts.Name, opts.Command)
	}
}

func showApplications(apps []domain.ApplicationInfo) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Name", "Version", "State", "Serviced", "Deployed At", "Redeploy", "Reload"})

	sort.Slice(apps, func(i, j int) bool { return apps[i].Name < apps[j].Name })
	for _, app := range apps {
		name := app.Name
		if name == "" {
			name = "/"
		}
		table.Append([]string{
			name,
			app.Version,
			app.State,
			strconv.FormatBool(app.Serviced),
			app.DeployedAt.Local().Format(time.RFC3339),
			strconv.Itoa(len(app.RedeployResources)),
			strconv.Itoa(len(app.ReloadResources)),
		})
	}

	fmt.Println()
	table.SetBorders(tablewriter.Border{Left: true, Top: false, Right: true, Bottom: false})
	table.SetCenterSeparator("|")
	table.Render()
	fmt.Println()
}
