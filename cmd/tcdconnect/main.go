package main

import (
	"context"
	"io"
	"os"
	"regexp"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"dev.hon.one/tcdconnect/common"
	"dev.hon.one/tcdconnect/connect"
	"dev.hon.one/tcdconnect/core"
	"dev.hon.one/tcdconnect/db"
	"dev.hon.one/tcdconnect/metrics"
)

type connectorFactory func(config common.Config) connect.Connector

func newSSHConnector(config common.Config) connect.Connector {
	return connect.NewSSHConnector(config)
}

var negativeIndexRegex = regexp.MustCompile(`^-[0-9]+$`)

func main() {
	os.Exit(execute(os.Stdout, newSSHConnector, os.Args[1:]))
}

// Parse the arguments, run and return the exit status.
func execute(stdout io.Writer, newConnector connectorFactory, args []string) int {
	command, exitCode := newRootCommand(stdout, newConnector)
	command.SetArgs(separatePositionals(args))
	if err := command.Execute(); err != nil {
		log.WithError(err).Errorf("Invalid arguments, see %v --help", common.AppName)
		return core.ExitFailure
	}
	return *exitCode
}

// Flags are only accepted before the device index, everything after it is positional.
// A negative index would still parse as a shorthand flag, so "--" is inserted ahead of it.
func separatePositionals(args []string) []string {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--":
			return args
		case arg == "--config" || arg == "--home":
			i++ // Skip the value
		case negativeIndexRegex.MatchString(arg):
			separated := make([]string, 0, len(args)+1)
			separated = append(separated, args[:i]...)
			separated = append(separated, "--")
			return append(separated, args[i:]...)
		case strings.HasPrefix(arg, "-"):
		default:
			return args
		}
	}
	return args
}

func newRootCommand(stdout io.Writer, newConnector connectorFactory) (*cobra.Command, *int) {
	exitCode := core.ExitOK
	debug := false
	configPath := ""
	homeDir := ""

	command := &cobra.Command{
		Use:           common.AppName + " <device-index> <login> <password> <host-ip>",
		Short:         "Connect to a scanned network device and record the session",
		Long:          `Connects to the device at the given position of the last network scan (~/.tcd/scan.json) and appends the session, including the password used, to ~/.tcd/connected.json. Connection diagnostics are appended to ~/.tcd/connect.log. Exits with status 404 if no device has that index.`,
		Args:          cobra.ExactArgs(4),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if debug {
				log.SetLevel(log.TraceLevel)
				log.Debug("Debug mode enabled")
			}
			log.WithFields(log.Fields{
				"version": common.AppVersion,
			}).Debugf("Starting %v", common.AppName)

			config, err := common.LoadConfig(configPath, homeDir)
			if err != nil {
				log.WithError(err).Error("Failed to load config")
				exitCode = core.ExitFailure
				return nil
			}

			exitCode = run(cmd.Context(), config, newConnector(config), stdout, core.Args{
				DeviceIndex: args[0],
				Login:       args[1],
				Password:    args[2],
				HostIP:      args[3],
			})
			return nil
		},
	}
	command.SetOut(stdout)
	command.Flags().SetInterspersed(false)
	command.Flags().BoolVar(&debug, "debug", debug, "Show debug messages.")
	command.Flags().StringVar(&configPath, "config", configPath, "Config file path.")
	command.Flags().StringVar(&homeDir, "home", homeDir, "Home directory containing the data directory (default: the user's home).")

	return command, &exitCode
}

func run(ctx context.Context, config common.Config, connector connect.Connector, stdout io.Writer, args core.Args) int {
	if ctx == nil {
		ctx = context.Background()
	}
	pipeline := core.NewPipeline(config, connector, stdout)
	result, err := pipeline.Run(ctx, args)

	if result.Attempted {
		recordAttempt(ctx, config, pipeline.Paths, result, err == nil)
	}
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"device_index": args.DeviceIndex,
		}).Error("Connection failed")
	}
	return core.Report(stdout, result, err)
}

// Failures to record an attempt are only warned about, they never change the outcome.
func recordAttempt(ctx context.Context, config common.Config, paths common.Paths, result core.Result, success bool) {
	entry := common.ConnectAttemptEntry{
		Time:        result.StartTime,
		DeviceIndex: result.DeviceIndex,
		Device:      result.DeviceAddress,
		Duration:    result.Duration,
		Success:     success,
	}

	if paths.MetricsTextfile != "" {
		attempt := metrics.Attempt{Entry: entry, RegistrySize: result.RegistrySize}
		if err := metrics.WriteTextfile(paths.MetricsTextfile, attempt); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"path": paths.MetricsTextfile,
			}).Warn("Failed to write metrics textfile")
		}
	}

	client := db.NewClient(config)
	defer client.Close()
	if err := client.StoreConnectAttempt(ctx, entry); err != nil {
		log.WithError(err).Warn("Failed to store connect attempt")
	}
}
