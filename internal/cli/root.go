// Package cli implements the eolctl bench tool.
package cli

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/arloliu/go-eol/logger"
	"github.com/arloliu/go-eol/mcu"
	"github.com/arloliu/go-eol/transport"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Station  string
	Port     string
	BaudRate int
	Verbose  bool
	Format   string // "json" | "text"

	logger  logger.Logger
	station *Station
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command of eolctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "eolctl",
		Short: "EOL force-test station bench tool",
		Long: `eolctl talks to the temperature-control MCU of an EOL force-test station
over a serial port or a tcp:// serial bridge, and validates test matrix plans.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}

			level := logger.WarnLevel
			if opts.Verbose {
				level = logger.DebugLevel
			}
			opts.logger = logger.NewSlogWriter(cmd.ErrOrStderr(), level, false)
			logger.SetDefault(opts.logger)

			if opts.Station != "" {
				st, err := LoadStation(opts.Station, opts.logger)
				if err != nil {
					return err
				}
				opts.station = st
			}

			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.Station, "station", "s", "", "station TOML file")
	cmd.PersistentFlags().StringVarP(&opts.Port, "port", "p", "", "serial port or tcp://host:port bridge")
	cmd.PersistentFlags().IntVar(&opts.BaudRate, "baud", transport.DefaultBaudRate, "serial baud rate")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output with frame traces")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewPortsCommand(opts))
	cmd.AddCommand(NewCommandsCommand(opts))
	cmd.AddCommand(NewBootCommand(opts))
	cmd.AddCommand(NewTempCommand(opts))
	cmd.AddCommand(NewSetTempCommand(opts))
	cmd.AddCommand(NewHeatCommand(opts))
	cmd.AddCommand(NewCoolCommand(opts))
	cmd.AddCommand(NewSendCommand(opts))
	cmd.AddCommand(NewMatrixCommand(opts))

	return cmd
}

// transportConfig merges the station file with the command line flags.
func (opts *RootOptions) transportConfig(cmd *cobra.Command) (*transport.Config, error) {
	port := strings.TrimSpace(opts.Port)
	var topts []transport.Option
	if opts.station != nil {
		if port == "" {
			port = opts.station.Port
		}
		topts = append(topts, opts.station.Transport...)
	}
	if port == "" {
		return nil, fmt.Errorf("no port: use --port or a station file with serial.port")
	}
	if opts.station == nil || cmd.Flags().Changed("baud") {
		topts = append(topts, transport.WithBaudRate(opts.BaudRate))
	}
	topts = append(topts, transport.WithLogger(opts.logger))

	return transport.NewConfig(port, topts...)
}

func (opts *RootOptions) clientConfig() (*mcu.Config, error) {
	var mopts []mcu.Option
	if opts.station != nil {
		mopts = append(mopts, opts.station.MCU...)
	}
	mopts = append(mopts, mcu.WithLogger(opts.logger))

	return mcu.NewConfig(mopts...)
}

func (opts *RootOptions) printer(cmd *cobra.Command) printer {
	return printer{format: opts.Format, w: cmd.OutOrStdout()}
}
