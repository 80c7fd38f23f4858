package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/arloliu/go-eol/frame"
	"github.com/arloliu/go-eol/mcu"
	"github.com/arloliu/go-eol/transport"
)

// withController opens the MCU, runs fn and closes it again.
func (opts *RootOptions) withController(cmd *cobra.Command, fn func(ctx context.Context, ctl *mcu.Controller) error) error {
	tcfg, err := opts.transportConfig(cmd)
	if err != nil {
		return err
	}
	ccfg, err := opts.clientConfig()
	if err != nil {
		return err
	}

	client, err := mcu.NewClient(cmd.Context(), transport.New(tcfg), ccfg)
	if err != nil {
		return err
	}
	if err := client.Open(); err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	return fn(cmd.Context(), mcu.NewController(client))
}

func parseFloatArgs(args []string) ([]float64, error) {
	out := make([]float64, len(args))
	for i, a := range args {
		v, err := strconv.ParseFloat(strings.TrimSpace(a), 64)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i+1, err)
		}
		out[i] = v
	}

	return out, nil
}

// NewBootCommand creates the boot command.
func NewBootCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "boot",
		Short: "Wait for the MCU boot-complete signal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withController(cmd, func(ctx context.Context, ctl *mcu.Controller) error {
				start := time.Now()
				if err := ctl.WaitBootComplete(ctx); err != nil {
					return err
				}
				elapsed := time.Since(start)

				return opts.printer(cmd).print(map[string]any{"booted": true, "elapsed_ms": elapsed.Milliseconds()},
					func(w io.Writer) { fmt.Fprintf(w, "boot complete after %v\n", elapsed.Round(time.Millisecond)) })
			})
		},
	}
}

// NewTempCommand creates the temp command.
func NewTempCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "temp",
		Short: "Read the current maximum and minimum temperatures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withController(cmd, func(ctx context.Context, ctl *mcu.Controller) error {
				r, err := ctl.GetTemperature(ctx)
				if err != nil {
					return err
				}

				return opts.printer(cmd).print(map[string]float64{"max": r.Max, "min": r.Min},
					func(w io.Writer) { fmt.Fprintf(w, "max %.1f°C  min %.1f°C\n", r.Max, r.Min) })
			})
		},
	}
}

// NewSetTempCommand creates the set-temp command.
func NewSetTempCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set-temp <celsius>",
		Short: "Set the operating temperature and wait until it is reached",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseFloatArgs(args)
			if err != nil {
				return err
			}

			return opts.withController(cmd, func(ctx context.Context, ctl *mcu.Controller) error {
				if err := ctl.SetOperatingTemperature(ctx, v[0]); err != nil {
					return err
				}

				return printTransitions(opts.printer(cmd), ctl.Transitions())
			})
		},
	}
}

// NewHeatCommand creates the heat command.
func NewHeatCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "heat <operating-celsius> <standby-celsius> <hold>",
		Short: "Start standby heating, e.g. heat 52 35 10s",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			temps, err := parseFloatArgs(args[:2])
			if err != nil {
				return err
			}
			hold, err := time.ParseDuration(args[2])
			if err != nil {
				return fmt.Errorf("hold time: %w", err)
			}

			return opts.withController(cmd, func(ctx context.Context, ctl *mcu.Controller) error {
				if err := ctl.StartStandbyHeating(ctx, temps[0], temps[1], hold); err != nil {
					return err
				}

				return printTransitions(opts.printer(cmd), ctl.Transitions())
			})
		},
	}
}

// NewCoolCommand creates the cool command.
func NewCoolCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cool [celsius]",
		Short: "Cool to a temperature, or back to standby without an argument",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseFloatArgs(args)
			if err != nil {
				return err
			}

			return opts.withController(cmd, func(ctx context.Context, ctl *mcu.Controller) error {
				if len(v) == 1 {
					err = ctl.SetCoolingTemperature(ctx, v[0])
				} else {
					err = ctl.StartStandbyCooling(ctx)
				}
				if err != nil {
					return err
				}

				return printTransitions(opts.printer(cmd), ctl.Transitions())
			})
		},
	}
}

// NewSendCommand creates the send command.
func NewSendCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "send <command> [args...]",
		Short: "Send any command of the table, e.g. send set_fan_speed 5",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ok := mcu.ParseCommand(args[0])
			if !ok {
				return fmt.Errorf("unknown command %q, see 'eolctl commands'", args[0])
			}
			v, err := parseFloatArgs(args[1:])
			if err != nil {
				return err
			}

			return opts.withController(cmd, func(ctx context.Context, ctl *mcu.Controller) error {
				reply, err := ctl.Client().Exchange(ctx, c, v...)
				if reply != nil {
					printReply(opts.printer(cmd), reply)
				}

				return err
			})
		},
	}
}

type replyView struct {
	Command      string `json:"command"`
	Ack          string `json:"ack,omitempty"`
	Completion   string `json:"completion,omitempty"`
	AckMs        int64  `json:"ack_ms"`
	CompletionMs int64  `json:"completion_ms,omitempty"`
}

func printReply(p printer, reply *mcu.Reply) {
	v := replyView{
		Command:      reply.Command.String(),
		AckMs:        reply.AckLatency.Milliseconds(),
		CompletionMs: reply.CompletionLatency.Milliseconds(),
	}
	if reply.Ack != nil {
		v.Ack = reply.Ack.String()
	}
	if reply.Completion != nil {
		v.Completion = reply.Completion.String()
	}

	_ = p.print(v, func(w io.Writer) {
		fmt.Fprintf(w, "%s\n  ack        %s (%v)\n", v.Command, v.Ack, reply.AckLatency.Round(time.Millisecond))
		if reply.Completion != nil {
			fmt.Fprintf(w, "  completion %s (%v)\n", v.Completion, reply.CompletionLatency.Round(time.Millisecond))
		}
	})
}

type transitionView struct {
	Operation  string  `json:"operation"`
	From       float64 `json:"from"`
	To         float64 `json:"to"`
	DurationMs int64   `json:"duration_ms"`
	Confirmed  bool    `json:"confirmed"`
}

func printTransitions(p printer, transitions []mcu.Transition) error {
	views := make([]transitionView, len(transitions))
	for i, t := range transitions {
		views[i] = transitionView{
			Operation:  t.Operation,
			From:       t.From,
			To:         t.To,
			DurationMs: t.Duration.Milliseconds(),
			Confirmed:  t.Confirmed,
		}
	}

	return p.print(views, func(w io.Writer) {
		for _, t := range transitions {
			fmt.Fprintf(w, "%s: %s in %v\n", t.Operation, t, t.Duration.Round(time.Millisecond))
		}
	})
}

// NewCommandsCommand creates the commands command.
func NewCommandsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "commands",
		Short: "List the MCU command table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ccfg, err := opts.clientConfig()
			if err != nil {
				return err
			}

			type row struct {
				Name       string   `json:"name"`
				Code       string   `json:"code"`
				Ack        string   `json:"ack"`
				Fields     []string `json:"fields,omitempty"`
				Completion string   `json:"completion,omitempty"`
				Timeout    string   `json:"timeout,omitempty"`
			}
			var rows []row
			for _, c := range mcu.Commands() {
				d, err := ccfg.Descriptor(c)
				if err != nil {
					return err
				}
				r := row{Name: d.Name, Code: frame.Hex([]byte{d.Code}), Ack: frame.Hex([]byte{d.AckCode})}
				for _, f := range d.Fields {
					r.Fields = append(r.Fields, f.Name)
				}
				if d.HasCompletion() {
					r.Completion = frame.Hex([]byte{d.Completion.Code})
					r.Timeout = d.Completion.Timeout.String()
				}
				rows = append(rows, r)
			}

			return opts.printer(cmd).print(rows, func(w io.Writer) {
				for _, r := range rows {
					fmt.Fprintf(w, "%-26s code=%s ack=%s", r.Name, r.Code, r.Ack)
					if r.Completion != "" {
						fmt.Fprintf(w, " completion=%s/%s", r.Completion, r.Timeout)
					}
					if len(r.Fields) > 0 {
						fmt.Fprintf(w, " args=%s", strings.Join(r.Fields, ","))
					}
					fmt.Fprintln(w)
				}
			})
		},
	}
}

// NewPortsCommand creates the ports command.
func NewPortsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial ports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := transport.ListPorts()
			if err != nil {
				return err
			}

			return opts.printer(cmd).print(ports, func(w io.Writer) {
				if len(ports) == 0 {
					fmt.Fprintln(w, "no serial ports found")
				}
				for _, p := range ports {
					if p.IsUSB {
						fmt.Fprintf(w, "%s\tUSB %s:%s %s %s\n", p.Name, p.VID, p.PID, p.Product, p.SerialNumber)
					} else {
						fmt.Fprintln(w, p.Name)
					}
				}
			})
		},
	}
}
