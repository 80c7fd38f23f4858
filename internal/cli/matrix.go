package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/arloliu/go-eol/sequencer"
)

// NewMatrixCommand creates the matrix command group.
func NewMatrixCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "matrix",
		Short: "Inspect test matrix plans",
	}
	cmd.AddCommand(newMatrixValidateCommand(opts))

	return cmd
}

type matrixView struct {
	Valid         bool      `json:"valid"`
	Error         string    `json:"error,omitempty"`
	Temperatures  []float64 `json:"temperatures"`
	Positions     []float64 `json:"positions"`
	Repeats       int       `json:"repeats"`
	Points        int       `json:"points"`
	Criteria      string    `json:"criteria"`
	StopOnFailure bool      `json:"stop_on_failure"`
	Keys          []string  `json:"keys,omitempty"`
}

func newMatrixValidateCommand(opts *RootOptions) *cobra.Command {
	var showKeys bool

	cmd := &cobra.Command{
		Use:   "validate [station.toml]",
		Short: "Validate the [matrix] table of a station file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st := opts.station
			if len(args) == 1 {
				var err error
				if st, err = LoadStation(args[0], opts.logger); err != nil {
					return err
				}
			}
			if st == nil {
				return errors.New("no station file: pass a path or use --station")
			}
			if !st.HasMatrix {
				return errors.New("station file has no [matrix] table")
			}

			m := st.Matrix
			v := matrixView{
				Valid:         true,
				Temperatures:  m.Temperatures,
				Positions:     m.Positions,
				Repeats:       m.Repeats,
				Points:        m.Size(),
				Criteria:      m.Criteria.String(),
				StopOnFailure: m.StopOnFailure,
			}
			verr := m.Validate()
			if verr != nil {
				v.Valid = false
				v.Error = verr.Error()
			} else if showKeys {
				for _, k := range m.Keys() {
					v.Keys = append(v.Keys, k.String())
				}
			}

			if err := opts.printer(cmd).print(v, func(w io.Writer) { printMatrix(w, v, m) }); err != nil {
				return err
			}

			return verr
		},
	}
	cmd.Flags().BoolVar(&showKeys, "keys", false, "list every point in execution order")

	return cmd
}

func printMatrix(w io.Writer, v matrixView, m sequencer.Matrix) {
	if !v.Valid {
		fmt.Fprintf(w, "invalid matrix:\n%s\n", v.Error)
		return
	}

	fmt.Fprintf(w, "temperatures %v\npositions    %v\nrepeats      %d\npoints       %d\ncriteria     %s\n",
		v.Temperatures, v.Positions, v.Repeats, v.Points, v.Criteria)
	if m.StopOnFailure {
		fmt.Fprintln(w, "stops at the first failing point")
	}
	for _, k := range v.Keys {
		fmt.Fprintln(w, k)
	}
}
