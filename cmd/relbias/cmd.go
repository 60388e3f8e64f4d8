package main

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"relbias/pkg/model"
	"relbias/pkg/relpos"
	"relbias/pkg/tensor"
)

// NewCLI builds the relbias root command.
func NewCLI() *cobra.Command {
	var verbose bool

	rootCmd := &cobra.Command{
		Use:          "relbias",
		Short:        "Relative position bias inspector",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(
		newIndexCmd(),
		newCoordsCmd(),
		newLookupCmd(),
		newBiasCmd(),
	)
	return rootCmd
}

func newIndexCmd() *cobra.Command {
	var window, keyWindow string
	var classToken bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Print the relative position index table of a window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := relpos.ParseWindow(window)
			if err != nil {
				return err
			}
			k, err := parseOptionalWindow(keyWindow)
			if err != nil {
				return err
			}

			table, err := relpos.RelativePositionIndex(q, k, classToken)
			if err != nil {
				return err
			}

			header := []string{"Q\\K"}
			for j := 0; j < table.Cols; j++ {
				header = append(header, strconv.Itoa(j))
			}
			rows := make([][]string, table.Rows)
			for i := range rows {
				row := []string{strconv.Itoa(i)}
				for j := 0; j < table.Cols; j++ {
					row = append(row, strconv.Itoa(table.At(i, j)))
				}
				rows[i] = row
			}
			renderTable(cmd.OutOrStdout(), header, rows)
			fmt.Fprintf(cmd.OutOrStdout(), "vocab size %d, %d distinct ids\n", table.VocabSize, table.Distinct())
			return nil
		},
	}
	cmd.Flags().StringVarP(&window, "window", "w", "3x3", "Query window, HxW")
	cmd.Flags().StringVar(&keyWindow, "key-window", "", "Key window, HxW (defaults to the query window)")
	cmd.Flags().BoolVar(&classToken, "class-token", false, "Add the three class-token classes")
	return cmd
}

func newCoordsCmd() *cobra.Command {
	var window, pretrained, mode string

	cmd := &cobra.Command{
		Use:   "coords",
		Short: "Print the log-scaled offset grid of a window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			win, err := relpos.ParseWindow(window)
			if err != nil {
				return err
			}
			pre, err := parseOptionalWindow(pretrained)
			if err != nil {
				return err
			}
			m, err := relpos.ParseMode(mode)
			if err != nil {
				return err
			}

			grid, err := relpos.LogCoords(win, pre, m)
			if err != nil {
				return err
			}

			var rows [][]string
			for r := 0; r < grid.Shape[0]; r++ {
				for c := 0; c < grid.Shape[1]; c++ {
					rows = append(rows, []string{
						strconv.Itoa(r - win.Height + 1),
						strconv.Itoa(c - win.Width + 1),
						formatFloat(grid.Get(r, c, 0)),
						formatFloat(grid.Get(r, c, 1)),
					})
				}
			}
			renderTable(cmd.OutOrStdout(), []string{"DROW", "DCOL", "Y", "X"}, rows)
			return nil
		},
	}
	cmd.Flags().StringVarP(&window, "window", "w", "3x3", "Window, HxW")
	cmd.Flags().StringVar(&pretrained, "pretrained", "", "Pretrained window used for swin normalization, HxW")
	cmd.Flags().StringVar(&mode, "mode", string(relpos.ModeCR), "Log-coordinate mode (swin or cr)")
	return cmd
}

func newLookupCmd() *cobra.Command {
	var length, maxRel int

	cmd := &cobra.Command{
		Use:   "lookup",
		Short: "Print the one-hot relative position lookup tensor of a sequence",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lookup, err := relpos.LookupTensor(length, maxRel)
			if err != nil {
				return err
			}

			header := []string{"I\\X"}
			for x := 0; x < length; x++ {
				header = append(header, strconv.Itoa(x))
			}
			rows := make([][]string, length)
			for i := range rows {
				row := []string{strconv.Itoa(i)}
				for x := 0; x < length; x++ {
					row = append(row, hotSlot(lookup, i, x))
				}
				rows[i] = row
			}
			renderTable(cmd.OutOrStdout(), header, rows)
			fmt.Fprintf(cmd.OutOrStdout(), "lookup shape %v\n", lookup.Shape)
			return nil
		},
	}
	cmd.Flags().IntVarP(&length, "length", "n", 4, "Sequence length")
	cmd.Flags().IntVar(&maxRel, "max-rel", -1, "Maximum relative position (negative means length-1)")
	return cmd
}

// hotSlot returns the slot set in lookup[i, x, :], or "-" when none is.
func hotSlot(lookup *tensor.Tensor, i, x int) string {
	for k := 0; k < lookup.Shape[2]; k++ {
		if lookup.Get(i, x, k) == 1 {
			return strconv.Itoa(k)
		}
	}
	return "-"
}

func newBiasCmd() *cobra.Command {
	var (
		window, pretrained, variant, mode string
		heads, prefix, hidden, layers     int
		showHead                          int
		seed                              int64
		half                              bool
	)

	cmd := &cobra.Command{
		Use:   "bias",
		Short: "Build bias heads and summarize their bias matrices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := model.DefaultBiasConfig()
			var err error
			if cfg.Window, err = relpos.ParseWindow(window); err != nil {
				return err
			}
			if cfg.PretrainedWindow, err = parseOptionalWindow(pretrained); err != nil {
				return err
			}
			cfg.Variant = model.Variant(variant)
			cfg.Mode = relpos.Mode(mode)
			cfg.NumHeads = heads
			cfg.PrefixTokens = prefix
			cfg.HiddenDim = hidden
			cfg.Seed = seed
			if err := cfg.Validate(); err != nil {
				return err
			}
			if layers <= 0 {
				return errors.Errorf("layers must be positive, got %d", layers)
			}
			if showHead >= cfg.NumHeads {
				return errors.Errorf("head %d out of range for %d heads", showHead, cfg.NumHeads)
			}

			biases, err := buildLayerBiases(cfg, layers)
			if err != nil {
				return err
			}

			header := []string{"LAYER", "SHAPE", "MIN", "MAX", "MEAN"}
			if half {
				header = append(header, "F16 MAX ERR")
			}
			rows := make([][]string, len(biases))
			for l, bias := range biases {
				lo, hi, mean := summarize(bias.Data)
				row := []string{strconv.Itoa(l), fmt.Sprint(bias.Shape), formatFloat(lo), formatFloat(hi), formatFloat(mean)}
				if half {
					diff, err := halfError(bias)
					if err != nil {
						return err
					}
					row = append(row, formatFloat(diff))
				}
				rows[l] = row
			}
			renderTable(cmd.OutOrStdout(), header, rows)

			if showHead >= 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "\nlayer 0, head %d\n", showHead)
				renderTable(cmd.OutOrStdout(), nil, headMatrix(biases[0], showHead))
			}
			return nil
		},
	}

	defaults := model.DefaultBiasConfig()
	cmd.Flags().StringVarP(&window, "window", "w", defaults.Window.String(), "Window, HxW")
	cmd.Flags().StringVar(&pretrained, "pretrained", "", "Pretrained window of the MLP variant, HxW")
	cmd.Flags().StringVar(&variant, "variant", string(defaults.Variant), "Bias variant (table or mlp)")
	cmd.Flags().StringVar(&mode, "mode", string(defaults.Mode), "Log-coordinate mode of the MLP variant (swin or cr)")
	cmd.Flags().IntVar(&heads, "heads", defaults.NumHeads, "Number of attention heads")
	cmd.Flags().IntVar(&prefix, "prefix", 0, "Number of prefix (class) tokens, 0 or 1")
	cmd.Flags().IntVar(&hidden, "hidden", defaults.HiddenDim, "Hidden width of the MLP variant")
	cmd.Flags().IntVar(&layers, "layers", 1, "Number of layers to build, sharing cached buffers")
	cmd.Flags().IntVar(&showHead, "show-head", -1, "Print the bias matrix of this head of layer 0")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Initialization seed; layer l uses seed+l")
	cmd.Flags().BoolVar(&half, "half", false, "Report the float16 round-trip error")
	return cmd
}

// buildLayerBiases builds one bias head per layer concurrently and returns
// their bias matrices. Heads share index tables and coordinate grids.
func buildLayerBiases(cfg model.BiasConfig, layers int) ([]*tensor.Tensor, error) {
	cache := relpos.NewCache()
	biases := make([]*tensor.Tensor, layers)

	var g errgroup.Group
	for l := range biases {
		l := l
		g.Go(func() error {
			layerCfg := cfg
			layerCfg.Seed = cfg.Seed + int64(l)
			head, err := model.NewRelPosBias(layerCfg, model.WithCache(cache))
			if err != nil {
				return errors.Wrapf(err, "layer %d", l)
			}
			bias, err := head.GetBias()
			if err != nil {
				return errors.Wrapf(err, "layer %d", l)
			}
			biases[l] = bias
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	slog.Debug("built bias heads", "layers", layers, "cached_buffers", cache.Len())
	return biases, nil
}

func summarize(data []float32) (lo, hi, mean float32) {
	lo, hi = float32(math.Inf(1)), float32(math.Inf(-1))
	var sum float64
	for _, v := range data {
		lo = min(lo, v)
		hi = max(hi, v)
		sum += float64(v)
	}
	return lo, hi, float32(sum / float64(len(data)))
}

// halfError returns the largest absolute difference between t and its
// float16 round trip.
func halfError(t *tensor.Tensor) (float32, error) {
	back, err := tensor.FromFloat16(t.Float16(), t.Shape)
	if err != nil {
		return 0, err
	}
	var worst float32
	for i, v := range t.Data {
		worst = max(worst, float32(math.Abs(float64(v-back.Data[i]))))
	}
	return worst, nil
}

// headMatrix formats bias[0, head] as table rows.
func headMatrix(bias *tensor.Tensor, head int) [][]string {
	n := bias.Shape[2]
	rows := make([][]string, n)
	for i := range rows {
		row := make([]string, n)
		for j := range row {
			row[j] = formatFloat(bias.Get(0, head, i, j))
		}
		rows[i] = row
	}
	return rows
}

func parseOptionalWindow(s string) (relpos.Window, error) {
	if s == "" {
		return relpos.Window{}, nil
	}
	return relpos.ParseWindow(s)
}

func formatFloat(v float32) string {
	return strconv.FormatFloat(float64(v), 'f', 4, 32)
}

func renderTable(w io.Writer, header []string, rows [][]string) {
	table := tablewriter.NewWriter(w)
	if header != nil {
		table.SetHeader(header)
	}
	table.SetHeaderAlignment(tablewriter.ALIGN_RIGHT)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("  ")
	table.AppendBulk(rows)
	table.Render()
}
