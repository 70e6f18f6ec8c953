package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"roomsplit/internal/backend"
	"roomsplit/internal/cli"
	"roomsplit/internal/config"
	"roomsplit/internal/core"
	"roomsplit/internal/log"
	"roomsplit/internal/services"
	"roomsplit/internal/settlement"
	"roomsplit/internal/store"
)

var errResetNotConfirmed = errors.New("refusing to delete every expense without --yes")

// app holds what every subcommand needs once the root command has
// loaded the configuration and opened the store.
type app struct {
	out        io.Writer
	errOut     io.Writer
	newFactory func(*log.Logger) backend.Factory

	cfg      *config.Config
	logger   *log.Logger
	store    store.ExpenseStore
	expenses *services.ExpenseService
	cleanup  backend.CleanupFunc
}

func run(args []string, out, errOut io.Writer) error {
	a := &app{
		out:    out,
		errOut: errOut,
		newFactory: func(l *log.Logger) backend.Factory {
			return backend.NewFactory(l)
		},
	}
	return a.run(args)
}

// run executes the command line in args and releases the backend
// afterwards, whether or not the subcommand succeeded.
func (a *app) run(args []string) error {
	root := a.rootCmd()
	root.SetArgs(args)
	err := root.Execute()
	if a.cleanup != nil {
		err = errors.Join(err, a.cleanup())
	}
	return err
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "roomsplitctl",
		Short:         "Inspect and maintain the roomsplit expense store",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := cli.Setup(log.ComponentCLI, a.errOut)
			if err != nil {
				return err
			}
			res, err := cli.OpenSQLite(cmd.Context(), cfg, a.newFactory(logger))
			if err != nil {
				return fmt.Errorf("open %s: %w", cfg.SQLiteDBPath, err)
			}

			opts := []services.ExpenseOption{
				services.WithExpenseLogger(logger),
				services.WithLocation(cfg.Location),
			}
			if res.Publisher != nil {
				opts = append(opts, services.WithPublisher(res.Publisher))
			}
			a.cfg, a.logger, a.store, a.cleanup = cfg, logger, res.Store, res.Cleanup
			a.expenses = services.NewExpenseService(res.Store, cfg.Roster, opts...)
			return nil
		},
	}
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	root.AddCommand(a.statsCmd(), a.expensesCmd(), a.resetCmd(), a.rosterCmd())
	return root
}

func (a *app) statsCmd() *cobra.Command {
	var month string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print totals and recommended transfers for a month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			at := time.Now().In(a.cfg.Location)
			if month != "" {
				w, err := settlement.ParseMonth(month, a.cfg.Location)
				if err != nil {
					return err
				}
				at = w.From
			}

			stats := services.NewStatisticsService(a.store, a.cfg.Roster, a.cfg.Location,
				services.WithStatisticsLogger(a.logger))
			st, err := stats.Month(cmd.Context(), at)
			if err != nil {
				return err
			}
			if asJSON {
				return a.writeJSON(statsJSON(st, a.cfg.Roster))
			}
			return printStats(a.out, st, a.cfg.Roster)
		},
	}
	cmd.Flags().StringVar(&month, "month", "", "month to report, YYYY-MM (default current month)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func (a *app) expensesCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "expenses",
		Short: "List every stored expense, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := a.expenses.List(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				rows := make([]expenseJSON, 0, len(records))
				for _, e := range records {
					rows = append(rows, newExpenseJSON(e))
				}
				return a.writeJSON(rows)
			}

			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "DATE\tPAYER\tAMOUNT\tITEM\tID")
			for _, e := range records {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					e.Date.In(a.cfg.Location).Format(time.DateOnly), e.Payer, e.Amount, e.Item, e.ID)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func (a *app) resetCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every stored expense",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errResetNotConfirmed
			}
			n, err := a.expenses.Reset(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "deleted %d expenses\n", n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}

func (a *app) rosterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "roster",
		Short: "Print the configured participants in split order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range a.cfg.Roster.Names() {
				fmt.Fprintln(a.out, name)
			}
			return nil
		},
	}
}

func (a *app) writeJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printStats(out io.Writer, st core.Statistics, roster core.Roster) error {
	fmt.Fprintf(out, "%s (%s to %s)\n", st.Label, st.From.Format(time.DateOnly), st.To.Format(time.DateOnly))
	fmt.Fprintf(out, "Total %s, average %s\n\n", st.Totals.Total, st.Settlement.Average.StringFixed(2))

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "PARTICIPANT\tSPENT\tBALANCE\t")
	for _, name := range roster.Names() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t\n", name, st.Totals.PerParticipant[name], st.Settlement.Balances[name])
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(out)
	if len(st.Settlement.Transfers) == 0 {
		fmt.Fprintln(out, "Nothing to settle")
		return nil
	}
	for _, t := range st.Settlement.Transfers {
		fmt.Fprintf(out, "%s pays %s %s\n", t.From, t.To, t.Amount)
	}
	return nil
}

type expenseJSON struct {
	ID        string     `json:"id"`
	Item      string     `json:"item"`
	Price     core.Money `json:"price"`
	Person    string     `json:"person"`
	Date      time.Time  `json:"date"`
	Note      string     `json:"note,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

func newExpenseJSON(e core.Expense) expenseJSON {
	return expenseJSON{
		ID:        e.ID,
		Item:      e.Item,
		Price:     e.Amount,
		Person:    e.Payer,
		Date:      e.Date,
		Note:      e.Note,
		CreatedAt: e.CreatedAt,
	}
}

type transferJSON struct {
	From   string     `json:"from"`
	To     string     `json:"to"`
	Amount core.Money `json:"amount"`
}

type statsOutput struct {
	Month        string                `json:"month"`
	From         string                `json:"from"`
	To           string                `json:"to"`
	Total        core.Money            `json:"total"`
	Average      json.Number           `json:"average"`
	PerPerson    map[string]core.Money `json:"perPerson"`
	Balances     map[string]core.Money `json:"balances"`
	Splits       []transferJSON        `json:"splits"`
	Participants []string              `json:"participants"`
}

func statsJSON(st core.Statistics, roster core.Roster) statsOutput {
	splits := make([]transferJSON, 0, len(st.Settlement.Transfers))
	for _, t := range st.Settlement.Transfers {
		splits = append(splits, transferJSON{From: t.From, To: t.To, Amount: t.Amount})
	}
	return statsOutput{
		Month:        st.Label,
		From:         st.From.Format(time.DateOnly),
		To:           st.To.Format(time.DateOnly),
		Total:        st.Totals.Total,
		Average:      json.Number(st.Settlement.Average.StringFixed(2)),
		PerPerson:    st.Totals.PerParticipant,
		Balances:     st.Settlement.Balances,
		Splits:       splits,
		Participants: roster.Names(),
	}
}
