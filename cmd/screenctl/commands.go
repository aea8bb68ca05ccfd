package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"ScreenRadar/pkg/app"
	"ScreenRadar/pkg/config"
	"ScreenRadar/pkg/criteria"
	"ScreenRadar/pkg/database"
	"ScreenRadar/pkg/logger"
	"ScreenRadar/pkg/model"
	"ScreenRadar/pkg/screener"
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "screenctl",
		Short:         "ScreenRadar - stock screening watchlists",
		Long:          `screenctl runs screens against the screening service and manages the saved watchlists in the local store.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newCompileCmd())
	rootCmd.AddCommand(newFieldsCmd())
	rootCmd.AddCommand(newScreenCmd())
	rootCmd.AddCommand(newUserCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newEventsCmd())

	rootCmd.PersistentFlags().String("config", "", "Configuration file path")

	return rootCmd
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = config.GetDefaultConfigPath()
	}
	return config.LoadConfig(path)
}

// openApp builds the full service graph. Callers must Close it.
func openApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	log := logger.New(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, Output: cmd.ErrOrStderr()})
	return app.New(cfg, log)
}

// parseCriteria reads both query flags into a validated WatchCriteria.
func parseCriteria(fundamental, technical string) (model.WatchCriteria, error) {
	var wc model.WatchCriteria
	var err error
	if wc.Fundamental, err = criteria.Parse(criteria.Query(fundamental)); err != nil {
		return wc, err
	}
	if wc.Technical, err = criteria.Parse(criteria.Query(technical)); err != nil {
		return wc, err
	}
	if err := wc.Fundamental.Validate(criteria.FamilyFundamental); err != nil {
		return wc, err
	}
	if err := wc.Technical.Validate(criteria.FamilyTechnical); err != nil {
		return wc, err
	}
	return wc, nil
}

func addCriteriaFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("fundamental", "f", "", `Fundamental criteria, e.g. "pe_ratio<15,sector==Technology"`)
	cmd.Flags().StringP("technical", "t", "", `Technical criteria, e.g. "rsi<30"`)
}

func criteriaFromFlags(cmd *cobra.Command) (model.WatchCriteria, error) {
	fundamental, _ := cmd.Flags().GetString("fundamental")
	technical, _ := cmd.Flags().GetString("technical")
	return parseCriteria(fundamental, technical)
}

// newCompileCmd validates criteria offline and prints the routed queries
func newCompileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Validate criteria and show the compiled queries and endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			wc, err := criteriaFromFlags(cmd)
			if err != nil {
				return err
			}
			fundamental, technical := wc.Compile()
			endpoint, err := criteria.Route(fundamental, technical)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "endpoint:    %s\n", endpoint)
			fmt.Fprintf(out, "fundamental: %s\n", fundamental)
			fmt.Fprintf(out, "technical:   %s\n", technical)
			return nil
		},
	}
	addCriteriaFlags(cmd)
	return cmd
}

func newFieldsCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "fields [fundamental|technical]",
		Short:     "List the filter fields of a family",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{string(criteria.FamilyFundamental), string(criteria.FamilyTechnical)},
		RunE: func(cmd *cobra.Command, args []string) error {
			families := []criteria.Family{criteria.FamilyFundamental, criteria.FamilyTechnical}
			if len(args) == 1 {
				fam := criteria.Family(args[0])
				if fam != criteria.FamilyFundamental && fam != criteria.FamilyTechnical {
					return fmt.Errorf("unknown family %q", args[0])
				}
				families = []criteria.Family{fam}
			}

			var rows [][]string
			for _, fam := range families {
				for _, f := range criteria.Fields(fam) {
					var opts []string
					if options, ok := criteria.Options(f.Name); ok {
						for _, o := range options {
							opts = append(opts, o.Value)
						}
					}
					rows = append(rows, []string{string(fam), f.Name, f.Label, strings.Join(opts, ", ")})
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Family", "Field", "Label", "Options"}, rows))
			return nil
		},
	}
}

func newScreenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "screen",
		Short: "Run a one-off screen against an index",
		Long: `Run a one-off screen against the screening service.
Example: screenctl screen --index sp500 -f "pe_ratio<15" -t "rsi<30"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			wc, err := criteriaFromFlags(cmd)
			if err != nil {
				return err
			}
			index, _ := cmd.Flags().GetString("index")
			limit, _ := cmd.Flags().GetInt("limit")
			reload, _ := cmd.Flags().GetBool("reload")
			if !model.Index(index).Valid() {
				return fmt.Errorf("unsupported index %q", index)
			}

			log := logger.New(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, Output: cmd.ErrOrStderr()})
			client := screener.NewClient(screener.Config{BaseURL: cfg.Screener.BaseURL, Timeout: cfg.Screener.Timeout}, log)

			fundamental, technical := wc.Compile()
			res, err := client.Screen(cmd.Context(), screener.Request{
				Index:       model.Index(index),
				Fundamental: fundamental,
				Technical:   technical,
				Limit:       limit,
				Reload:      reload,
				Period:      cfg.Screener.Period,
				Interval:    cfg.Screener.Interval,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("%d matches in %s (%s)", res.Count, res.Index, res.Endpoint)))
			fmt.Fprintln(out, renderStocks(res.Stocks))
			return nil
		},
	}
	addCriteriaFlags(cmd)
	cmd.Flags().String("index", string(model.IndexSP500), "Index to screen: sp500, nasdaq100 or dow30")
	cmd.Flags().Int("limit", 50, "Maximum number of matches")
	cmd.Flags().Bool("reload", false, "Ask the service to refresh its cached data")
	return cmd
}

func newUserCmd() *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "Local account management",
	}

	add := &cobra.Command{
		Use:   "add",
		Short: "Register a local user",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			username, _ := cmd.Flags().GetString("username")
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			user, err := a.Store.Users().Add(cmd.Context(), database.NewUser{
				Username: username,
				Email:    email,
				Password: password,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created user %s (%s)\n", user.Username, user.ID)
			return nil
		},
	}
	add.Flags().String("username", "", "Username")
	add.Flags().String("email", "", "Email address")
	add.Flags().String("password", "", "Password")
	add.MarkFlagRequired("username")
	add.MarkFlagRequired("email")
	add.MarkFlagRequired("password")

	userCmd.AddCommand(add)
	return userCmd
}

// resolveUser accepts a user id or a username.
func resolveUser(ctx context.Context, a *app.App, ref string) (*model.User, error) {
	if u, err := a.Store.Users().GetByID(ctx, ref); err == nil {
		return u, nil
	}
	u, err := a.Store.Users().FindByUsernameOrEmail(ctx, ref, ref)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("user %q: %w", ref, database.ErrNotFound)
	}
	return u, nil
}

func newWatchCmd() *cobra.Command {
	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Saved watchlist management",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List the watchlists of a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ref, _ := cmd.Flags().GetString("user")
			user, err := resolveUser(cmd.Context(), a, ref)
			if err != nil {
				return err
			}
			watches, err := a.Store.Watchlists().ByUser(cmd.Context(), user.ID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderWatchlists(watches))
			return nil
		},
	}
	list.Flags().String("user", "demo", "User id or username")

	add := &cobra.Command{
		Use:   "add NAME",
		Short: "Save a new watchlist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wc, err := criteriaFromFlags(cmd)
			if err != nil {
				return err
			}
			if wc.Empty() {
				return criteria.ErrMissingCriteria
			}
			index, _ := cmd.Flags().GetString("index")
			if !model.Index(index).Valid() {
				return fmt.Errorf("unsupported index %q", index)
			}
			frequency, _ := cmd.Flags().GetString("frequency")
			if !model.AlertFrequency(frequency).Valid() {
				return fmt.Errorf("unsupported alert frequency %q", frequency)
			}
			emailAlerts, _ := cmd.Flags().GetBool("email-alerts")

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ref, _ := cmd.Flags().GetString("user")
			user, err := resolveUser(cmd.Context(), a, ref)
			if err != nil {
				return err
			}
			w := &model.Watchlist{
				UserID:         user.ID,
				Name:           args[0],
				Index:          model.Index(index),
				EmailAlerts:    emailAlerts,
				AlertFrequency: model.AlertFrequency(frequency),
				IsActive:       true,
			}
			w.SetCriteria(wc)
			saved, err := a.Store.Watchlists().Add(cmd.Context(), w)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved watchlist %s (%s)\n", saved.Name, saved.ID)
			return nil
		},
	}
	addCriteriaFlags(add)
	add.Flags().String("user", "demo", "User id or username")
	add.Flags().String("index", string(model.IndexSP500), "Index to screen: sp500, nasdaq100 or dow30")
	add.Flags().String("frequency", string(model.AlertDaily), "Alert frequency: immediate, daily or weekly")
	add.Flags().Bool("email-alerts", false, "Email the owner when matches appear")

	check := &cobra.Command{
		Use:   "check [ID]",
		Short: "Re-evaluate one watchlist, or every active one when no id is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			out := cmd.OutOrStdout()

			if len(args) == 0 {
				sum, err := a.Monitor.CheckAll(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "checked %d, failed %d, alerted %d\n", sum.Checked, sum.Failed, sum.Alerted)
				return nil
			}

			w, err := a.Store.Watchlists().Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			updated, ev, err := a.Monitor.Check(cmd.Context(), w)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("%s: %d matches", updated.Name, ev.Count)))
			if len(ev.Added) > 0 {
				fmt.Fprintln(out, addedStyle.Render("+ "+strings.Join(ev.Added, " ")))
			}
			if len(ev.Removed) > 0 {
				fmt.Fprintln(out, removedStyle.Render("- "+strings.Join(ev.Removed, " ")))
			}
			fmt.Fprintln(out, renderStocks(updated.MatchList()))
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a watchlist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.Store.Watchlists().Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted watchlist %s\n", args[0])
			return nil
		},
	}

	watchCmd.AddCommand(list, add, check, del)
	return watchCmd
}

// newEventsCmd tails match events from JetStream until interrupted
func newEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Follow watchlist match events published on NATS",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.NATS == nil {
				return fmt.Errorf("nats is disabled or unreachable (nats.enabled=%t, url=%s)", a.Config.NATS.Enabled, a.Config.NATS.URL)
			}

			consumer, _ := cmd.Flags().GetString("consumer")
			out := cmd.OutOrStdout()
			err = a.NATS.SubscribeMatches(consumer, func(ev model.MatchEvent) error {
				fmt.Fprintf(out, "%s %s [%s] %d matches, +%v -%v\n",
					ev.CheckedAt.Format("2006-01-02 15:04:05"), ev.Name, ev.WatchlistID, ev.Count, ev.Added, ev.Removed)
				return nil
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().String("consumer", "screenctl", "Durable consumer name")
	return cmd
}
