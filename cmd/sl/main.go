package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"slotline/internal/booking"
	"slotline/internal/config"
	"slotline/internal/db"
	"slotline/internal/migrate"
	"slotline/internal/notify"
	"slotline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "sl",
	Short: "Slotline CLI",
	Long: `Slotline coordinates interview slot bookings for a recruitment campaign.
Concepts:
- Workspace: your .slotline directory holding the reservation database; the grid and webhooks live in slotline.yml.
- Grid: the fixed set of daily interview times every date shares.
- Reservation: one application holding one slot; booking again moves it, cancelling frees it.
- Event log: diary of every booking change, view with 'sl log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("SLOTLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(bookCmd())
	rootCmd.AddCommand(cancelCmd())
	rootCmd.AddCommand(completeCmd())
	rootCmd.AddCommand(slotsCmd())
	rootCmd.AddCommand(calendarCmd())
	rootCmd.AddCommand(reservationsCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

func bookCmd() *cobra.Command {
	var date, slot, app, name, job string
	cmd := &cobra.Command{
		Use:   "book",
		Short: "Book a slot for an application",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCoordinator(cmd.Context(), func(ctx context.Context, coord *booking.Coordinator) error {
				r, err := coord.Book(ctx, booking.BookOptions{
					Date:          date,
					Time:          slot,
					ApplicationID: app,
					CandidateName: name,
					JobTitle:      job,
					ActorID:       viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(r)
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "interview date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&slot, "time", "", "slot time (HH:MM)")
	cmd.Flags().StringVar(&app, "application", "", "application id")
	cmd.Flags().StringVar(&name, "candidate", "", "candidate name")
	cmd.Flags().StringVar(&job, "job", "", "job title")
	_ = cmd.MarkFlagRequired("date")
	_ = cmd.MarkFlagRequired("time")
	_ = cmd.MarkFlagRequired("application")
	return cmd
}

func cancelCmd() *cobra.Command {
	var app string
	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel an application's reservation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCoordinator(cmd.Context(), func(ctx context.Context, coord *booking.Coordinator) error {
				r, err := coord.Cancel(ctx, app, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if r == nil {
					fmt.Printf("application %s has no scheduled reservation\n", app)
					return nil
				}
				return printJSONOrTable(r)
			})
		},
	}
	cmd.Flags().StringVar(&app, "application", "", "application id")
	_ = cmd.MarkFlagRequired("application")
	return cmd
}

func completeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "complete <reservation-id>",
		Short: "Mark an interview as held",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCoordinator(cmd.Context(), func(ctx context.Context, coord *booking.Coordinator) error {
				r, err := coord.Complete(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(r)
			})
		},
	}
	return cmd
}

func slotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slots <date>",
		Short: "Show a day's availability",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCoordinator(cmd.Context(), func(ctx context.Context, coord *booking.Coordinator) error {
				slots, err := coord.Availability(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(slots)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Time", "Status", "Application", "Candidate", "Job"})
				for _, s := range slots {
					status := "free"
					if !s.Available {
						status = "booked"
					}
					tw.AppendRow(table.Row{s.Time, status, s.ApplicationID, s.CandidateName, s.JobTitle})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func calendarCmd() *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Booking load per day",
		RunE: func(cmd *cobra.Command, args []string) error {
			if from == "" || to == "" {
				cfg, err := loadCampaignConfig()
				if err != nil {
					return err
				}
				if cfg.Campaign.Window.Start == "" {
					return fmt.Errorf("--from and --to required (no campaign window configured)")
				}
				from, to = cfg.Campaign.Window.Start, cfg.Campaign.Window.End
			}
			return withCoordinator(cmd.Context(), func(ctx context.Context, coord *booking.Coordinator) error {
				days, err := coord.Calendar(ctx, from, to)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(days)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Date", "Booked", "Total", "State"})
				for _, d := range days {
					state := "open"
					switch {
					case d.FullyBooked:
						state = "full"
					case d.PartiallyBooked:
						state = "partial"
					}
					tw.AppendRow(table.Row{d.Date, d.Booked, d.Total, state})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first date (YYYY-MM-DD, defaults to campaign window)")
	cmd.Flags().StringVar(&to, "to", "", "last date (YYYY-MM-DD, defaults to campaign window)")
	return cmd
}

func reservationsCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "reservations",
		Short: "List scheduled reservations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCoordinator(cmd.Context(), func(ctx context.Context, coord *booking.Coordinator) error {
				items, err := coord.ActiveReservations(ctx, date)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Date", "Time", "Application", "Candidate", "Job"})
				for _, r := range items {
					tw.AppendRow(table.Row{r.ID, r.Date, r.Time, r.ApplicationID, r.CandidateName, r.JobTitle})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "filter by date (YYYY-MM-DD)")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCoordinator(cmd.Context(), func(ctx context.Context, coord *booking.Coordinator) error {
				events, err := coord.Events.Latest(ctx, n, evtType, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage slotline.yml",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var campaignID string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default slotline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(campaignID)), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&campaignID, "campaign", "default", "campaign id")
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadCampaignConfig()
			if err != nil {
				return err
			}
			if !viper.GetBool("json") {
				fmt.Println("database:", db.Path(viper.GetString("workspace")))
			}
			return printJSONOrTable(cfg)
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate slotline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(viper.GetString("workspace")); err != nil {
				return err
			}
			fmt.Println("config ok")
			return nil
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(cmd.Context(), conn); err != nil {
				return err
			}
			cfg, err := loadCampaignConfig()
			if err != nil {
				return err
			}
			grid, err := cfg.SlotGrid()
			if err != nil {
				return err
			}
			zl, err := zap.NewProduction()
			if err != nil {
				return err
			}
			defer zl.Sync()
			logger := zl.Sugar()

			n := notify.New()
			coord := booking.New(conn, grid, n)
			handler, err := server.New(server.Config{
				Coordinator: coord,
				Campaign:    cfg,
				Notifier:    n,
				Logger:      logger,
				BasePath:    basePath,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			logger.Infow("serving", "addr", addr, "base_path", basePath, "campaign", cfg.Campaign.ID, "db", db.Path(workspace))
			fmt.Printf("Serving Slotline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func loadCampaignConfig() (*config.Config, error) {
	cfg, err := config.LoadOptional(viper.GetString("workspace"))
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default("default")
	}
	return cfg, nil
}

func withCoordinator(ctx context.Context, fn func(context.Context, *booking.Coordinator) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(ctx, conn); err != nil {
		return err
	}
	cfg, err := loadCampaignConfig()
	if err != nil {
		return err
	}
	grid, err := cfg.SlotGrid()
	if err != nil {
		return err
	}
	coord := booking.New(conn, grid, notify.New())
	return fn(ctx, coord)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
