package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"backend-carbonsaver/internal/account"
	"backend-carbonsaver/internal/carbon"
	"backend-carbonsaver/internal/config"
	"backend-carbonsaver/internal/db"
	"backend-carbonsaver/internal/rewards"
	"backend-carbonsaver/internal/trip"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var connectPostgres = db.ConnectPostgres

var migrateFn = func(ctx context.Context, pool *pgxpool.Pool) error {
	return db.Migrate(ctx, pool)
}

var addPointsFn = func(ctx context.Context, pool *pgxpool.Pool, userID string, points int) (account.Account, error) {
	return account.NewService(pool, nil).AddPoints(ctx, userID, points)
}

// NewRootCmd builds the carbonctl command tree.
func NewRootCmd() *cobra.Command {
	var logLevel string
	root := &cobra.Command{
		Use:           "carbonctl",
		Short:         "Carbon Saver command line tools",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			config.InitLogger(logLevel, cmd.ErrOrStderr())
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(newEstimateCmd(), newModesCmd(), newMigrateCmd(), newRewardsCmd(), newPointsCmd())
	return root
}

// Estimate is what a trip would earn.
type Estimate struct {
	TransportationType carbon.TransportationType `json:"transportation_type"`
	DistanceKm         float64                   `json:"distance_km"`
	CarbonSavedKg      float64                   `json:"carbon_saved_kg"`
	PointsEarned       int                       `json:"points_earned"`
	Duration           string                    `json:"duration"`
	AverageSpeedKmh    float64                   `json:"average_speed_kmh"`
	Equivalents        carbon.Equivalents        `json:"equivalents"`
}

func newEstimateCmd() *cobra.Command {
	var (
		mode     string
		file     string
		distance float64
		duration time.Duration
	)
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate carbon saved and points for a trip",
		Long: `Computes the carbon saved and points earned for a trip, either from a
distance or from a JSON array of location samples:

  [{"latitude": -33.87, "longitude": 151.21, "timestamp": "2025-03-01T08:00:00Z"}, ...]`,
		Example: `  # 2.5 km walk
  carbonctl estimate --mode walking --distance 2.5

  # recorded route, read from stdin
  carbonctl estimate --mode cycling --file - < route.json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsed, err := carbon.ParseTransportationType(mode)
			if err != nil {
				return err
			}
			req := trip.RecordRequest{TransportationType: parsed, DurationSec: duration.Seconds()}
			if cmd.Flags().Changed("distance") {
				req.DistanceKm = &distance
			}
			if file != "" {
				locations, err := readLocations(cmd.InOrStdin(), file)
				if err != nil {
					return err
				}
				req.Locations = locations
				if duration == 0 && len(locations) > 1 {
					req.DurationSec = locations[len(locations)-1].Timestamp.Sub(locations[0].Timestamp).Seconds()
				}
			}
			if req.DistanceKm == nil && file == "" {
				return fmt.Errorf("either --distance or --file is required")
			}

			t, err := trip.Build(req)
			if err != nil {
				return err
			}
			eq, err := carbon.EquivalentsFor(t.CarbonSavedKg)
			if err != nil {
				return err
			}
			summary := t.Summary()
			return writeJSON(cmd.OutOrStdout(), Estimate{
				TransportationType: t.TransportationType,
				DistanceKm:         t.DistanceKm,
				CarbonSavedKg:      t.CarbonSavedKg,
				PointsEarned:       t.PointsEarned,
				Duration:           summary.Duration,
				AverageSpeedKmh:    summary.AverageSpeedKmh,
				Equivalents:        eq,
			})
		},
	}
	cmd.Flags().StringVarP(&mode, "mode", "m", string(carbon.Walking), "transportation type")
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON file of location samples, - for stdin")
	cmd.Flags().Float64VarP(&distance, "distance", "d", 0, "distance in km, overrides the route length")
	cmd.Flags().DurationVar(&duration, "duration", 0, "trip duration, defaults to the span of the samples")
	return cmd
}

func readLocations(stdin io.Reader, file string) ([]carbon.LocationPoint, error) {
	var r io.Reader = stdin
	if file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	var locations []carbon.LocationPoint
	if err := json.NewDecoder(r).Decode(&locations); err != nil {
		return nil, fmt.Errorf("decode locations: %w", err)
	}
	return locations, nil
}

func newModesCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "modes",
		Short: "List transportation types with per-km carbon and points",
		RunE: func(cmd *cobra.Command, _ []string) error {
			modes := carbon.Modes()
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), modes)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "MODE\tLABEL\tKG CO2 SAVED/KM\tPOINTS/KM")
			for _, m := range modes {
				fmt.Fprintf(w, "%s\t%s\t%.3f\t%d\n", m.Type, m.Label, m.CarbonSavedPerKm, m.PointsPerKm)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	var databaseURL string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			if databaseURL != "" {
				cfg.PostgresURL = databaseURL
			}
			pool, err := connectPostgres(cfg)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer pool.Close()

			if err := migrateFn(cmd.Context(), pool); err != nil {
				return err
			}
			cmd.Println("schema applied")
			return nil
		},
	}
	cmd.Flags().StringVar(&databaseURL, "database-url", "", "Postgres URL, defaults to POSTGRES_URL")
	return cmd
}

func newRewardsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rewards",
		Short: "Inspect reward catalogs",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check [file]",
		Short: "Validate a YAML reward catalog and print it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			list := carbon.DefaultRewards
			if len(args) == 1 {
				loaded, err := rewards.LoadCatalog(args[0])
				if err != nil {
					return err
				}
				list = loaded
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TYPE\tNAME\tPOINTS")
			for _, r := range list {
				fmt.Fprintf(w, "%s\t%s\t%d\n", r.Type, r.Name, r.PointsRequired)
			}
			return w.Flush()
		},
	})
	return cmd
}

func newPointsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "points",
		Short: "Manage account points",
	}

	var (
		databaseURL string
		userID      string
		points      int
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Credit bonus points to a user's account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if userID == "" {
				return fmt.Errorf("--user is required")
			}
			if points <= 0 || points > account.MaxBonusPoints {
				return account.ErrInvalidPoints
			}
			cfg := config.Load()
			if databaseURL != "" {
				cfg.PostgresURL = databaseURL
			}
			pool, err := connectPostgres(cfg)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer pool.Close()

			a, err := addPointsFn(cmd.Context(), pool, userID, points)
			if err != nil {
				return err
			}
			log.Info().Str("user_id", userID).Int("points", points).Msg("bonus points credited")
			return writeJSON(cmd.OutOrStdout(), a)
		},
	}
	add.Flags().StringVar(&databaseURL, "database-url", "", "Postgres URL, defaults to POSTGRES_URL")
	add.Flags().StringVarP(&userID, "user", "u", "", "user id to credit")
	add.Flags().IntVarP(&points, "points", "p", 0, "points to add")
	cmd.AddCommand(add)
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
