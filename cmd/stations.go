package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/kozaktomas/reunite/internal/constants"
	"github.com/kozaktomas/reunite/internal/logging"
	"github.com/kozaktomas/reunite/internal/stations"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var stationsCmd = &cobra.Command{
	Use:   "stations",
	Short: "Manage the notification station directory",
}

var stationsImportCmd = &cobra.Command{
	Use:   "import <stations.yaml>",
	Short: "Import stations from a YAML file",
	Long: `Upsert stations from a YAML document of the form

  stations:
    - name: Praha 1 - Bartolomejska
      email: praha1@police.example
      lat: 50.0833
      lon: 14.4167

Stations are keyed by their normalized name, so re-importing a file updates
the existing entries. Stations without coordinates are stored but never picked
as nearest.`,
	Args: cobra.ExactArgs(1),
	RunE: runStationsImport,
}

var stationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stations",
	Args:  cobra.NoArgs,
	RunE:  runStationsList,
}

var stationsNearestCmd = &cobra.Command{
	Use:   "nearest",
	Short: "Show the stations an alert at the given point would be copied to",
	Args:  cobra.NoArgs,
	RunE:  runStationsNearest,
}

func init() {
	rootCmd.AddCommand(stationsCmd)
	stationsCmd.AddCommand(stationsImportCmd, stationsListCmd, stationsNearestCmd)

	stationsImportCmd.Flags().Bool("dry-run", false, "Validate the file without writing")

	stationsListCmd.Flags().Bool("json", false, "Output as JSON")

	stationsNearestCmd.Flags().Float64("lat", 0, "Latitude (required)")
	stationsNearestCmd.Flags().Float64("lon", 0, "Longitude (required)")
	stationsNearestCmd.Flags().Int("k", constants.NearestStationCount, "Number of stations")
	stationsNearestCmd.Flags().Bool("json", false, "Output as JSON")
}

// stationRow is the JSON shape of a station in command output.
type stationRow struct {
	ID         int64    `json:"id"`
	Name       string   `json:"name"`
	Email      string   `json:"email"`
	Lat        *float64 `json:"lat,omitempty"`
	Lon        *float64 `json:"lon,omitempty"`
	DistanceKm *float64 `json:"distance_km,omitempty"`
}

func runStationsImport(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open stations file: %w", err)
	}
	defer f.Close()

	parsed, err := stations.Parse(f)
	if err != nil {
		return err
	}
	if len(parsed) == 0 {
		fmt.Println("No stations in file")
		return nil
	}
	if mustGetBool(cmd, "dry-run") {
		fmt.Printf("%d stations are valid\n", len(parsed))
		return nil
	}

	cfg := loadConfig(cmd)
	ctx := context.Background()
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	bar := progressbar.NewOptions(len(parsed),
		progressbar.OptionSetDescription("Importing stations"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("stations"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)
	n, err := stations.Import(ctx, store, parsed, func() { _ = bar.Add(1) })
	_ = bar.Finish()
	fmt.Println()
	if err != nil {
		return fmt.Errorf("imported %d of %d stations: %w", n, len(parsed), err)
	}
	fmt.Printf("Imported %d stations\n", n)
	return nil
}

func runStationsList(cmd *cobra.Command, args []string) error {
	cfg := loadConfig(cmd)
	ctx := context.Background()
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	list, err := store.ListStations(ctx)
	if err != nil {
		return fmt.Errorf("list stations: %w", err)
	}

	rows := make([]stationRow, 0, len(list))
	for _, s := range list {
		row := stationRow{ID: s.ID, Name: s.Name, Email: s.Email}
		if s.Location != nil {
			row.Lat, row.Lon = &s.Location.Lat, &s.Location.Lon
		}
		rows = append(rows, row)
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(rows)
	}
	w := newTable()
	fmt.Fprintln(w, "ID\tNAME\tEMAIL\tLOCATION")
	for _, s := range list {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", s.ID, s.Name, orDash(s.Email), formatLocation(s.Location))
	}
	return w.Flush()
}

func runStationsNearest(cmd *cobra.Command, args []string) error {
	origin, err := optionalPoint(cmd)
	if err != nil {
		return err
	}
	if origin == nil {
		return errors.New("--lat and --lon are required")
	}

	cfg := loadConfig(cmd)
	ctx := context.Background()
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ranked, err := stations.NewDirectory(store, logging.Module("stations")).Nearest(ctx, *origin, mustGetInt(cmd, "k"))
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		rows := make([]stationRow, 0, len(ranked))
		for _, r := range ranked {
			s := r.Item
			row := stationRow{ID: s.ID, Name: s.Name, Email: s.Email, DistanceKm: &r.DistanceKm}
			if s.Location != nil {
				row.Lat, row.Lon = &s.Location.Lat, &s.Location.Lon
			}
			rows = append(rows, row)
		}
		return outputJSON(rows)
	}
	if len(ranked) == 0 {
		fmt.Println("No station with coordinates and e-mail")
		return nil
	}
	w := newTable()
	fmt.Fprintln(w, "NAME\tEMAIL\tDISTANCE")
	for _, r := range ranked {
		fmt.Fprintf(w, "%s\t%s\t%.1f km\n", r.Item.Name, r.Item.Email, r.DistanceKm)
	}
	return w.Flush()
}
