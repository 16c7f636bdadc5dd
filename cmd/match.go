package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/kozaktomas/reunite/internal/database"
	"github.com/kozaktomas/reunite/internal/geo"
	"github.com/kozaktomas/reunite/internal/surveillance"
	"github.com/spf13/cobra"
)

var matchCmd = &cobra.Command{
	Use:   "match <image>",
	Short: "Match the faces of an image against the gallery",
	Long: `Detect every face in the image and report the enrolled identities whose
latest gallery signature reaches the match threshold.

By default nothing is recorded. With --ingest the image is processed like a
camera frame: matches are logged as evidence, alerts are raised subject to the
cooldown, and the command waits for their delivery.`,
	Example: `  reunite match frame.jpg
  reunite match frame.jpg --lat 50.0755 --lon 14.4378 --ingest --camera gate-3`,
	Args: cobra.ExactArgs(1),
	RunE: runMatch,
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().Float64("lat", 0, "Latitude where the image was captured")
	matchCmd.Flags().Float64("lon", 0, "Longitude where the image was captured")
	matchCmd.Flags().Bool("ingest", false, "Record evidence and raise alerts for the matches")
	matchCmd.Flags().String("camera", "cli", "Camera ID recorded with --ingest")
	matchCmd.Flags().Bool("json", false, "Output as JSON")
}

// matchRow is one matched face in the match command output.
type matchRow struct {
	IdentityID string        `json:"identity_id"`
	Name       string        `json:"name"`
	Similarity float64       `json:"similarity"`
	BBox       database.BBox `json:"box"`
}

func runMatch(cmd *cobra.Command, args []string) error {
	loc, err := optionalPoint(cmd)
	if err != nil {
		return err
	}
	jsonOutput := mustGetBool(cmd, "json")

	image, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}

	cfg := loadConfig(cmd)
	ctx := context.Background()
	a, err := newApp(ctx, cfg, appOptions{model: true})
	if err != nil {
		return err
	}
	defer a.Close()

	var results []surveillance.Result
	if mustGetBool(cmd, "ingest") {
		results = ingestOnce(ctx, a, surveillance.Frame{
			Image:    image,
			Location: loc,
			CameraID: mustGetString(cmd, "camera"),
		})
	} else {
		dets, err := a.engine.Match(ctx, image, loc)
		if err != nil {
			return err
		}
		for _, d := range dets {
			results = append(results, surveillance.Result{IdentityID: d.IdentityID, Similarity: d.Similarity, BBox: d.BBox})
		}
	}

	rows := make([]matchRow, 0, len(results))
	for _, r := range results {
		row := matchRow{IdentityID: r.IdentityID, Similarity: r.Similarity, BBox: r.BBox}
		if identity, err := a.store.GetIdentity(ctx, r.IdentityID); err == nil && identity != nil {
			row.Name = identity.Name
		}
		rows = append(rows, row)
	}

	if jsonOutput {
		return outputJSON(rows)
	}
	printMatches(rows, loc, a.engine.Threshold())
	return nil
}

// ingestOnce runs one frame through the pipeline and waits for the alerts it
// raised to be delivered.
func ingestOnce(ctx context.Context, a *app, frame surveillance.Frame) []surveillance.Result {
	a.queue.Start(ctx)
	results := a.pipeline.Ingest(ctx, frame)
	if err := a.queue.Stop(shutdownTimeout); err != nil {
		a.log.Warn("alert delivery did not finish", "error", err)
	}
	return results
}

func printMatches(rows []matchRow, loc *geo.Point, threshold float64) {
	if len(rows) == 0 {
		fmt.Printf("No match at threshold %.2f\n", threshold)
		return
	}
	if loc != nil {
		fmt.Printf("Location: %.6f, %.6f\n\n", loc.Lat, loc.Lon)
	}
	w := newTable()
	fmt.Fprintln(w, "IDENTITY\tNAME\tSIMILARITY\tBOX")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%.3f\t%.2f,%.2f %.2fx%.2f\n",
			r.IdentityID, r.Name, r.Similarity, r.BBox.X, r.BBox.Y, r.BBox.Width, r.BBox.Height)
	}
	w.Flush()
	fmt.Printf("\n%d match(es) at threshold %.2f\n", len(rows), threshold)
}
