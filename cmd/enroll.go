package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/kozaktomas/reunite/internal/constants"
	"github.com/kozaktomas/reunite/internal/faces"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <identity-id> <image>... | enroll --dir <directory>",
	Short: "Enroll reference photos for an identity",
	Long: `Compute a gallery signature from one or more reference photos.

With --dir every sub-directory is treated as one identity: the directory name
is the identity ID and the images inside are its reference photos. Identities
must already exist (see "reunite identity add"). Re-enrolling an identity adds
a new signature; matching always uses the newest one.`,
	Example: `  reunite enroll MP-26-000042 front.jpg profile.jpg
  reunite enroll --dir ./references`,
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("dir", "", "Batch mode: directory with one sub-directory of images per identity")
	enrollCmd.Flags().Bool("json", false, "Output as JSON")
}

// enrollResult is one row of the enroll command output.
type enrollResult struct {
	IdentityID string `json:"identity_id"`
	EntryID    int64  `json:"entry_id,omitempty"`
	Images     int    `json:"images"`
	Used       int    `json:"used"`
	Failed     int    `json:"failed"`
	Error      string `json:"error,omitempty"`
}

func runEnroll(cmd *cobra.Command, args []string) error {
	dir := mustGetString(cmd, "dir")
	jsonOutput := mustGetBool(cmd, "json")

	var batch map[string][]string
	switch {
	case dir != "" && len(args) > 0:
		return errors.New("use either --dir or <identity-id> <image>..., not both")
	case dir != "":
		var err error
		if batch, err = collectEnrollDir(dir); err != nil {
			return err
		}
		if len(batch) == 0 {
			return fmt.Errorf("no identity directories with images found in %s", dir)
		}
	case len(args) >= 2:
		batch = map[string][]string{args[0]: args[1:]}
	default:
		return errors.New("requires an identity ID and at least one image, or --dir")
	}

	cfg := loadConfig(cmd)
	ctx := context.Background()
	a, err := newApp(ctx, cfg, appOptions{model: true})
	if err != nil {
		return err
	}
	defer a.Close()

	ids := make([]string, 0, len(batch))
	for id := range batch {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var bar *progressbar.ProgressBar
	if !jsonOutput && len(ids) > 1 {
		bar = progressbar.NewOptions(len(ids),
			progressbar.OptionSetDescription("Enrolling"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("identities"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)
	}

	start := time.Now()
	results := make([]enrollResult, 0, len(ids))
	failed := 0
	for _, id := range ids {
		res := enrollOne(ctx, a, id, batch[id])
		if res.Error != "" {
			failed++
		}
		results = append(results, res)
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}

	if jsonOutput {
		if err := outputJSON(results); err != nil {
			return err
		}
	} else {
		printEnrollResults(results, time.Since(start))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d enrollments failed", failed, len(results))
	}
	return nil
}

func enrollOne(ctx context.Context, a *app, identityID string, paths []string) enrollResult {
	res := enrollResult{IdentityID: identityID, Images: len(paths)}
	if len(paths) > constants.MaxEnrollImages {
		res.Error = fmt.Sprintf("too many images (%d, max %d)", len(paths), constants.MaxEnrollImages)
		return res
	}

	images := make([][]byte, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			res.Error = fmt.Sprintf("read %s: %v", p, err)
			return res
		}
		images = append(images, data)
	}

	entry, err := a.pipeline.Enroll(ctx, identityID, images)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.EntryID = entry.ID
	res.Used = entry.ImageCount
	res.Failed = entry.FailedCount
	return res
}

// collectEnrollDir maps each sub-directory name of root to the image files it contains.
// Files that do not sniff as an image are ignored.
func collectEnrollDir(root string) (map[string][]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", root, err)
	}

	batch := make(map[string][]string)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(root, e.Name())
		files, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", dir, err)
		}
		var images []string
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			path := filepath.Join(dir, f.Name())
			if isImageFile(path) {
				images = append(images, path)
			}
		}
		if len(images) > 0 {
			batch[e.Name()] = images
		}
	}
	return batch, nil
}

func isImageFile(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	head := make([]byte, 12)
	n, _ := f.Read(head)
	return faces.DetectMIMEType(head[:n]) != "application/octet-stream"
}

func printEnrollResults(results []enrollResult, elapsed time.Duration) {
	w := newTable()
	fmt.Fprintln(w, "IDENTITY\tENTRY\tUSED\tFAILED\tSTATUS")
	for _, r := range results {
		status := "ok"
		entry := fmt.Sprintf("%d", r.EntryID)
		if r.Error != "" {
			status = r.Error
			entry = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%d/%d\t%d\t%s\n", r.IdentityID, entry, r.Used, r.Images, r.Failed, status)
	}
	w.Flush()
	fmt.Printf("\nEnrolled %d identities in %s\n", countEnrolled(results), formatDuration(elapsed))
}

func countEnrolled(results []enrollResult) int {
	n := 0
	for _, r := range results {
		if r.Error == "" {
			n++
		}
	}
	return n
}
