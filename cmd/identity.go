package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/kozaktomas/reunite/internal/database"
	"github.com/spf13/cobra"
)

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Manage missing-person identities",
}

var identityAddCmd = &cobra.Command{
	Use:   "add <identity-id>",
	Short: "Create or update an identity",
	Example: `  reunite identity add MP-26-000042 --name "Jana Novakova" \
    --handler officer@police.example --contact parent@example.com`,
	Args: cobra.ExactArgs(1),
	RunE: runIdentityAdd,
}

var identityListCmd = &cobra.Command{
	Use:   "list",
	Short: "List identities",
	Args:  cobra.NoArgs,
	RunE:  runIdentityList,
}

var identityShowCmd = &cobra.Command{
	Use:   "show <identity-id>",
	Short: "Show an identity with its enrollments and recent evidence",
	Args:  cobra.ExactArgs(1),
	RunE:  runIdentityShow,
}

func init() {
	rootCmd.AddCommand(identityCmd)
	identityCmd.AddCommand(identityAddCmd, identityListCmd, identityShowCmd)

	identityAddCmd.Flags().String("name", "", "Full name")
	identityAddCmd.Flags().String("handler", "", "E-mail of the responsible handler (required)")
	identityAddCmd.Flags().String("contact", "", "E-mail of the registered contact")

	identityListCmd.Flags().String("handler", "", "Only identities of this handler")
	identityListCmd.Flags().Bool("json", false, "Output as JSON")

	identityShowCmd.Flags().Int("evidence", 10, "Number of recent evidence records to show")
	identityShowCmd.Flags().Bool("json", false, "Output as JSON")
}

// identityRow is the JSON shape of an identity in command output.
type identityRow struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	HandlerEmail string    `json:"handler_email"`
	ContactEmail string    `json:"contact_email,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	Enrollments  int       `json:"enrollments"`
}

// entryRow is the JSON shape of a gallery entry.
type entryRow struct {
	ID         int64     `json:"id"`
	Provenance string    `json:"provenance"`
	Images     int       `json:"images"`
	Failed     int       `json:"failed"`
	CreatedAt  time.Time `json:"created_at"`
}

// evidenceRow is the JSON shape of an evidence record.
type evidenceRow struct {
	ID         int64     `json:"id"`
	Similarity float64   `json:"similarity"`
	Location   string    `json:"location"`
	CapturedAt time.Time `json:"captured_at"`
}

func parseEmail(flag, value string, required bool) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		if required {
			return "", fmt.Errorf("--%s is required", flag)
		}
		return "", nil
	}
	addr, err := mail.ParseAddress(value)
	if err != nil {
		return "", fmt.Errorf("invalid --%s %q: %w", flag, value, err)
	}
	return addr.Address, nil
}

func runIdentityAdd(cmd *cobra.Command, args []string) error {
	id := strings.TrimSpace(args[0])
	if id == "" {
		return errors.New("identity ID must not be empty")
	}
	handler, err := parseEmail("handler", mustGetString(cmd, "handler"), true)
	if err != nil {
		return err
	}
	contact, err := parseEmail("contact", mustGetString(cmd, "contact"), false)
	if err != nil {
		return err
	}

	cfg := loadConfig(cmd)
	ctx := context.Background()
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	identity := &database.Identity{
		ID:           id,
		Name:         strings.TrimSpace(mustGetString(cmd, "name")),
		HandlerEmail: handler,
		ContactEmail: contact,
	}
	if err := store.SaveIdentity(ctx, identity); err != nil {
		return fmt.Errorf("save identity: %w", err)
	}
	fmt.Printf("Saved identity %s (handler %s)\n", identity.ID, identity.HandlerEmail)
	return nil
}

func runIdentityList(cmd *cobra.Command, args []string) error {
	cfg := loadConfig(cmd)
	ctx := context.Background()
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	var identities []database.Identity
	if handler := mustGetString(cmd, "handler"); handler != "" {
		identities, err = store.ListIdentitiesByHandler(ctx, handler)
	} else {
		identities, err = store.ListIdentities(ctx)
	}
	if err != nil {
		return fmt.Errorf("list identities: %w", err)
	}

	rows := make([]identityRow, 0, len(identities))
	for _, identity := range identities {
		entries, err := store.ListByIdentity(ctx, identity.ID)
		if err != nil {
			return fmt.Errorf("list gallery of %s: %w", identity.ID, err)
		}
		rows = append(rows, identityRow{
			ID:           identity.ID,
			Name:         identity.Name,
			HandlerEmail: identity.HandlerEmail,
			ContactEmail: identity.ContactEmail,
			CreatedAt:    identity.CreatedAt,
			Enrollments:  len(entries),
		})
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(rows)
	}
	if len(rows) == 0 {
		fmt.Println("No identities")
		return nil
	}
	w := newTable()
	fmt.Fprintln(w, "ID\tNAME\tHANDLER\tCONTACT\tENROLLMENTS")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", r.ID, r.Name, r.HandlerEmail, orDash(r.ContactEmail), r.Enrollments)
	}
	return w.Flush()
}

func runIdentityShow(cmd *cobra.Command, args []string) error {
	cfg := loadConfig(cmd)
	ctx := context.Background()
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	identity, err := store.GetIdentity(ctx, args[0])
	if err != nil {
		return fmt.Errorf("load identity: %w", err)
	}
	if identity == nil {
		return fmt.Errorf("identity %s not found", args[0])
	}
	entries, err := store.ListByIdentity(ctx, identity.ID)
	if err != nil {
		return fmt.Errorf("list gallery: %w", err)
	}
	records, err := store.ListEvidence(ctx, identity.ID, mustGetInt(cmd, "evidence"))
	if err != nil {
		return fmt.Errorf("list evidence: %w", err)
	}
	total, err := store.CountEvidence(ctx, identity.ID)
	if err != nil {
		return fmt.Errorf("count evidence: %w", err)
	}

	out := struct {
		identityRow
		Gallery       []entryRow    `json:"gallery"`
		Evidence      []evidenceRow `json:"evidence"`
		EvidenceTotal int           `json:"evidence_total"`
	}{
		identityRow: identityRow{
			ID:           identity.ID,
			Name:         identity.Name,
			HandlerEmail: identity.HandlerEmail,
			ContactEmail: identity.ContactEmail,
			CreatedAt:    identity.CreatedAt,
			Enrollments:  len(entries),
		},
		Gallery:       make([]entryRow, 0, len(entries)),
		Evidence:      make([]evidenceRow, 0, len(records)),
		EvidenceTotal: total,
	}
	for _, e := range entries {
		out.Gallery = append(out.Gallery, entryRow{
			ID:         e.ID,
			Provenance: e.Provenance,
			Images:     e.ImageCount,
			Failed:     e.FailedCount,
			CreatedAt:  e.CreatedAt,
		})
	}
	for _, r := range records {
		out.Evidence = append(out.Evidence, evidenceRow{
			ID:         r.ID,
			Similarity: r.Similarity,
			Location:   formatLocation(r.Location),
			CapturedAt: r.CapturedAt,
		})
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(out)
	}

	fmt.Printf("%s  %s\n", identity.ID, identity.Name)
	fmt.Printf("  Handler: %s\n", identity.HandlerEmail)
	fmt.Printf("  Contact: %s\n", orDash(identity.ContactEmail))
	fmt.Printf("  Created: %s\n\n", identity.CreatedAt.Format(time.RFC3339))

	fmt.Printf("Gallery (%d, newest first)\n", len(out.Gallery))
	w := newTable()
	for i, e := range out.Gallery {
		marker := ""
		if i == 0 {
			marker = "active"
		}
		fmt.Fprintf(w, "  #%d\t%s\t%s\t%s\n", e.ID, e.CreatedAt.Format(time.RFC3339), e.Provenance, marker)
	}
	w.Flush()

	fmt.Printf("\nEvidence (%d of %d)\n", len(out.Evidence), total)
	w = newTable()
	for _, r := range out.Evidence {
		fmt.Fprintf(w, "  #%d\t%s\t%.3f\t%s\n", r.ID, r.CapturedAt.Format(time.RFC3339), r.Similarity, r.Location)
	}
	return w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
