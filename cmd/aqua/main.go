package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aquatrace/aquatrace/pkg/client"
	"github.com/aquatrace/aquatrace/pkg/units"
)

// version is overridden by goreleaser via -ldflags "-X main.version=...".
var version = "dev"

var (
	nodeURL  string
	cfgFile  string
	credFile string
	caller   string
	insecure bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "aqua",
	Short: "AquaTrace ledger CLI",
	Long: `aqua is the command-line interface for the AquaTrace water ledger.

It records water-quality measurements, tracks shipments against safe
sources, confirms deliveries, and manages ledger roles on an AquaTrace
node.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.aqua")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if nodeURL == "" {
			nodeURL = viper.GetString("node_url")
		}
		if nodeURL == "" {
			nodeURL = "http://localhost:8080"
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.aqua/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&nodeURL, "node", "", "AquaTrace node URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&credFile, "credentials", "", "credentials file (default ~/.aqua/credentials.json)")
	rootCmd.PersistentFlags().StringVar(&caller, "caller", "", "Caller identity header for nodes running without auth (development only)")
	rootCmd.PersistentFlags().BoolVar(&insecure, "insecure", false, "Skip TLS certificate verification (development only)")

	rootCmd.AddCommand(qualityCmd)
	rootCmd.AddCommand(distCmd)
	rootCmd.AddCommand(accessCmd)
	rootCmd.AddCommand(enrollCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(overviewCmd)
	rootCmd.AddCommand(versionCmd)
}

// newClient builds an SDK client from the persistent flags. Credentials are
// loaded from --credentials when given, or best-effort from the default
// path; reads work without any credentials at all.
func newClient() (*client.Client, error) {
	opts := []client.Option{}
	if insecure {
		opts = append(opts, client.WithInsecureSkipVerify())
	}
	if caller != "" {
		opts = append(opts, client.WithCaller(caller))
	}

	path := credFile
	if path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			candidate := filepath.Join(home, ".aqua", "credentials.json")
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
			}
		}
	}
	if path != "" {
		opts = append(opts, client.WithCredentialsFile(path))
	}

	return client.New(nodeURL, opts...)
}

// parseID parses a ledger record ID argument.
func parseID(arg string) (uint64, error) {
	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid record ID %q", arg)
	}
	return id, nil
}

// ── quality ──────────────────────────────────────────────────────────────────

var qualityCmd = &cobra.Command{
	Use:   "quality",
	Short: "Record and inspect water-quality measurements",
}

var (
	qualityLocation  string
	qualityPH        string
	qualityTDS       int64
	qualityTurbidity int64
	qualityTemp      string
	qualityFormat    string
)

var qualityRecordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record a water-quality measurement for a location",
	Long: `record appends a measurement to the quality ledger.

pH and temperature take decimal values; TDS (ppm) and turbidity (NTU) are
whole numbers. The caller identity must hold the verifier role:

  aqua quality record --location reservoir-north \
      --ph 7.2 --tds 340 --turbidity 2 --temperature 25.0`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ph, err := units.ParsePH(qualityPH)
		if err != nil {
			return err
		}
		temp, err := units.ParseTemperature(qualityTemp)
		if err != nil {
			return err
		}

		c, err := newClient()
		if err != nil {
			return err
		}

		rec, err := c.RecordQuality(context.Background(), client.RecordQualityRequest{
			Location:    qualityLocation,
			PH:          ph,
			TDS:         qualityTDS,
			Turbidity:   qualityTurbidity,
			Temperature: temp,
		})
		if err != nil {
			return fmt.Errorf("record quality: %w", err)
		}

		fmt.Printf("✓ Measurement recorded\n\n")
		fmt.Printf("  ID:       %d\n", rec.ID)
		fmt.Printf("  Location: %s\n", rec.Location)
		fmt.Printf("  Verdict:  %s\n", verdict(rec.IsSafe))
		if !rec.IsSafe {
			fmt.Println("\nThis source cannot back shipments until a safe measurement is recorded.")
		}
		return nil
	},
}

var qualityGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show a single quality record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		rec, err := c.GetQuality(context.Background(), id)
		if err != nil {
			return fmt.Errorf("get quality record: %w", err)
		}

		if qualityFormat == "json" {
			return printJSON(rec)
		}
		printQualityText(rec)
		return nil
	},
}

// historyRow holds the outcome of fetching a single record in a history.
type historyRow struct {
	id  uint64
	rec *client.QualityRecord
	err error
}

var qualityHistoryCmd = &cobra.Command{
	Use:   "history <location>",
	Short: "List every quality record for a location, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		location := args[0]
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx := context.Background()

		ids, err := c.QualityHistory(ctx, location)
		if err != nil {
			return fmt.Errorf("fetch history: %w", err)
		}
		if len(ids) == 0 {
			fmt.Printf("No quality records for %s\n", location)
			return nil
		}

		// Fetch all records concurrently.
		rowsCh := make(chan historyRow, len(ids))
		for _, id := range ids {
			id := id
			go func() {
				rec, err := c.GetQuality(ctx, id)
				rowsCh <- historyRow{id: id, rec: rec, err: err}
			}()
		}

		// Collect in ledger order.
		byID := make(map[uint64]historyRow, len(ids))
		for range ids {
			r := <-rowsCh
			byID[r.id] = r
		}

		if qualityFormat == "json" {
			ordered := make([]*client.QualityRecord, 0, len(ids))
			for _, id := range ids {
				if r := byID[id]; r.err == nil {
					ordered = append(ordered, r.rec)
				}
			}
			return printJSON(ordered)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tPH\tTDS\tTURBIDITY\tTEMP\tVERDICT\tVERIFIER\tRECORDED")
		for _, id := range ids {
			r := byID[id]
			if r.err != nil {
				fmt.Fprintf(w, "%d\t\t\t\t\t\t\t%s\n", id, r.err.Error())
				continue
			}
			fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%s\t%s\t%s\t%s\n",
				r.rec.ID,
				units.FormatPH(r.rec.PH),
				r.rec.TDS,
				r.rec.Turbidity,
				units.FormatTemperature(r.rec.Temperature),
				verdict(r.rec.IsSafe),
				r.rec.Verifier,
				time.Unix(r.rec.RecordedAt, 0).UTC().Format(time.RFC3339),
			)
		}
		return w.Flush()
	},
}

var qualityLatestCmd = &cobra.Command{
	Use:   "latest <location>",
	Short: "Show the safety verdict of the newest record at a location",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		location := args[0]
		c, err := newClient()
		if err != nil {
			return err
		}
		status, err := c.LatestSafety(context.Background(), location)
		if err != nil {
			return fmt.Errorf("fetch latest safety: %w", err)
		}

		if qualityFormat == "json" {
			return printJSON(status)
		}
		if !status.Known {
			fmt.Printf("No quality records for %s\n", location)
			return nil
		}
		fmt.Printf("Location: %s\n", status.Location)
		fmt.Printf("Verdict:  %s (record %d)\n", verdict(status.IsSafe), status.QualityID)
		return nil
	},
}

func init() {
	qualityRecordCmd.Flags().StringVar(&qualityLocation, "location", "", "Sampling location, e.g. reservoir-north")
	qualityRecordCmd.Flags().StringVar(&qualityPH, "ph", "", "pH reading, e.g. 7.2")
	qualityRecordCmd.Flags().Int64Var(&qualityTDS, "tds", 0, "Total dissolved solids in ppm")
	qualityRecordCmd.Flags().Int64Var(&qualityTurbidity, "turbidity", 0, "Turbidity in NTU")
	qualityRecordCmd.Flags().StringVar(&qualityTemp, "temperature", "", "Water temperature in Celsius, e.g. 25.0")

	_ = qualityRecordCmd.MarkFlagRequired("location")
	_ = qualityRecordCmd.MarkFlagRequired("ph")
	_ = qualityRecordCmd.MarkFlagRequired("tds")
	_ = qualityRecordCmd.MarkFlagRequired("turbidity")
	_ = qualityRecordCmd.MarkFlagRequired("temperature")

	qualityCmd.PersistentFlags().StringVar(&qualityFormat, "format", "text", "Output format: text or json")

	qualityCmd.AddCommand(qualityRecordCmd)
	qualityCmd.AddCommand(qualityGetCmd)
	qualityCmd.AddCommand(qualityHistoryCmd)
	qualityCmd.AddCommand(qualityLatestCmd)
}

// ── dist ─────────────────────────────────────────────────────────────────────

var distCmd = &cobra.Command{
	Use:   "dist",
	Short: "Track shipments and confirm deliveries",
}

var (
	distSource      string
	distDestination string
	distQuantity    int64
	distQualityRef  uint64
	distForce       bool
	distFormat      string
)

var distTrackCmd = &cobra.Command{
	Use:   "track",
	Short: "Track a new shipment backed by a safe quality record",
	Long: `track appends a shipment to the distribution ledger.

The referenced quality record must exist and carry a safe verdict, and the
caller identity must hold the distributor role:

  aqua dist track --source reservoir-north --destination district-4 \
      --quantity 50000 --quality-ref 9`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}

		rec, err := c.TrackDistribution(context.Background(), client.TrackDistributionRequest{
			Source:      distSource,
			Destination: distDestination,
			Quantity:    distQuantity,
			QualityRef:  distQualityRef,
		})
		if err != nil {
			if errors.Is(err, client.ErrUnsafeSource) {
				return fmt.Errorf("quality record %d is not safe; record a safe measurement first", distQualityRef)
			}
			return fmt.Errorf("track shipment: %w", err)
		}

		fmt.Printf("✓ Shipment tracked\n\n")
		fmt.Printf("  ID:          %d\n", rec.ID)
		fmt.Printf("  Route:       %s → %s\n", rec.Source, rec.Destination)
		fmt.Printf("  Quantity:    %d L\n", rec.Quantity)
		fmt.Printf("  Quality ref: %d\n\n", rec.QualityRef)
		fmt.Printf("Next: aqua dist confirm %d once delivered\n", rec.ID)
		return nil
	},
}

var distConfirmCmd = &cobra.Command{
	Use:   "confirm <id>",
	Short: "Confirm a shipment as delivered",
	Long: `confirm marks a shipment as delivered.

Only the distributor that tracked the shipment may confirm it, and
confirmation is permanent — it cannot be repeated or undone.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx := context.Background()

		rec, err := c.GetDistribution(ctx, id)
		if err != nil {
			return fmt.Errorf("get shipment: %w", err)
		}

		fmt.Printf("\nShipment to confirm:\n\n")
		fmt.Printf("  ID:          %d\n", rec.ID)
		fmt.Printf("  Route:       %s → %s\n", rec.Source, rec.Destination)
		fmt.Printf("  Quantity:    %d L\n", rec.Quantity)
		fmt.Printf("  Distributor: %s\n\n", rec.Distributor)

		if rec.Delivered {
			fmt.Println("Already confirmed.")
			return nil
		}

		if !distForce {
			fmt.Print("Confirmation is permanent. Confirm delivery? [y/N]: ")
			reader := bufio.NewReader(os.Stdin)
			answer, _ := reader.ReadString('\n')
			if strings.ToLower(strings.TrimSpace(answer)) != "y" {
				fmt.Println("Aborted.")
				return nil
			}
		}

		if err := c.ConfirmDelivery(ctx, id); err != nil {
			if errors.Is(err, client.ErrAlreadyConfirmed) {
				return fmt.Errorf("shipment %d was already confirmed", id)
			}
			return fmt.Errorf("confirm delivery: %w", err)
		}

		fmt.Printf("✓ Delivery confirmed: shipment %d\n", id)
		return nil
	},
}

var distGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show a single shipment record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		rec, err := c.GetDistribution(context.Background(), id)
		if err != nil {
			return fmt.Errorf("get shipment: %w", err)
		}

		if distFormat == "json" {
			return printJSON(rec)
		}
		printDistributionText(rec)
		return nil
	},
}

var distStatusCmd = &cobra.Command{
	Use:   "status <id>",
	Short: "Show whether a shipment has been delivered",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		delivered, err := c.DeliveryStatus(context.Background(), id)
		if err != nil {
			return fmt.Errorf("fetch status: %w", err)
		}
		if delivered {
			fmt.Printf("Shipment %d: delivered\n", id)
		} else {
			fmt.Printf("Shipment %d: in transit\n", id)
		}
		return nil
	},
}

func init() {
	distTrackCmd.Flags().StringVar(&distSource, "source", "", "Source location of the shipment")
	distTrackCmd.Flags().StringVar(&distDestination, "destination", "", "Destination of the shipment")
	distTrackCmd.Flags().Int64Var(&distQuantity, "quantity", 0, "Quantity in litres")
	distTrackCmd.Flags().Uint64Var(&distQualityRef, "quality-ref", 0, "ID of the backing quality record")

	_ = distTrackCmd.MarkFlagRequired("source")
	_ = distTrackCmd.MarkFlagRequired("destination")
	_ = distTrackCmd.MarkFlagRequired("quantity")
	_ = distTrackCmd.MarkFlagRequired("quality-ref")

	distConfirmCmd.Flags().BoolVar(&distForce, "force", false, "Skip confirmation prompt")
	distGetCmd.Flags().StringVar(&distFormat, "format", "text", "Output format: text or json")

	distCmd.AddCommand(distTrackCmd)
	distCmd.AddCommand(distConfirmCmd)
	distCmd.AddCommand(distGetCmd)
	distCmd.AddCommand(distStatusCmd)
}

// ── access ───────────────────────────────────────────────────────────────────

var accessCmd = &cobra.Command{
	Use:   "access",
	Short: "Manage verifier and distributor roles",
	Long: `access manages the ledger's role registry.

Only the owner identity can grant or revoke roles. Grants and revocations
are idempotent: repeating one is not an error.`,
}

var accessOwnerCmd = &cobra.Command{
	Use:   "owner",
	Short: "Show the ledger owner",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		owner, err := c.Owner(context.Background())
		if err != nil {
			return fmt.Errorf("fetch owner: %w", err)
		}
		if owner == "" {
			fmt.Println("Ledger not initialised — no owner set.")
			return nil
		}
		fmt.Printf("Owner: %s\n", owner)
		return nil
	},
}

var accessRolesCmd = &cobra.Command{
	Use:   "roles <account>",
	Short: "Show the roles an account holds",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		roles, err := c.GetRoles(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("fetch roles: %w", err)
		}
		fmt.Printf("Account:     %s\n", roles.Account)
		fmt.Printf("Verifier:    %t\n", roles.Verifier)
		fmt.Printf("Distributor: %t\n", roles.Distributor)
		return nil
	},
}

var accessGrantCmd = &cobra.Command{
	Use:   "grant <verifier|distributor> <account>",
	Short: "Grant a role to an account (owner only)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return changeRole(args[0], args[1], true)
	},
}

var accessRevokeCmd = &cobra.Command{
	Use:   "revoke <verifier|distributor> <account>",
	Short: "Revoke a role from an account (owner only)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return changeRole(args[0], args[1], false)
	},
}

func changeRole(role, account string, grant bool) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	ctx := context.Background()

	switch {
	case role == "verifier" && grant:
		err = c.GrantVerifier(ctx, account)
	case role == "verifier":
		err = c.RevokeVerifier(ctx, account)
	case role == "distributor" && grant:
		err = c.GrantDistributor(ctx, account)
	case role == "distributor":
		err = c.RevokeDistributor(ctx, account)
	default:
		return fmt.Errorf("unknown role %q (expected verifier or distributor)", role)
	}
	if err != nil {
		if errors.Is(err, client.ErrUnauthorized) {
			return fmt.Errorf("only the ledger owner can change roles")
		}
		return err
	}

	if grant {
		fmt.Printf("✓ Granted %s to %s\n", role, account)
	} else {
		fmt.Printf("✓ Revoked %s from %s\n", role, account)
	}
	return nil
}

func init() {
	accessCmd.AddCommand(accessOwnerCmd)
	accessCmd.AddCommand(accessRolesCmd)
	accessCmd.AddCommand(accessGrantCmd)
	accessCmd.AddCommand(accessRevokeCmd)
}

// ── enroll ───────────────────────────────────────────────────────────────────

var (
	enrollAdminToken  string
	enrollAdminSecret string
	enrollOutput      string
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <identity>",
	Short: "Enroll a ledger identity and save its credentials",
	Long: `enroll registers a ledger identity on the node and saves the
access key to a local credentials file. Enrollment requires node admin
authority: either a pre-minted admin token, or the node's admin secret
(which is exchanged for one).

  aqua enroll plant-7 --admin-secret $AQUA_ADMIN_SECRET

The access key is shown exactly once by the node. Re-enrolling an existing
identity rotates its key.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		identity := args[0]
		ctx := context.Background()

		baseOpts := []client.Option{}
		if insecure {
			baseOpts = append(baseOpts, client.WithInsecureSkipVerify())
		}

		token := enrollAdminToken
		if token == "" && enrollAdminSecret != "" {
			c, err := client.New(nodeURL, baseOpts...)
			if err != nil {
				return err
			}
			token, err = c.AdminToken(ctx, enrollAdminSecret)
			if err != nil {
				return fmt.Errorf("exchange admin secret: %w", err)
			}
		}
		if token == "" {
			return fmt.Errorf("enrollment needs admin authority: pass --admin-token or --admin-secret")
		}

		c, err := client.New(nodeURL, append(baseOpts, client.WithBearerToken(token))...)
		if err != nil {
			return err
		}

		accessKey, err := c.Enroll(ctx, identity)
		if err != nil {
			return fmt.Errorf("enroll %q: %w", identity, err)
		}

		out := enrollOutput
		if out == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("get home dir: %w", err)
			}
			dir := filepath.Join(home, ".aqua")
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return fmt.Errorf("create %s: %w", dir, err)
			}
			out = filepath.Join(dir, "credentials.json")
		}

		err = client.SaveCredentials(out, &client.Credentials{
			Identity:  identity,
			AccessKey: accessKey,
			Node:      nodeURL,
		})
		if err != nil {
			return err
		}

		fmt.Printf("✓ Identity enrolled: %s\n\n", identity)
		fmt.Printf("  Credentials: %s\n\n", out)
		fmt.Println("The access key cannot be shown again. Keep the credentials file safe;")
		fmt.Println("the aqua CLI and the Go SDK read it automatically.")
		return nil
	},
}

func init() {
	enrollCmd.Flags().StringVar(&enrollAdminToken, "admin-token", "", "Pre-minted node admin token")
	enrollCmd.Flags().StringVar(&enrollAdminSecret, "admin-secret", "", "Node admin secret (exchanged for a token)")
	enrollCmd.Flags().StringVar(&enrollOutput, "output", "", "Credentials output path (default ~/.aqua/credentials.json)")
}

// ── token ────────────────────────────────────────────────────────────────────

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Exchange saved credentials for a bearer token",
	Long: `token fetches a fresh bearer token for the enrolled identity in the
credentials file and prints it. Useful for calling the node API with curl:

  curl -H "Authorization: Bearer $(aqua token)" $NODE/api/v1/quality/1`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		tok, err := c.FetchToken(context.Background())
		if err != nil {
			return fmt.Errorf("fetch token (run `aqua enroll` first?): %w", err)
		}
		fmt.Println(tok)
		return nil
	},
}

// ── overview ─────────────────────────────────────────────────────────────────

var overviewCmd = &cobra.Command{
	Use:   "overview",
	Short: "Show ledger totals and the last integrity audit",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx := context.Background()

		ov, err := c.LedgerOverview(ctx)
		if err != nil {
			return fmt.Errorf("fetch overview: %w", err)
		}

		owner := ov.Owner
		if owner == "" {
			owner = "(not initialised)"
		}
		fmt.Printf("Node:          %s\n", nodeURL)
		fmt.Printf("Owner:         %s\n", owner)
		fmt.Printf("Quality:       %d record(s)\n", ov.QualityCount)
		fmt.Printf("Distribution:  %d record(s)\n", ov.DistributionCount)

		// The audit endpoint is optional node-side; skip quietly when absent.
		report, err := c.LastAudit(ctx)
		if err != nil {
			return nil
		}
		if !report.Audited {
			fmt.Printf("Audit:         pending first pass\n")
			return nil
		}
		if report.Clean {
			fmt.Printf("Audit:         clean (at %s)\n", report.RunAt)
			return nil
		}
		fmt.Printf("Audit:         %d fault(s) at %s\n", len(report.Faults), report.RunAt)
		for _, f := range report.Faults {
			fmt.Printf("  - %s\n", f)
		}
		return nil
	},
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the aqua CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("aqua %s (AquaTrace)\n", version)
	},
}

// ── output helpers ───────────────────────────────────────────────────────────

func verdict(safe bool) string {
	if safe {
		return "SAFE"
	}
	return "UNSAFE"
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printQualityText(rec *client.QualityRecord) {
	fmt.Printf("Record:      %d\n", rec.ID)
	fmt.Printf("Location:    %s\n", rec.Location)
	fmt.Printf("pH:          %s\n", units.FormatPH(rec.PH))
	fmt.Printf("TDS:         %d ppm\n", rec.TDS)
	fmt.Printf("Turbidity:   %d NTU\n", rec.Turbidity)
	fmt.Printf("Temperature: %s C\n", units.FormatTemperature(rec.Temperature))
	fmt.Printf("Verdict:     %s\n", verdict(rec.IsSafe))
	fmt.Printf("Verifier:    %s\n", rec.Verifier)
	fmt.Printf("Recorded:    %s\n", time.Unix(rec.RecordedAt, 0).UTC().Format(time.RFC3339))
}

func printDistributionText(rec *client.DistributionRecord) {
	state := "in transit"
	if rec.Delivered {
		state = "delivered " + time.Unix(rec.DeliveredAt, 0).UTC().Format(time.RFC3339)
	}
	fmt.Printf("Shipment:    %d\n", rec.ID)
	fmt.Printf("Route:       %s → %s\n", rec.Source, rec.Destination)
	fmt.Printf("Quantity:    %d L\n", rec.Quantity)
	fmt.Printf("Quality ref: %d\n", rec.QualityRef)
	fmt.Printf("Distributor: %s\n", rec.Distributor)
	fmt.Printf("Status:      %s\n", state)
	fmt.Printf("Created:     %s\n", time.Unix(rec.CreatedAt, 0).UTC().Format(time.RFC3339))
}
