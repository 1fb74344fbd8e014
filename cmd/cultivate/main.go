package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"cultivate/internal/app"
	"cultivate/internal/config"
	"cultivate/internal/database"
	"cultivate/internal/forum"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "Sync", "Seed").
func newApp(cmd *cobra.Command, operation string) (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	a, err := app.NewApp(cmd.Context(), cfg, operation, app.Options{Verbose: verbose})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

var rootCmd = &cobra.Command{
	Use:          "cultivate",
	Short:        "Forum backend schema and seed tool",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		instanceID := uuid.New().String()
		secret, err := newSecret()
		if err != nil {
			return err
		}

		cfg := config.NewConfig(instanceID, defaults["base_dir"], secret)
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Instance ID: %s\n", instanceID)
		fmt.Printf("Base Dir:    %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}
		app.ApplyEnv(cfg, os.Getenv)

		media := "disabled"
		if cfg.Media.Enabled {
			media = cfg.Media.Type
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Instance ID: %s\n", cfg.InstanceID)
		fmt.Printf("Base Dir:    %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:     %s\n", cfg.LogDir)
		fmt.Printf("Database:    %s %s\n", cfg.Connection.Type, cfg.Connection.URL)
		fmt.Printf("Media:       %s\n", media)
		fmt.Printf("Auth:        enabled=%t roles=%d\n", cfg.Auth.Enabled, len(cfg.Auth.Roles))
		fmt.Printf("Production:  %t\n", cfg.IsProduction)
		return nil
	},
}

// schema command
var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the forum schema descriptor",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")

		a, err := newApp(cmd, "Schema")
		if err != nil {
			return err
		}
		defer a.Close()

		return a.WriteSchema(os.Stdout, format)
	},
}

// types command
var typesCmd = &cobra.Command{
	Use:   "types",
	Short: "Generate Go types for the forum entities",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")
		pkg, _ := cmd.Flags().GetString("package")

		a, err := newApp(cmd, "Types")
		if err != nil {
			return err
		}
		defer a.Close()

		path, err := a.WriteTypes(out, pkg)
		if err != nil {
			return err
		}

		fmt.Printf("Wrote types to %s\n", path)
		return nil
	},
}

// sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Create or update entity tables to match the schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		drop, _ := cmd.Flags().GetBool("drop")

		a, err := newApp(cmd, "Sync")
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.Sync(cmd.Context(), database.SyncPolicy{Force: force, Drop: drop})
		if err != nil {
			if errors.Is(err, database.ErrSyncRequiresForce) {
				return fmt.Errorf("%w (rerun with --force)", err)
			}
			if errors.Is(err, database.ErrSyncRequiresDrop) {
				return fmt.Errorf("%w (rerun with --drop)", err)
			}
			return err
		}

		if !report.Changed() {
			fmt.Println("Schema up to date.")
		}
		printList("Created", report.Created)
		printList("Altered", report.Altered)
		printList("Rebuilt", report.Rebuilt)
		printList("Dropped", report.Dropped)
		printList("Indices created", report.IndicesCreated)
		printList("Indices dropped", report.IndicesDropped)
		printList("Unmanaged", report.Unmanaged)
		return nil
	},
}

// seed command
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert baseline forum data into a fresh database",
	Long: fmt.Sprintf(`Insert baseline forum data into a fresh database.

An admin account is created when both %s and %s are set.`,
		forum.EnvSeedAdminUsername, forum.EnvSeedAdminPassword),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Seed")
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Seed(cmd.Context())
		if err != nil {
			return fmt.Errorf("seed failed: %w", err)
		}

		if res.Admin != nil {
			fmt.Printf("Admin:       %s\n", res.Admin.Email)
		}
		fmt.Printf("Profile:     #%d\n", res.ProfileID)
		fmt.Printf("Group:       #%d\n", res.GroupID)
		fmt.Printf("Discussions: %d\n", len(res.DiscussionIDs))
		fmt.Printf("Replies:     %d\n", len(res.ReplyIDs))
		fmt.Printf("Invite:      %s\n", forum.SeedInviteCode)
		return nil
	},
}

// status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "View database status",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Status")
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.Status(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("Migrations:  %d/%d\n", st.Migrations.Version, st.Migrations.Latest)
		fmt.Printf("Users:       %d\n", st.Users)
		fmt.Printf("Media:       %s\n", st.Media)
		fmt.Printf("Auth guard:  %t\n", st.AuthGuard)
		fmt.Printf("Production:  %t\n\n", st.Production)

		for _, es := range st.Entities {
			if !es.Synced {
				fmt.Printf("%-12s  not synced\n", es.Name)
				continue
			}
			fmt.Printf("%-12s  %d\n", es.Name, es.Rows)
		}
		printList("Unmanaged", st.Unmanaged)
		return nil
	},
}

// user command
var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage accounts",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an account",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		role, _ := cmd.Flags().GetString("role")

		password, err := readPassword()
		if err != nil {
			return err
		}

		a, err := newApp(cmd, "CreateUser")
		if err != nil {
			return err
		}
		defer a.Close()

		u, err := a.CreateUser(cmd.Context(), email, password, role)
		if err != nil {
			return fmt.Errorf("creating user: %w", err)
		}

		fmt.Printf("Created user #%d %s (%s)\n", u.ID, u.Email, u.Role)
		return nil
	},
}

var userCanCmd = &cobra.Command{
	Use:   "can EMAIL PERMISSION",
	Short: "Check whether an account holds a permission",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "CheckPermission")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.CheckPermission(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		if !a.Guard().Enabled() {
			fmt.Println("allowed (auth guard disabled)")
			return nil
		}
		fmt.Println("allowed")
		return nil
	},
}

// media command
var mediaCmd = &cobra.Command{
	Use:   "media",
	Short: "Manage uploaded files",
}

var mediaUploadCmd = &cobra.Command{
	Use:   "upload FILE",
	Short: "Upload a file as an attachment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		profile, _ := cmd.Flags().GetInt64("profile")
		discussion, _ := cmd.Flags().GetInt64("discussion")
		reply, _ := cmd.Flags().GetInt64("reply")

		a, err := newApp(cmd, "UploadAttachment")
		if err != nil {
			return err
		}
		defer a.Close()

		rec, err := a.UploadAttachment(cmd.Context(), args[0], app.AttachmentLinks{
			ProfileID:    profile,
			DiscussionID: discussion,
			ReplyID:      reply,
		})
		if err != nil {
			return fmt.Errorf("upload failed: %w", err)
		}

		fmt.Printf("Attachment #%d: %v (%v)\n", rec.ID(), rec["url"], rec["mime_type"])
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View operation history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd, "History")
		if err != nil {
			return err
		}
		defer a.Close()

		ops, err := a.History(cmd.Context(), limit)
		if err != nil {
			return err
		}

		if len(ops) == 0 {
			fmt.Println("No operations recorded.")
			return nil
		}

		for _, op := range ops {
			duration := ""
			if op.FinishedAt != nil {
				d := op.FinishedAt.Sub(op.StartedAt)
				duration = d.Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-16s  %s  %-8s  %-10s  %s\n",
				op.ID,
				op.Operation,
				op.StartedAt.Format("2006-01-02 15:04:05"),
				op.Status,
				duration,
				op.Parameters,
			)
		}
		return nil
	},
}

// backup command
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Manage database snapshots",
}

var backupKeygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate the key pair that seals snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		passphrase, err := readPassword()
		if err != nil {
			return err
		}

		a, err := newApp(cmd, "SetupSnapshotKeys")
		if err != nil {
			return err
		}
		defer a.Close()

		return a.SetupSnapshotKeys(passphrase)
	},
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Write a snapshot of the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Snapshot")
		if err != nil {
			return err
		}
		defer a.Close()

		path, err := a.Snapshot(cmd.Context())
		if err != nil {
			return fmt.Errorf("snapshot failed: %w", err)
		}

		fmt.Printf("Snapshot written to %s\n", path)
		return nil
	},
}

var backupOpenCmd = &cobra.Command{
	Use:   "open SNAPSHOT DEST",
	Short: "Decrypt a sealed snapshot",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		passphrase, err := readPassphrase()
		if err != nil {
			return err
		}

		a, err := newApp(cmd, "OpenSnapshot")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.OpenSnapshot(args[0], args[1], passphrase); err != nil {
			return err
		}

		fmt.Printf("Snapshot opened at %s\n", args[1])
		return nil
	},
}

func printList(label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Printf("%s: %s\n", label, strings.Join(items, ", "))
}

// readPassword prompts twice on a terminal, otherwise reads one line from stdin.
func readPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return readLine()
	}

	fmt.Fprint(os.Stderr, "Password: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	fmt.Fprint(os.Stderr, "Confirm password: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	if string(first) != string(second) {
		return "", fmt.Errorf("passwords do not match")
	}
	return string(first), nil
}

// readPassphrase prompts once on a terminal, otherwise reads one line from stdin.
func readPassphrase() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return readLine()
	}

	fmt.Fprint(os.Stderr, "Passphrase: ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

func readLine() (string, error) {
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading from stdin: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating jwt secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug output to stderr")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// user subcommands
	userCmd.AddCommand(userCreateCmd)
	userCreateCmd.Flags().String("email", "", "Account email address")
	userCreateCmd.Flags().String("role", "", "Role name (default role when empty)")
	userCreateCmd.MarkFlagRequired("email")
	userCmd.AddCommand(userCanCmd)

	// media subcommands
	mediaCmd.AddCommand(mediaUploadCmd)
	mediaUploadCmd.Flags().Int64("profile", 0, "Profile ID that owns the attachment")
	mediaUploadCmd.Flags().Int64("discussion", 0, "Discussion ID to attach to")
	mediaUploadCmd.Flags().Int64("reply", 0, "Reply ID to attach to")
	mediaUploadCmd.MarkFlagRequired("profile")

	// backup subcommands
	backupCmd.AddCommand(backupKeygenCmd)
	backupCmd.AddCommand(backupCreateCmd)
	backupCmd.AddCommand(backupOpenCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(schemaCmd)
	schemaCmd.Flags().StringP("format", "f", "json", "Output format: json, yaml or sql")
	rootCmd.AddCommand(typesCmd)
	typesCmd.Flags().StringP("out", "o", "", "Output file (default: types_file_path from config)")
	typesCmd.Flags().String("package", "cultivate", "Package name for the generated file")
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().Bool("force", false, "Rebuild tables whose columns changed")
	syncCmd.Flags().Bool("drop", false, "Drop columns and tables missing from the schema")
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(mediaCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
}
