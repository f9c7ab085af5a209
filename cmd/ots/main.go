package main

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"ots-go/internal/app"
	"ots-go/internal/config"
	"ots-go/internal/ots"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an OTSApp. The caller must defer
// app.Close(). operation identifies the CLI command being run (e.g. "Upload").
func newApp(operation string) (*app.OTSApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewOTSApp(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// promptPassword reads a password from the terminal without echo.
func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(pw), nil
}

var rootCmd = &cobra.Command{
	Use:   "ots",
	Short: "One-time secure file exchange",
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

		cfg := config.NewConfig(defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
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

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:    %s\n", cfg.LogDir)
		fmt.Printf("Base URL:   %s\n", cfg.BaseURL)
		fmt.Printf("Store:      %s\n", cfg.Store.Type)
		fmt.Printf("Blob store: %s\n", cfg.Blob.Type)
		return nil
	},
}

// upload command
var uploadCmd = &cobra.Command{
	Use:   "upload FILE",
	Short: "Upload a file for one-time retrieval",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, _ := cmd.Flags().GetString("password")
		name, _ := cmd.Flags().GetString("name")

		a, err := newApp("Upload")
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Upload(args[0], password, name)
		if err != nil {
			return fmt.Errorf("upload failed: %w", err)
		}

		fmt.Printf("Token:    %s\n", res.Token)
		fmt.Printf("Download: %s\n", res.DownloadURL)
		fmt.Printf("Info:     %s\n", res.InfoURL)
		if res.Protected {
			fmt.Println("Password protected: yes")
		}
		return nil
	},
}

// download command
var downloadCmd = &cobra.Command{
	Use:   "download TOKEN",
	Short: "Retrieve a file (destroys it)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, _ := cmd.Flags().GetString("password")
		output, _ := cmd.Flags().GetString("output")
		token := args[0]

		a, err := newApp("Download")
		if err != nil {
			return err
		}
		defer a.Close()

		// A protected secret needs a password before the consume is
		// attempted; prompt rather than burning the token on a refusal.
		if password == "" {
			st, err := a.Status(token)
			if err != nil {
				return err
			}
			if !st.Exists {
				return ots.ErrNotFound
			}
			if st.LockedOut {
				return ots.ErrLockedOut
			}
			if st.Protected {
				password, err = promptPassword("Password: ")
				if err != nil {
					return err
				}
			}
		}

		path, err := a.Download(token, password, output)
		if err != nil {
			var wrong *ots.WrongPasswordError
			if errors.As(err, &wrong) {
				return fmt.Errorf("wrong password, %d attempt(s) remaining", wrong.Remaining)
			}
			return err
		}

		fmt.Printf("Saved to %s\n", path)
		fmt.Println("The file has been destroyed on the server.")
		return nil
	},
}

// status command
var statusCmd = &cobra.Command{
	Use:   "status TOKEN",
	Short: "Check whether a file is still retrievable",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Status")
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.Status(args[0])
		if err != nil {
			return err
		}

		if !st.Exists {
			fmt.Println("Not available (never existed, expired, or already retrieved).")
			return nil
		}
		fmt.Println("Available.")
		if st.Protected {
			if st.LockedOut {
				fmt.Println("Password protected: locked out, no attempts remaining.")
			} else {
				fmt.Printf("Password protected: %d attempt(s) remaining.\n", st.AttemptsRemaining)
			}
		}
		return nil
	},
}

// reconcile command
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Sweep orphaned blobs and metadata",
	RunE: func(cmd *cobra.Command, args []string) error {
		resetCounters, _ := cmd.Flags().GetBool("reset-counters")

		a, err := newApp("Reconcile")
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.Reconcile()
		if err != nil {
			return fmt.Errorf("reconciliation failed: %w", err)
		}

		fmt.Printf("Blobs:   %d checked, %d removed\n", report.OrphanBlobs.Checked, report.OrphanBlobs.Removed)
		fmt.Printf("Records: %d checked, %d removed\n", report.OrphanMetadata.Checked, report.OrphanMetadata.Removed)

		if resetCounters {
			if err := a.ResetCounters(); err != nil {
				return fmt.Errorf("resetting counters: %w", err)
			}
			fmt.Println("Usage counters reset.")
		}
		return nil
	},
}

// stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "View usage counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Stats")
		if err != nil {
			return err
		}
		defer a.Close()

		counters, err := a.Counters()
		if err != nil {
			return err
		}

		for _, name := range ots.CounterNames {
			fmt.Printf("%-22s %d\n", name, counters[name])
		}
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(uploadCmd)
	uploadCmd.Flags().StringP("password", "p", "", "Protect the file with a password")
	uploadCmd.Flags().StringP("name", "n", "", "Filename offered to the recipient (default: file's base name)")
	rootCmd.AddCommand(downloadCmd)
	downloadCmd.Flags().StringP("password", "p", "", "Password for a protected file")
	downloadCmd.Flags().StringP("output", "o", "", "Output path (default: uploaded filename)")
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(reconcileCmd)
	reconcileCmd.Flags().Bool("reset-counters", false, "Zero the usage counters after the sweep")
	rootCmd.AddCommand(statsCmd)
}
