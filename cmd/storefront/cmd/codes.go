package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mortasa/storefront/access"
	"github.com/mortasa/storefront/storage"
)

var codesCmd = &cobra.Command{
	Use:   "codes",
	Short: "Administer admin access codes",
	Long: `Offline administration of admin access codes against the configured
backend. Sessions held by a running server for a deleted code are rejected
on their next request.`,
}

// withService opens the configured backend and runs fn with an access
// service on top of it.
func withService(cmd *cobra.Command, fn func(svc *access.Service) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	repo, err := openRepository(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	svc := access.NewService(repo, access.NewSessionRegistry(),
		access.WithMasterCode(cfg.MasterCode),
		access.WithLogger(newLogger(cfg).With("component", "access")),
	)
	return fn(svc)
}

var codesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List access codes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(svc *access.Service) error {
			codes, err := svc.ListCodes(cmd.Context())
			if err != nil {
				return err
			}
			printCodes(cmd.OutOrStdout(), codes)
			return nil
		})
	},
}

var codesAddCmd = &cobra.Command{
	Use:   "add <code> <label>",
	Short: "Create a regular access code",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(svc *access.Service) error {
			code, err := svc.CreateCode(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created access code %s (%s)\n", code.ID, code.Label)
			return nil
		})
	},
}

var codesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a regular access code",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(svc *access.Service) error {
			d, err := svc.DeleteCode(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted access code %s (%s)\n", d.Code.ID, d.Code.Label)
			return nil
		})
	},
}

var codesBootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Create the master access code if it does not exist",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(svc *access.Service) error {
			created, err := svc.EnsureMaster(cmd.Context())
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintln(cmd.OutOrStdout(), "master access code created")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "master access code already exists")
			}
			return nil
		})
	},
}

// printCodes writes one row per code. Code values are secrets and are
// never printed.
func printCodes(w io.Writer, codes []storage.AccessCode) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tLABEL\tMASTER\tCREATED")
	for _, c := range codes {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", c.ID, c.Label, c.IsMaster, c.CreatedAt.Format(time.RFC3339))
	}
	tw.Flush()
}

func init() {
	rootCmd.AddCommand(codesCmd)
	codesCmd.AddCommand(codesListCmd, codesAddCmd, codesDeleteCmd, codesBootstrapCmd)
}
