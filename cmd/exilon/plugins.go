package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Exilon-Studios/exiloncms.fr-sub002/internal/db"
	"github.com/Exilon-Studios/exiloncms.fr-sub002/internal/plugin"
)

var errNoDatabase = errors.New("no database configured (set database.url or EXILON_DATABASE_URL)")

func newPluginsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "Inspect and manage plugins",
	}
	cmd.AddCommand(
		newPluginsListCmd(),
		newPluginsMigrateCmd(),
		newPluginsUpdatesCmd(),
		newPluginsToggleCmd("enable", true),
		newPluginsToggleCmd("disable", false),
	)
	return cmd
}

func newPluginsListCmd() *cobra.Command {
	var asJSON, stored bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List discovered plugins and their activation status",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if stored {
				if a.Store == nil {
					return errNoDatabase
				}
				rows, err := a.Store.ListPlugins(cmd.Context())
				if err != nil {
					return err
				}
				return printStored(cmd.OutOrStdout(), rows, asJSON)
			}
			return printRecords(cmd.OutOrStdout(), a.Manager.List(), asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	cmd.Flags().BoolVar(&stored, "stored", false, "List the persisted plugin state instead of the plugins directory")
	return cmd
}

func printRecords(w io.Writer, records []plugin.Record, asJSON bool) error {
	if asJSON {
		return writeJSON(w, records)
	}
	if len(records) == 0 {
		fmt.Fprintln(w, "No plugins found.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tVERSION\tENABLED\tSTATUS\tREASON")
	for _, rec := range records {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\n", rec.ID(), rec.Manifest.Version, rec.Enabled, rec.Status, rec.Reason)
	}
	return tw.Flush()
}

func printStored(w io.Writer, rows []*plugin.StoredPlugin, asJSON bool) error {
	if asJSON {
		return writeJSON(w, rows)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tVERSION\tENABLED\tUPDATED")
	for _, p := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", p.ID, p.Version, p.Enabled, p.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

func newPluginsMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run host migrations and the migrations of every activated plugin",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			url := a.Config.Database.URL
			if url == "" {
				return errNoDatabase
			}
			if err := db.RunMigrations(url, a.Config.Database.MigrationsPath); err != nil {
				return err
			}
			pending := a.Migrations.List()
			if err := db.RunPluginMigrations(url, pending, a.Logger); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Migrated host and %d plugin(s).\n", len(pending))
			return nil
		},
	}
}

func newPluginsUpdatesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "updates",
		Short: "Check the marketplace for newer plugin releases",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			updates := a.Updates.Check(cmd.Context(), plugin.Installed(a.Manager.List()))
			out := cmd.OutOrStdout()
			if len(updates) == 0 {
				fmt.Fprintln(out, "All plugins are up to date.")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tINSTALLED\tLATEST\tDOWNLOAD")
			for _, u := range updates {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", u.ID, u.Installed, u.Latest, u.DownloadURL)
			}
			return tw.Flush()
		},
	}
}

// Enabling from the CLI only makes sense when the state is persisted.
func newPluginsToggleCmd(name string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <plugin-id>",
		Short: fmt.Sprintf("Persistently %s a plugin", name),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			if a.Store == nil {
				return errNoDatabase
			}

			var out plugin.Outcome
			if enabled {
				out, err = a.Manager.Enable(cmd.Context(), args[0])
			} else {
				out, err = a.Manager.Disable(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", out.PluginID, out.Status)
			if out.Reason != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", out.Reason)
			}
			return nil
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
