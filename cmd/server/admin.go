package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sujalbistaa/setor7/internal/service"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Administrator management",
}

var bootstrapEmail string

var adminBootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Promote the first administrator (only while no admin exists)",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		entry, err := a.svc.Moderation.BootstrapAdmin(cmd.Context(), bootstrapEmail)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Promoted %s (%s) to administrator\n", bootstrapEmail, entry.AdminID)
		return nil
	},
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the moderation log",
}

var auditLimit int

var auditExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write recent moderation log entries as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.svc.Queries.ModerationLog(cmd.Context(), auditLimit)
		if err != nil {
			return err
		}
		return writeAudit(cmd.OutOrStdout(), entries)
	},
}

type auditRecord struct {
	ID         string    `yaml:"id"`
	CreatedAt  time.Time `yaml:"created_at"`
	Action     string    `yaml:"action"`
	Admin      string    `yaml:"admin"`
	TargetUser string    `yaml:"target_user,omitempty"`
	Story      string    `yaml:"story,omitempty"`
	Reason     string    `yaml:"reason,omitempty"`
}

type auditExport struct {
	ExportedAt time.Time     `yaml:"exported_at"`
	Entries    []auditRecord `yaml:"entries"`
}

func writeAudit(w io.Writer, entries []service.ModerationLogView) error {
	export := auditExport{ExportedAt: time.Now().UTC(), Entries: make([]auditRecord, 0, len(entries))}
	for _, e := range entries {
		rec := auditRecord{
			ID:        e.ID.String(),
			CreatedAt: e.CreatedAt.UTC(),
			Action:    string(e.ActionType),
			Admin:     e.AdminID.String(),
		}
		if e.Admin != nil {
			rec.Admin = e.Admin.Username
		}
		if e.TargetUserID != nil {
			rec.TargetUser = e.TargetUserID.String()
			if e.TargetUser != nil {
				rec.TargetUser = e.TargetUser.Username
			}
		}
		if e.TargetStoryID != nil {
			rec.Story = e.TargetStoryID.String()
		}
		if e.Reason != nil {
			rec.Reason = *e.Reason
		}
		export.Entries = append(export.Entries, rec)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&export); err != nil {
		return fmt.Errorf("encoding audit export: %w", err)
	}
	return enc.Close()
}

func init() {
	adminBootstrapCmd.Flags().StringVar(&bootstrapEmail, "email", "", "email of the account to promote")
	_ = adminBootstrapCmd.MarkFlagRequired("email")
	adminCmd.AddCommand(adminBootstrapCmd)

	auditExportCmd.Flags().IntVar(&auditLimit, "limit", service.DefaultLogLimit, "number of most recent entries")
	auditCmd.AddCommand(auditExportCmd)
}
