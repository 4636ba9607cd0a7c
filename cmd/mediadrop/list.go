package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	faint = color.New(color.Faint).SprintFunc()
	bold  = color.New(color.Bold).SprintFunc()
	cyan  = color.New(color.FgCyan).SprintFunc()
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List live download codes, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		cfg, err := loadSharedConfig()
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		uploads, err := a.UploadService.List(cmd.Context(), limit)
		if err != nil {
			return fmt.Errorf("failed to list uploads: %w", err)
		}
		if len(uploads) == 0 {
			fmt.Println("No live codes.")
			return nil
		}

		now := time.Now()
		for _, b := range uploads {
			name := b.OriginalName
			if name == "" {
				name = b.Code + b.Extension
			}
			fmt.Printf("  %s  %s  %s\n", bold(b.Code), name, cyan(b.MimeType))
			fmt.Printf("        %s %s", faint("Created:"), faint(humanize.RelTime(b.CreatedAt, now, "ago", "from now")))
			if a.Policy.TTL > 0 {
				fmt.Printf("  %s %s", faint("Expires:"), faint(humanize.Time(b.CreatedAt.Add(a.Policy.TTL))))
			}
			fmt.Println()
		}
		return nil
	},
}

func init() {
	listCmd.Flags().IntP("limit", "n", 20, "maximum number of codes to show (1-100)")
	rootCmd.AddCommand(listCmd)
}
