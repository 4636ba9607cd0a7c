package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every code and archived file",
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")

		cfg, err := loadSharedConfig()
		if err != nil {
			return err
		}

		if !yes {
			color.Yellow("This deletes every code. Links already shared stop working.")
			fmt.Print("\nType 'clear' to confirm: ")

			reader := bufio.NewReader(os.Stdin)
			confirmation, _ := reader.ReadString('\n')
			if strings.TrimSpace(confirmation) != "clear" {
				fmt.Println("Aborted.")
				return nil
			}
		}

		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.UploadService.ClearAll(cmd.Context()); err != nil {
			return fmt.Errorf("clear failed: %w", err)
		}
		color.Green("✓ All codes cleared")
		return nil
	},
}

func init() {
	clearCmd.Flags().BoolP("yes", "y", false, "skip the confirmation prompt")
	rootCmd.AddCommand(clearCmd)
}
