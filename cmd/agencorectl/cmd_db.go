package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/suPer8Hu/agencore/internal/activity"
	"github.com/suPer8Hu/agencore/internal/chat"
)

func init() {
	rootCmd.AddCommand(migrateCmd, cleanupCmd)
	cleanupCmd.Flags().Int("days", 90, "delete data older than this many days")
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := openDB(); err != nil {
			return err
		}
		fmt.Println("Schema up to date.")
		return nil
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete old conversations, messages and activity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		days, _ := cmd.Flags().GetInt("days")
		if days <= 0 {
			return fmt.Errorf("--days must be positive")
		}
		gdb, err := openDB()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		age := time.Duration(days) * 24 * time.Hour

		res, err := chat.NewService(chat.NewRepo(gdb)).Cleanup(ctx, age)
		if err != nil {
			return fmt.Errorf("cleanup conversations: %w", err)
		}
		events, err := activity.NewGormSink(gdb).CleanupOlderThan(ctx, time.Now().Add(-age))
		if err != nil {
			return fmt.Errorf("cleanup activity: %w", err)
		}
		fmt.Printf("Deleted %d conversations, %d messages, %d activity rows older than %d days.\n",
			res.Conversations, res.Messages, events, days)
		return nil
	},
}
