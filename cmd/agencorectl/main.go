package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/suPer8Hu/agencore/internal/config"
	"github.com/suPer8Hu/agencore/internal/db"
	"github.com/suPer8Hu/agencore/internal/logging"
)

var dsnFlag string

var rootCmd = &cobra.Command{
	Use:           "agencorectl",
	Short:         "Operator tool for the agencore chat platform",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		logging.Setup(cfg.LogLevel, "console")
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dsnFlag, "dsn", "", "database DSN (defaults to DB_DSN)")
}

func loadConfig() config.Config {
	cfg := config.Load()
	if dsnFlag != "" {
		cfg.DBDSN = dsnFlag
	}
	return cfg
}

func openDB() (*gorm.DB, error) {
	gdb, err := db.Open(loadConfig().DBDSN)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(gdb); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return gdb, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
