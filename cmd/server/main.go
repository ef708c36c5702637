package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"prismatica/internal/logger"
)

var version = "dev"

var configPath string

func main() {
	root := &cobra.Command{
		Use:          "prismatica",
		Short:        "Prismatica Labs site backend: scheduled content cache, chat and articles",
		Version:      version,
		SilenceUsage: true,
		RunE:         runServe,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (defaults are embedded)")

	root.AddCommand(
		newServeCmd(),
		newGenerateCmd(),
		newShowCmd(),
		newSyncArticlesCmd(),
		newRunsCmd(),
	)

	err := root.Execute()
	logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
