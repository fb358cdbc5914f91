package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/n0madic/go-callview/internal/config"
)

type rootOptions struct {
	configFile string
	logLevel   string
	output     string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           config.AppName,
		Short:         "Normalize traced LLM calls into a vendor-neutral chat transcript",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       config.Version,
	}
	root.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "YAML config file (CALLVIEW_* environment variables take precedence)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override log.level (debug|info|warn|error)")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", formatJSON, "Output format (json|yaml)")

	root.AddCommand(
		newServeCmd(opts),
		newClassifyCmd(opts),
		newRefsCmd(opts),
		newNormalizeCmd(opts),
		newChatCmd(opts),
		newPlaygroundCmd(opts),
		newModelsCmd(opts),
	)
	return root
}
