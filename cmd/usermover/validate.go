package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"usermover/internal/config"
	"usermover/internal/storage"
)

func newValidateCmd() *cobra.Command {
	var cfgPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a job file and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, iss := range config.ValidateJob(job) {
				fmt.Fprintf(out, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
			}
			if _, err := config.Check(job); err != nil {
				return fmt.Errorf("%s: %w", cfgPath, err)
			}
			fmt.Fprintf(out, "configuration is valid: %s\n", cfgPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "job.json", "job file path (JSON)")
	return cmd
}

func newKindsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kinds",
		Short: "List the storage kinds built into the binary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, k := range storage.ListKinds() {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			return nil
		},
	}
}
