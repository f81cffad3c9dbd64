package main

import (
	"github.com/spf13/cobra"
)

var importProductFlag string

var importRepoCmd = &cobra.Command{
	Use:   "import-repo",
	Short: "Import a product's git repository into GitLab without migrating bugs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		token := setting(tokenFlag, "gitlab.token")
		target, err := connectGitLab(ctx, token, importProductFlag)
		if err != nil {
			return err
		}
		return importRepository(ctx, target, importProductFlag)
	},
}

func init() {
	importRepoCmd.Flags().StringVar(&importProductFlag, "product", "", "product name; also the repository name under the git origin")
	importRepoCmd.MarkFlagRequired("product")
	rootCmd.AddCommand(importRepoCmd)
}
