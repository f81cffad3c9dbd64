package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gnome-infra/bztogl/internal/bugzilla"
	"github.com/gnome-infra/bztogl/internal/migrate"
	"github.com/gnome-infra/bztogl/internal/ui"
	"github.com/gnome-infra/bztogl/internal/users"
)

var (
	productFlag    string
	componentFlag  string
	bzUserFlag     string
	bzPasswordFlag string
	recreateFlag   bool
	onlyImportFlag bool
	userCacheFlag  string
)

var bugzillaCmd = &cobra.Command{
	Use:   "bugzilla",
	Short: "Migrate open Bugzilla bugs of a product to GitLab",
	RunE:  runBugzilla,
}

func init() {
	bugzillaCmd.Flags().StringVar(&productFlag, "product", "", "Bugzilla product name")
	bugzillaCmd.Flags().StringVar(&componentFlag, "component", "", "Bugzilla component name (default: all components)")
	bugzillaCmd.Flags().StringVar(&bzUserFlag, "bz-user", "", "Bugzilla username")
	bugzillaCmd.Flags().StringVar(&bzPasswordFlag, "bz-password", "", "Bugzilla password")
	bugzillaCmd.Flags().BoolVar(&recreateFlag, "recreate", false, "destroy the target project and import it from the original repository first")
	bugzillaCmd.Flags().BoolVar(&onlyImportFlag, "only-import", false, "only import the repository, skip the bug migration")
	bugzillaCmd.Flags().StringVar(&userCacheFlag, "user-cache", "", "path of a persisted email-to-account cache reused across runs")
	bugzillaCmd.MarkFlagRequired("product")
	rootCmd.AddCommand(bugzillaCmd)
}

func runBugzilla(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	token := setting(tokenFlag, "gitlab.token")
	target, err := connectGitLab(ctx, token, productFlag)
	if err != nil {
		return err
	}

	if recreateFlag {
		if err := importRepository(ctx, target, productFlag); err != nil {
			return err
		}
	}
	if onlyImportFlag {
		return nil
	}
	if err := checkTargetProject(ctx, target); err != nil {
		return err
	}

	fmt.Printf("Connecting to %s\n", bugzillaURL)
	source := bugzilla.NewClient(bugzillaURL)
	bzUser := setting(bzUserFlag, "bugzilla.user")
	bzPassword := setting(bzPasswordFlag, "bugzilla.password")
	if bzUser != "" && bzPassword != "" {
		if err := source.Login(ctx, bzUser, bzPassword); err != nil {
			return fmt.Errorf("bugzilla login failed: %w", err)
		}
	} else {
		fmt.Println(ui.RenderWarn("WARNING: Bugzilla credentials were not provided, BZ bugs won't be closed and subscribers won't notice the migration"))
	}

	if componentFlag != "" {
		fmt.Printf("Querying for open bugs for the '%s' product, '%s' component\n", productFlag, componentFlag)
	} else {
		fmt.Printf("Querying for open bugs for the '%s' product, all components\n", productFlag)
	}
	bugs, err := source.QueryOpenBugs(ctx, productFlag, componentFlag)
	if err != nil {
		return err
	}
	fmt.Printf("%d bugs found\n", len(bugs))
	if len(bugs) == 0 {
		return nil
	}

	cache := users.NewCache(migrate.GitLabDirectory{Client: target}, source)
	var persisted *users.PersistedCache
	if userCacheFlag != "" {
		persisted, err = users.LoadPersistedCache(userCacheFlag)
		if err != nil {
			return err
		}
		cache = cache.WithPersisted(persisted)
	}

	session := migrate.NewBugzillaSession(target, source, cache, productFlag)
	runErr := session.RunBugzilla(ctx, bugs)

	if persisted != nil {
		if err := persisted.Save(); err != nil {
			fmt.Println(ui.RenderWarn(fmt.Sprintf("Could not save the user cache: %v", err)))
		}
		fmt.Println(ui.RenderWarn(fmt.Sprintf("IMPORTANT: Remove the file '%s' after use, it contains sensitive data", persisted.Path())))
	}

	return runErr
}
