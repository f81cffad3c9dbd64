package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gnome-infra/bztogl/internal/debug"
	"github.com/gnome-infra/bztogl/internal/gitlab"
	"github.com/gnome-infra/bztogl/internal/ui"
)

const (
	productionGitLabURL = "https://gitlab.gnome.org"
	testingGitLabURL    = "https://gitlab-test.gnome.org"
	bugzillaURL         = "https://bugzilla.gnome.org"

	// gitOriginPrefix is where project repositories are imported from.
	gitOriginPrefix = "https://git.gnome.org/browse/"
)

var (
	tokenFlag         string
	targetProjectFlag string
	productionFlag    bool
	automateFlag      bool
	verboseFlag       bool
	quietFlag         bool
)

var rootCmd = &cobra.Command{
	Use:   "bztogl",
	Short: "Migrate Bugzilla bugs and Phabricator tasks to GitLab issues",
	Long: `bztogl moves open bugs out of Bugzilla (and tasks out of Phabricator)
into GitLab issues. Authorship, timestamps, attachments, labels, milestones
and bug relations are carried over; migrated source bugs are closed with a
pointer to their new home when credentials allow it.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verboseFlag {
			debug.SetVerbose(true)
		}
		if quietFlag {
			debug.SetQuiet(true)
		}
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&tokenFlag, "token", "", "GitLab API token")
	rootCmd.PersistentFlags().StringVar(&targetProjectFlag, "target-project", "", "target GitLab project as USERNAME/PROJECT (default: your namespace + product name)")
	rootCmd.PersistentFlags().BoolVar(&productionFlag, "production", false, "target "+productionGitLabURL+" instead of "+testingGitLabURL)
	rootCmd.PersistentFlags().BoolVar(&automateFlag, "automate", false, "never prompt; assume yes on confirmations")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "suppress non-essential output")
}

// initConfig wires the config-file and environment fallbacks. Flags win,
// then ~/.config/bztogl.yaml, then the environment.
func initConfig() {
	viper.SetConfigName("bztogl")
	viper.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(home + "/.config")
	}
	if err := viper.ReadInConfig(); err == nil {
		debug.Logf("using config file %s", viper.ConfigFileUsed())
	}

	viper.BindEnv("gitlab.token", "GITLAB_TOKEN")
	viper.BindEnv("bugzilla.user", "BUGZILLA_USER")
	viper.BindEnv("bugzilla.password", "BUGZILLA_PASSWORD")
	viper.BindEnv("phabricator.token", "PHAB_TOKEN")
}

// setting resolves one credential: explicit flag first, then config
// file or environment.
func setting(flagValue, key string) string {
	if flagValue != "" {
		return flagValue
	}
	return viper.GetString(key)
}

func gitlabBaseURL() string {
	if productionFlag {
		return productionGitLabURL
	}
	return testingGitLabURL
}

// signalContext cancels on SIGINT/SIGTERM so a half-done migration
// stops between issues instead of mid-issue.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// connectGitLab builds the target client, defaulting the project path
// to <username>/<product> when no --target-project was given.
func connectGitLab(ctx context.Context, token, product string) (*gitlab.Client, error) {
	if token == "" {
		return nil, fmt.Errorf("a GitLab token is required (--token or GITLAB_TOKEN)")
	}

	targetProject := targetProjectFlag
	if targetProject == "" {
		me, err := gitlab.NewClient(token, gitlabBaseURL(), "").CurrentUser(ctx)
		if err != nil {
			return nil, fmt.Errorf("could not identify the GitLab token owner: %w", err)
		}
		targetProject = me.Username + "/" + product
		fmt.Printf("Using target project `%s` since --target-project was not provided\n", targetProject)
	}

	return gitlab.NewClient(token, gitlabBaseURL(), targetProject), nil
}

// checkTargetProject verifies the target exists before any migration
// work starts.
func checkTargetProject(ctx context.Context, client *gitlab.Client) error {
	if _, err := client.GetProject(ctx); err != nil {
		fmt.Println(ui.RenderFail(fmt.Sprintf("ERROR: Could not access the project `%s` - are you sure it exists?", client.ProjectID)))
		fmt.Println("You can use the --target-project=username/project option if the project name")
		fmt.Println("is different from the Bugzilla product name.")
		return fmt.Errorf("target project %s is not accessible: %w", client.ProjectID, err)
	}
	return nil
}

// confirmDeletion reads one line and accepts only an explicit "Y".
// A bare Enter, EOF, or anything else declines.
func confirmDeletion(r io.Reader) bool {
	var answer string
	fmt.Fscanln(r, &answer)
	return answer == "Y"
}

// importRepository imports the product's git repository into the target
// project, deleting any existing project first (after confirmation).
func importRepository(ctx context.Context, client *gitlab.Client, product string) error {
	importURL := gitOriginPrefix + product
	fmt.Printf("Importing project from %s to %s\n", importURL, client.ProjectID)

	if existing, err := client.GetProject(ctx); err == nil {
		fmt.Println("##############################################")
		fmt.Println("#                  WARNING                   #")
		fmt.Println("##############################################")
		fmt.Println("THIS WILL DELETE YOUR PROJECT IN GITLAB.")
		fmt.Println("ARE YOU SURE YOU WANT TO CONTINUE? Y/N")

		confirmed := false
		if automateFlag {
			fmt.Println("Y (automated)")
			confirmed = true
		} else {
			confirmed = confirmDeletion(os.Stdin)
		}
		if !confirmed {
			fmt.Println("Bugs will be added to the existing project")
			return nil
		}
		if err := client.DeleteProject(ctx, existing.ID); err != nil {
			return fmt.Errorf("could not remove project %s: %w", client.ProjectID, err)
		}
	}

	path := client.ProjectID
	if i := strings.LastIndex(path, "/"); i >= 0 {
		path = path[i+1:]
	}
	project, err := client.CreateProject(ctx, product, path, importURL)
	if err != nil {
		return err
	}

	fmt.Println("Importing project, this may take a while")
	if _, err := client.WaitForImport(ctx, project.ID, time.Second); err != nil {
		return err
	}
	fmt.Println(ui.RenderPass("Import finished"))
	return nil
}
