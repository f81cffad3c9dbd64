package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gnome-infra/bztogl/internal/migrate"
	"github.com/gnome-infra/bztogl/internal/phab"
	"github.com/gnome-infra/bztogl/internal/users"
)

var (
	phabURLFlag      string
	phabTokenFlag    string
	phabProjectFlags []string
	startAtFlag      int
	closeTasksFlag   bool
)

var phabCmd = &cobra.Command{
	Use:   "phab",
	Short: "Migrate open Phabricator tasks of one or more projects to GitLab",
	RunE:  runPhab,
}

func init() {
	phabCmd.Flags().StringVar(&phabURLFlag, "phab-url", "https://phabricator.freedesktop.org", "Phabricator instance URL")
	phabCmd.Flags().StringVar(&phabTokenFlag, "phab-token", "", "Phabricator Conduit API token")
	phabCmd.Flags().StringArrayVar(&phabProjectFlags, "project", nil, "Phabricator project name or hashtag (repeatable)")
	phabCmd.Flags().IntVar(&startAtFlag, "start-at", 0, "skip tasks with a lower id, to resume an interrupted run")
	phabCmd.Flags().BoolVar(&closeTasksFlag, "close-tasks", false, "close each source task after migrating it")
	phabCmd.MarkFlagRequired("project")
	rootCmd.AddCommand(phabCmd)
}

func runPhab(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	if targetProjectFlag == "" {
		return fmt.Errorf("--target-project is required for Phabricator migrations")
	}
	phabToken := setting(phabTokenFlag, "phabricator.token")
	if phabToken == "" {
		return fmt.Errorf("a Phabricator token is required (--phab-token or PHAB_TOKEN)")
	}

	token := setting(tokenFlag, "gitlab.token")
	target, err := connectGitLab(ctx, token, targetProjectFlag)
	if err != nil {
		return err
	}
	if err := checkTargetProject(ctx, target); err != nil {
		return err
	}

	source := phab.NewClient(phabURLFlag, phabToken)

	fmt.Printf("Connecting to %s\n", phabURLFlag)
	projects, err := source.Projects(ctx)
	if err != nil {
		return err
	}
	projectPHIDs, err := phab.ResolveProjects(projects, phabProjectFlags)
	if err != nil {
		return err
	}

	fmt.Printf("Querying for open tasks of %s\n", strings.Join(phabProjectFlags, ", "))
	tasks, err := source.QueryOpenTasks(ctx, projects, projectPHIDs)
	if err != nil {
		return err
	}
	fmt.Printf("%d tasks found\n", len(tasks))
	if len(tasks) == 0 {
		return nil
	}

	phabUsers, err := source.Users(ctx)
	if err != nil {
		return err
	}
	if err := source.LoadComments(ctx, tasks, phabUsers); err != nil {
		return err
	}

	// The project name, without the namespace, doubles as the product
	// name stripped off task labels.
	projectName := targetProjectFlag
	if i := strings.LastIndex(projectName, "/"); i >= 0 {
		projectName = projectName[i+1:]
	}

	cache := users.NewCache(migrate.GitLabDirectory{Client: target}, users.NoSource{})
	session := migrate.NewPhabSession(target, source, cache, phabUsers, projectName)
	session.StartAt = startAtFlag
	session.CloseTasks = closeTasksFlag

	return session.RunPhab(ctx, tasks)
}
