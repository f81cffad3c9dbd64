// bztogl migrates open Bugzilla bugs and Phabricator tasks into GitLab
// issues, preserving authorship, timestamps, attachments, labels, and
// relations as faithfully as the GitLab API allows.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
