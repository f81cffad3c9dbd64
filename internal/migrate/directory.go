package migrate

import (
	"context"

	"github.com/gnome-infra/bztogl/internal/gitlab"
	"github.com/gnome-infra/bztogl/internal/users"
)

// GitLabDirectory adapts the GitLab client to the identity resolver's
// account lookup.
type GitLabDirectory struct {
	Client *gitlab.Client
}

func (d GitLabDirectory) FindByEmail(ctx context.Context, email string) (*users.Account, error) {
	u, err := d.Client.SearchUserByEmail(ctx, email)
	if err != nil || u == nil {
		return nil, err
	}
	return &users.Account{ID: u.ID, Username: u.Username, Name: u.Name}, nil
}
