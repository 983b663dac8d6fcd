package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/havencare/chatsync/internal/config"
)

// RoomsCommand prints the rooms visible to the logged in user.
func RoomsCommand(ctx context.Context, cfg *config.Config, out io.Writer) error {
	token, _, err := loadCredential(cfg)
	if err != nil {
		return err
	}

	client := newAPIClient(cfg, token)
	defer client.Close()

	rooms, err := client.ListRooms(ctx)
	if err != nil {
		return fmt.Errorf("failed to list rooms: %w", err)
	}
	if len(rooms) == 0 {
		fmt.Fprintln(out, Dim("no rooms"))
		return nil
	}
	for _, r := range rooms {
		title := r.Title
		if title == "" {
			title = r.Slug
		}
		private := ""
		if r.IsPrivate {
			private = Yellow(" (private)")
		}
		fmt.Fprintf(out, "%s  %s%s\n", Bold(r.ID), title, private)
	}
	return nil
}
