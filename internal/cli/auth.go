// Package cli implements the chatsync commands.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/havencare/chatsync/internal/api"
	"github.com/havencare/chatsync/internal/auth"
	"github.com/havencare/chatsync/internal/chat"
	"github.com/havencare/chatsync/internal/config"
	"github.com/havencare/chatsync/internal/storage"
	"github.com/havencare/chatsync/pkg/logger"
	"golang.org/x/term"
)

// ErrNotLoggedIn is returned by commands that need a stored credential.
var ErrNotLoggedIn = errors.New("not logged in, run `chatsync login` first")

// LoginCommand prompts for credentials, exchanges them for a token and stores
// it under the chatsync home directory.
func LoginCommand(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)

	fmt.Fprint(out, Cyan("Email:")+" ")
	email, err := readLine(reader)
	if err != nil {
		return fmt.Errorf("failed to read email: %w", err)
	}
	if email == "" {
		return errors.New("email is required")
	}

	fmt.Fprint(out, Cyan("Password:")+" ")
	password, err := readPassword(in, reader)
	fmt.Fprintln(out)
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}

	client := newAPIClient(cfg, "")
	defer client.Close()

	res, err := client.Login(ctx, email, password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	if err := storage.SaveToken(cfg.TokenPath, res.AccessToken); err != nil {
		return err
	}
	logger.Debugf("Token stored at %s", cfg.TokenPath)

	name := res.User.Name
	if name == "" {
		name = res.User.Email
	}
	fmt.Fprintf(out, "%s Logged in as %s\n", Green("✓"), name)
	return nil
}

// LogoutCommand removes the stored credential.
func LogoutCommand(cfg *config.Config, out io.Writer) error {
	if err := storage.DeleteToken(cfg.TokenPath); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s Logged out\n", Green("✓"))
	return nil
}

// newAPIClient builds the REST client for cfg. An empty token leaves the
// client anonymous.
func newAPIClient(cfg *config.Config, token string) *api.Client {
	var opts []api.Option
	if token != "" {
		opts = append(opts, api.WithToken(token))
	}
	if cfg.APITimeout > 0 {
		opts = append(opts, api.WithTimeout(cfg.APITimeout))
	}
	return api.NewClient(cfg.APIURL, opts...)
}

// loadCredential returns the stored token and the identity to author
// messages with. Configured ids take precedence over token claims.
func loadCredential(cfg *config.Config) (string, chat.Identity, error) {
	token, err := storage.LoadToken(cfg.TokenPath)
	if errors.Is(err, storage.ErrNoToken) {
		return "", chat.Identity{}, ErrNotLoggedIn
	}
	if err != nil {
		return "", chat.Identity{}, err
	}

	self := chat.Identity{UserID: cfg.UserID, Name: cfg.UserName}
	if self.UserID == "" {
		id, err := auth.IdentityFromToken(token)
		if err != nil {
			logger.Warnf("Cannot read identity from token: %v", err)
			self.UserID = "me"
		} else {
			self.UserID = id.UserID
			if self.Name == "" {
				self.Name = id.UserName
			}
		}
	}
	if self.Name == "" {
		self.Name = self.UserID
	}
	return token, self, nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// readPassword reads without echo when in is a terminal.
func readPassword(in io.Reader, buffered *bufio.Reader) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	return readLine(buffered)
}
