package telegram

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gotd/td/session"
	gotdtelegram "github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
)

// newGotdSessionStorage persists the MTProto session at path, creating the
// parent directory owner-only.
func newGotdSessionStorage(path string) (*session.FileStorage, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("empty session file path")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve absolute session file path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o700); err != nil {
		return nil, fmt.Errorf("create session directory %s: %w", filepath.Dir(absPath), err)
	}

	return &session.FileStorage{Path: absPath}, nil
}

// gotdAuthenticatedClient runs the gotd client and logs in before handing
// the connection to the caller.
type gotdAuthenticatedClient struct {
	client       *gotdtelegram.Client
	authenticate func(ctx context.Context) error
}

func (c gotdAuthenticatedClient) Run(ctx context.Context, fn func(runCtx context.Context) error) error {
	switch {
	case c.client == nil:
		return fmt.Errorf("run gotd authenticated client: nil client")
	case c.authenticate == nil:
		return fmt.Errorf("run gotd authenticated client: nil authenticate callback")
	case fn == nil:
		return fmt.Errorf("run gotd authenticated client: nil run callback")
	}

	err := c.client.Run(ctx, func(runCtx context.Context) error {
		if err := c.authenticate(runCtx); err != nil {
			return fmt.Errorf("%w: %w", errAuthentication, err)
		}
		if err := fn(runCtx); err != nil {
			return fmt.Errorf("run gotd client callback: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("run gotd authenticated client: %w", err)
	}

	return nil
}

// authenticateGotdClient reuses a stored session, else logs in with the bot
// token, else runs the user code flow. The account ID is recorded in self.
func authenticateGotdClient(
	ctx context.Context,
	logger *slog.Logger,
	client *gotdtelegram.Client,
	self *SelfIdentity,
	cfg parsedRuntimeConfig,
) error {
	if client == nil {
		return fmt.Errorf("authenticate gotd client: nil client")
	}

	authCtx, cancel := context.WithTimeout(ctx, cfg.authTimeout)
	defer cancel()

	status, err := client.Auth().Status(authCtx)
	if err != nil {
		return fmt.Errorf("check auth status: %w", err)
	}

	method := "stored session"
	switch {
	case status.Authorized:
	case cfg.botToken != "":
		method = "bot token"
		if _, err := client.Auth().Bot(authCtx, cfg.botToken); err != nil {
			return fmt.Errorf("authenticate bot: %w", err)
		}
	default:
		method = "user login"
		if err := authenticateUser(authCtx, client, cfg); err != nil {
			return err
		}
	}

	me, err := client.Self(authCtx)
	if err != nil {
		return fmt.Errorf("resolve self: %w", err)
	}
	self.Set(me.ID)
	logger.InfoContext(ctx, "telegram authorized",
		"method", method,
		"user_id", me.ID,
		"username", me.Username,
		"session_file", cfg.sessionFile,
	)

	return nil
}

func authenticateUser(ctx context.Context, client *gotdtelegram.Client, cfg parsedRuntimeConfig) error {
	if cfg.phone == "" {
		return fmt.Errorf("telegram phone number is required for user login; configure phone or bot_token")
	}

	codePrompt := auth.CodeAuthenticatorFunc(func(context.Context, *tg.AuthSentCode) (string, error) {
		code, err := loginCode(cfg.code)
		if err != nil {
			return "", fmt.Errorf("resolve login code: %w", err)
		}
		return code, nil
	})

	var authenticator auth.UserAuthenticator = auth.CodeOnly(cfg.phone, codePrompt)
	if cfg.password != "" {
		authenticator = auth.Constant(cfg.phone, cfg.password, codePrompt)
	}
	if err := client.Auth().IfNecessary(ctx, auth.NewFlow(authenticator, auth.SendCodeOptions{})); err != nil {
		return fmt.Errorf("authenticate user: %w", err)
	}

	return nil
}

// loginCode prefers the configured code and otherwise prompts on an
// interactive terminal.
func loginCode(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}

	info, err := os.Stdin.Stat()
	if err != nil {
		return "", fmt.Errorf("read stdin status: %w", err)
	}
	if info.Mode()&os.ModeCharDevice == 0 {
		return "", fmt.Errorf("telegram.code is empty and stdin is not interactive")
	}

	fmt.Fprint(os.Stdout, "Enter Telegram login code: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read login code: %w", err)
	}
	if code := strings.TrimSpace(line); code != "" {
		return code, nil
	}

	return "", fmt.Errorf("empty login code")
}
