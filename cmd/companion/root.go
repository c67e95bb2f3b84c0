package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/target/companion-client/config"
	"github.com/target/companion-client/internal/bootstrap"
	domainauth "github.com/target/companion-client/internal/domain/auth"
)

const sessionWaitTimeout = 10 * time.Second

type cli struct {
	in     *bufio.Reader
	out    io.Writer
	errOut io.Writer

	loadConfig func() (config.AppConfig, error)
	// transport replaces the network beneath the API pipeline. Nil uses the default transport.
	transport http.RoundTripper
}

func newCLI(in io.Reader, out, errOut io.Writer) *cli {
	return &cli{
		in:         bufio.NewReader(in),
		out:        out,
		errOut:     errOut,
		loadConfig: bootstrap.LoadConfig,
	}
}

func newRootCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "companion",
		Short:         "Terminal client for the learning companion",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(c.out)
	cmd.SetErr(c.errOut)

	cmd.AddCommand(
		newLoginCmd(c),
		newRegisterCmd(c),
		newLogoutCmd(c),
		newResetPasswordCmd(c),
		newWhoamiCmd(c),
		newDashboardCmd(c),
		newQuizzesCmd(c),
		newTopicsCmd(c),
		newAttemptsCmd(c),
		newPracticeCmd(c),
		newGradeCmd(c),
	)
	return cmd
}

// execute runs cmd and prints a user-facing message for any failure.
func execute(ctx context.Context, cmd *cobra.Command, errOut io.Writer) error {
	err := cmd.ExecuteContext(ctx)
	if err != nil {
		_, _ = fmt.Fprintln(errOut, "error:", userMessage(err))
	}
	return err
}

// withApp builds the client for one command and tears it down afterwards.
func (c *cli) withApp(cmd *cobra.Command, fn func(ctx context.Context, app *bootstrap.App) error) (err error) {
	ctx := cmd.Context()
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	logger := bootstrap.InitLogger(cfg.Observability.Logging.SlogLevel(), c.errOut)
	nav := newTerminalNavigator("/", c.errOut)

	app, err := bootstrap.NewApp(ctx, bootstrap.AppDeps{
		Config:       cfg,
		Navigator:    nav,
		Logger:       logger,
		APITransport: c.transport,
	})
	if err != nil {
		return fmt.Errorf("start client: %w", err)
	}
	defer func() {
		if cerr := app.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()

	waitCtx, cancel := context.WithTimeout(ctx, sessionWaitTimeout)
	defer cancel()
	if _, werr := app.Sessions.WaitForState(waitCtx, domainauth.SessionState.Resolved); werr != nil {
		return fmt.Errorf("resolve session: %w", werr)
	}
	return fn(ctx, app)
}

// prompt writes label to the error stream and reads one line of input.
func (c *cli) prompt(label string) (string, error) {
	_, _ = fmt.Fprint(c.errOut, label)
	line, err := c.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read %s: %w", strings.TrimSuffix(strings.ToLower(label), ": "), err)
	}
	return strings.TrimSpace(line), nil
}

// valueOrPrompt returns v when set, otherwise asks for it.
func (c *cli) valueOrPrompt(v, label string) (string, error) {
	if v != "" {
		return v, nil
	}
	return c.prompt(label)
}
