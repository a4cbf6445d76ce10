package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/tokmesh-client/internal/cli/output"
	"github.com/yndnr/tokmesh-client/internal/core/domain"
	"github.com/yndnr/tokmesh-client/internal/core/events"
	"github.com/yndnr/tokmesh-client/internal/core/service"
)

// maxPayloadSize bounds an imported payload.
const maxPayloadSize = 1 << 20

// ImportCommand stores a session handed over by a login flow.
func ImportCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Aliases:   []string{"login"},
		Usage:     "Store a session payload from a login flow",
		ArgsUsage: "[FILE|-]",
		Description: "Reads a JSON session payload from FILE or standard input:\n" +
			`  {"access_token": "...", "refresh_token": "...", "expires_in": 3600, "user": {"id": "..."}}`,
		Action: withRuntime(sessionImport),
	}
}

// StatusCommand shows the stored session.
func StatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the stored session",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "show-tokens",
				Usage: "Print tokens unmasked",
			},
		},
		Action: withRuntime(sessionStatus),
	}
}

// TokenCommand prints the current access token for scripts.
func TokenCommand() *cli.Command {
	return &cli.Command{
		Name:   "token",
		Usage:  "Print the access token of a valid session",
		Action: withRuntime(sessionToken),
	}
}

// RefreshCommand refreshes the stored session now.
func RefreshCommand() *cli.Command {
	return &cli.Command{
		Name:   "refresh",
		Usage:  "Refresh the stored session now",
		Action: withRuntime(sessionRefresh),
	}
}

// ValidateCommand asks the identity service whether the session is valid.
func ValidateCommand() *cli.Command {
	return &cli.Command{
		Name:   "validate",
		Usage:  "Check the stored session with the identity service",
		Action: withRuntime(sessionValidate),
	}
}

// LogoutCommand clears the stored session in every process.
func LogoutCommand() *cli.Command {
	return &cli.Command{
		Name:    "logout",
		Aliases: []string{"clear"},
		Usage:   "Clear the stored session",
		Action:  withRuntime(sessionLogout),
	}
}

// readPayload decodes a session payload from the named file or stdin.
func readPayload(c *cli.Context) (*domain.SessionPayload, error) {
	var r io.Reader = c.App.Reader
	if name := c.Args().First(); name != "" && name != "-" {
		f, err := os.Open(name)
		if err != nil {
			return nil, fmt.Errorf("open payload: %w", err)
		}
		defer f.Close()
		r = f
	}
	if r == nil {
		r = os.Stdin
	}

	var payload domain.SessionPayload
	dec := json.NewDecoder(io.LimitReader(r, maxPayloadSize))
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("parse payload: %w", err)
	}
	return &payload, nil
}

func sessionImport(c *cli.Context, rt *runtime) error {
	payload, err := readPayload(c)
	if err != nil {
		return err
	}

	rec, err := rt.manager.PersistSession(c.Context, payload)
	if err != nil {
		return fmt.Errorf("import session: %w", err)
	}

	rt.log.Info("session imported", "session_id", rec.SessionID, "user_id", rec.User.ID)
	return rt.render(output.NewSessionView(rec, rt.now(), false))
}

func sessionStatus(c *cli.Context, rt *runtime) error {
	rec, err := rt.restore(c.Context)
	if err != nil {
		return err
	}
	return rt.render(output.NewSessionView(rec, rt.now(), c.Bool("show-tokens")))
}

func sessionToken(c *cli.Context, rt *runtime) error {
	if _, err := rt.restore(c.Context); err != nil {
		return err
	}
	token := rt.manager.AccessToken()
	if token == "" {
		return errNoSession
	}
	fmt.Fprintln(rt.out, token)
	return nil
}

func sessionRefresh(c *cli.Context, rt *runtime) error {
	if _, err := rt.restore(c.Context); err != nil {
		return err
	}

	spinner := output.NewSpinner(rt.errOut, "Refreshing session", rt.interactive())
	spinner.Start()

	if err := rt.manager.RefreshSession(c.Context); err != nil {
		spinner.Fail("refresh failed")
		if errors.Is(err, domain.ErrRefreshTerminal) {
			return cli.Exit(fmt.Sprintf("session ended: %v", err), ExitNoSession)
		}
		return err
	}

	rec := rt.manager.CurrentSession()
	if rec == nil {
		spinner.Fail("session cleared during refresh")
		return errNoSession
	}
	spinner.Success("session refreshed")
	return rt.render(output.NewSessionView(rec, rt.now(), false))
}

func sessionValidate(c *cli.Context, rt *runtime) error {
	if _, err := rt.restore(c.Context); err != nil {
		return err
	}

	monitor := service.NewSessionMonitor(rt.manager, rt.remote, service.DefaultMonitorConfig(), service.MonitorDeps{},
		service.WithClock(rt.clock),
		service.WithLogger(rt.log),
		service.WithRecorder(rt.metrics),
		service.WithBus(rt.manager.Events()),
	)

	var cause error
	unsubscribe := rt.manager.Events().Subscribe(func(e events.Event) {
		cause = e.Err
	}, events.ValidityCheckFailed)
	defer unsubscribe()

	if !monitor.CheckSessionValidity(c.Context) {
		if cause == nil {
			cause = domain.ErrSessionExpired
		}
		return cli.Exit(fmt.Sprintf("session is not valid: %v", cause), ExitInvalidSession)
	}

	fmt.Fprintln(rt.out, "session is valid")
	return nil
}

func sessionLogout(c *cli.Context, rt *runtime) error {
	rt.manager.ClearSession(c.Context)
	rt.log.Info("session cleared")
	fmt.Fprintln(rt.out, "Session cleared.")
	return nil
}
