package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"

	"github.com/yndnr/tokmesh-client/internal/client/config"
	"github.com/yndnr/tokmesh-client/internal/core/domain"
	"github.com/yndnr/tokmesh-client/internal/core/service"
	"github.com/yndnr/tokmesh-client/internal/infra/buildinfo"
	"github.com/yndnr/tokmesh-client/internal/infra/confloader"
	"github.com/yndnr/tokmesh-client/internal/infra/tlsroots"
	"github.com/yndnr/tokmesh-client/internal/remote"
	"github.com/yndnr/tokmesh-client/internal/storage"
	"github.com/yndnr/tokmesh-client/internal/telemetry/logger"
	"github.com/yndnr/tokmesh-client/internal/telemetry/metric"
)

// clockMetadataKey holds an optional clockwork.Clock in App.Metadata.
const clockMetadataKey = "clock"

// errNoSession is returned by commands that need a stored session.
var errNoSession = cli.Exit("no active session; import one with 'tokmesh-session import'", ExitNoSession)

// runtime is everything a command needs, built from the effective
// configuration.
type runtime struct {
	clock   clockwork.Clock
	flags   *GlobalFlags
	cfg     *config.ClientConfig
	loader  *confloader.Loader
	log     logger.Logger
	metrics *metric.SessionMetrics
	backend storage.Backend
	store   *storage.Store
	remote  service.RemoteSessionService
	certs   *tlsroots.CertWatcher
	manager *service.SessionManager

	out    io.Writer
	errOut io.Writer
}

// newRuntime loads the configuration and wires the session manager.
// The caller must Close the runtime.
func newRuntime(c *cli.Context) (*runtime, error) {
	flags := ParseGlobalFlags(c)
	overrides, err := flags.Overrides()
	if err != nil {
		return nil, err
	}

	// 1. Configuration
	cfg, loader, err := config.Load(flags.ConfigPath, overrides)
	if err != nil {
		return nil, err
	}

	// 2. Logger
	log, err := logger.New(logger.Config{
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
		Output:    c.App.ErrWriter,
		Component: buildinfo.Name,
	})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	logger.SetDefault(log)

	rt := &runtime{
		clock:   appClock(c),
		flags:   flags,
		cfg:     cfg,
		loader:  loader,
		log:     log,
		metrics: metric.NewSessionMetrics(),
		out:     c.App.Writer,
		errOut:  c.App.ErrWriter,
	}

	// 3. Storage
	if err := rt.openStore(c.Context); err != nil {
		return nil, err
	}

	// 4. Identity service
	client, certs, err := newHTTPClient(cfg, log)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.certs = certs
	rt.remote = newRemote(cfg, client)

	// 5. Session manager
	rt.manager = service.NewSessionManager(rt.store, rt.remote, config.ToManagerConfig(cfg),
		service.WithClock(rt.clock),
		service.WithLogger(log),
		service.WithRecorder(rt.metrics),
	)

	log.Debug("runtime ready",
		"storage", cfg.Storage.Type,
		"remote", cfg.Remote.Type,
		"config_file", loader.FilePath(),
	)
	return rt, nil
}

func (rt *runtime) openStore(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	backend, err := storage.Open(ctx, rt.cfg.Storage, logger.AsSlog(rt.log))
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}

	opts := []storage.StoreOption{
		storage.WithKey(rt.cfg.Session.Key),
		storage.WithClock(rt.clock),
		storage.WithLogger(logger.AsSlog(rt.log)),
		storage.WithWriteRecorder(rt.metrics),
	}
	if secret := rt.cfg.Security.SealSecret; secret != "" {
		sealer, err := storage.NewSealer([]byte(secret), rt.cfg.Session.Key)
		if err != nil {
			backend.Close()
			return fmt.Errorf("create sealer: %w", err)
		}
		opts = append(opts, storage.WithSealer(sealer))
	}

	rt.backend = backend
	rt.store = storage.NewStore(backend, opts...)
	return nil
}

// appClock returns the clock stored in App.Metadata, or the real clock.
func appClock(c *cli.Context) clockwork.Clock {
	if clock, ok := c.App.Metadata[clockMetadataKey].(clockwork.Clock); ok {
		return clock
	}
	return clockwork.NewRealClock()
}

func (rt *runtime) now() time.Time {
	return rt.clock.Now()
}

// newHTTPClient builds the HTTP client for the identity service. The
// returned watcher is non-nil when a client certificate is configured.
func newHTTPClient(cfg *config.ClientConfig, log logger.Logger) (*http.Client, *tlsroots.CertWatcher, error) {
	client := &http.Client{Timeout: cfg.Remote.Timeout}
	if cfg.Remote.TLS.IsZero() {
		return client, nil, nil
	}

	tlsCfg, certs, err := tlsroots.ClientTLSConfig(cfg.Remote.TLS, logger.AsSlog(log))
	if err != nil {
		return nil, nil, fmt.Errorf("configure remote tls: %w", err)
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsCfg
	client.Transport = transport
	return client, certs, nil
}

// newRemote builds the identity service client selected by remote.type.
func newRemote(cfg *config.ClientConfig, client *http.Client) service.RemoteSessionService {
	if cfg.Remote.Type == config.RemoteOAuth2 {
		return remote.NewOAuth2Service(config.ToOAuth2Config(cfg), client)
	}
	httpCfg := config.ToHTTPConfig(cfg)
	httpCfg.UserAgent = buildinfo.UserAgent()
	return remote.NewHTTPService(httpCfg, remote.WithHTTPClient(client))
}

// restore loads the stored session into the manager.
func (rt *runtime) restore(ctx context.Context) (*domain.SessionRecord, error) {
	res := rt.manager.RestoreSession(ctx)
	if !res.Success {
		return nil, errNoSession
	}
	return res.Session, nil
}

// render writes data with the selected formatter.
func (rt *runtime) render(data any) error {
	return rt.flags.Formatter().Format(rt.out, data)
}

// Close stops the manager and closes the store. The stored record is kept.
func (rt *runtime) Close() error {
	if rt.manager != nil {
		rt.manager.Close()
	}
	if rt.certs != nil {
		rt.certs.Stop()
	}
	if rt.store != nil {
		if err := rt.store.Close(); err != nil && !errors.Is(err, storage.ErrClosed) {
			return err
		}
	}
	return nil
}

// interactive reports whether progress animation suits errOut.
func (rt *runtime) interactive() bool {
	if rt.flags.Output.IsMachineReadable() {
		return false
	}
	f, ok := rt.errOut.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

// withRuntime adapts a runtime-based action to a cli.ActionFunc.
func withRuntime(action func(c *cli.Context, rt *runtime) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		rt, err := newRuntime(c)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := rt.Close(); cerr != nil {
				rt.log.Warn("close runtime", "error", cerr)
			}
		}()
		return action(c, rt)
	}
}
