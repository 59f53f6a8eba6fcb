package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/doclink/internal/client"
	"github.com/roach88/doclink/internal/config"
	"github.com/roach88/doclink/internal/ir"
	"github.com/roach88/doclink/internal/link"
	"github.com/roach88/doclink/internal/query"
	"github.com/roach88/doclink/internal/schema"
	"github.com/roach88/doclink/internal/telemetry"
	"github.com/roach88/doclink/internal/transport"
)

// tokenLeeway is how close to expiry a token is reported as expired.
const tokenLeeway = 30 * time.Second

// session is a logged-in client plus what must be released with it.
type session struct {
	client  *client.Client
	stack   *transport.StackClient
	closers []func(context.Context) error
}

func (s *session) close(ctx context.Context, logger *slog.Logger) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			logger.Warn("release session resource", "error", err)
		}
	}
}

// openSession builds the link chain described by cfg and logs in.
// extra links are placed between the tracing link and the transport.
func openSession(ctx context.Context, cfg *config.Config, logger *slog.Logger, extra ...link.Link) (*session, error) {
	if err := cfg.RequireRemote(); err != nil {
		return nil, WrapExitError(ExitCommandError, "missing stack URI", err)
	}

	sch, err := loadSchema(cfg)
	if err != nil {
		return nil, err
	}

	s := &session{}
	s.stack = transport.New(cfg.URI,
		transport.WithRetry(cfg.Retry.Max, cfg.Retry.WaitMin, cfg.Retry.WaitMax),
		transport.WithLogger(logger),
	)

	var links []link.Link
	if cfg.Tracing.Enabled {
		tp := telemetry.NewTracerProvider(
			telemetry.WithServiceName(cfg.Tracing.ServiceName),
			telemetry.WithSamplingRatio(cfg.Tracing.SampleRatio),
		)
		s.closers = append(s.closers, tp.Shutdown)
		links = append(links, telemetry.TracingLink(tp))
	}
	links = append(links, extra...)
	links = append(links, transport.Link(s.stack))

	c, err := client.New(
		client.WithLinks(links...),
		client.WithSchema(sch),
		client.WithIdentity(cfg.Identity()),
		client.WithLogger(logger),
		client.WithAuthenticator(s.stack),
	)
	if err != nil {
		s.close(ctx, logger)
		return nil, WrapExitError(ExitCommandError, "invalid client configuration", err)
	}
	s.client = c

	if err := c.Login(ctx, &transport.Credentials{URI: cfg.URI, Token: cfg.Token}); err != nil {
		s.close(ctx, logger)
		return nil, WrapExitError(ExitCommandError, "login failed", err)
	}
	if s.stack.Expired(time.Now(), tokenLeeway) {
		logger.Warn("access token is expired or about to expire")
	}
	return s, nil
}

func loadSchema(cfg *config.Config) (*schema.Schema, error) {
	if cfg.SchemaPath == "" {
		return nil, nil
	}
	sch, err := schema.LoadFile(cfg.SchemaPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid schema", err)
	}
	return sch, nil
}

// resolveDoctype maps a schema alias ("todos") to its doctype.
func resolveDoctype(sch *schema.Schema, name string) string {
	if dt, ok := sch.ByName(name); ok {
		return dt.Doctype
	}
	return name
}

// parseWhere turns "field=value" arguments into equality predicates.
// Values are read with ir.ParseScalar, so "done=true" matches a boolean.
func parseWhere(args []string) ([]query.Predicate, error) {
	preds := make([]query.Predicate, 0, len(args))
	for _, arg := range args {
		field, value, ok := strings.Cut(arg, "=")
		if !ok || field == "" {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("invalid --where %q: expected field=value", arg))
		}
		preds = append(preds, query.Eq(field, ir.ParseScalar(value)))
	}
	return preds, nil
}
