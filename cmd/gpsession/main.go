// Command gpsession drives a goSession Engine from the shell: it signs in
// against the content backend, keeps the token in a local sqlite keystore,
// and answers course and permission queries for the signed-in user.
//
// Usage:
//
//	gpsession [flags] login <email>          password from GPS_PASSWORD or -password
//	gpsession [flags] whoami
//	gpsession [flags] can <permission>       e.g. use_ai_chat
//	gpsession [flags] course <id>
//	gpsession [flags] category <id>
//	gpsession [flags] logout
//	gpsession [flags] serve                  local API plus /metrics
//
// Configuration is read from GPS_* environment variables; see
// goSession.ConfigFromEnv.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/permission"
	"github.com/MrEthical07/goSession/session"
	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const appName = "gpsession"

func main() {
	var (
		keystorePath = flag.String("keystore", "", "sqlite keystore path (default GPS_KEYSTORE_PATH or gpsession.db)")
		password     = flag.String("password", "", "password for login (default GPS_PASSWORD)")
		addr         = flag.String("addr", "127.0.0.1:9090", "listen address for serve")
		verbose      = flag.Bool("v", false, "debug logging")
		quiet        = flag.Bool("q", false, "no banner")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] login|whoami|can|course|category|logout|serve [arg]\n", appName)
		flag.PrintDefaults()
	}
	flag.Parse()

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).
		With().Timestamp().Str("app", appName).
		Logger()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	if !*quiet {
		figure.NewFigure(appName, "cybermedium", true).Print()
		fmt.Println()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, flag.Args(), options{keystorePath: *keystorePath, password: *password, addr: *addr}); err != nil {
		log.Error().Err(err).Msg("command failed")
		stop()
		os.Exit(1)
	}
}

type options struct {
	keystorePath string
	password     string
	addr         string
}

func newEngine(opts options) (*goSession.Engine, error) {
	cfg, err := goSession.ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	if os.Getenv("GPS_KEYSTORE") == "" {
		cfg.Keystore.Backend = goSession.KeystoreSQLite
	}
	if opts.keystorePath != "" {
		cfg.Keystore.Path = opts.keystorePath
	}
	return goSession.New().
		WithConfig(cfg).
		WithLogger(log.Logger).
		Build()
}

func run(ctx context.Context, args []string, opts options) error {
	engine, err := newEngine(opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := engine.Close(); err != nil {
			log.Warn().Err(err).Msg("close engine")
		}
	}()

	cmd, rest := args[0], args[1:]
	if cmd != "login" {
		state, err := engine.Restore(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("stored session not restored")
		}
		if state != session.StateSignedIn && cmd != "logout" && cmd != "serve" {
			return goSession.ErrNotSignedIn
		}
	}

	switch cmd {
	case "login":
		return login(ctx, engine, rest, opts)
	case "whoami":
		return printJSON(engine.CurrentUser())
	case "can":
		if len(rest) != 1 {
			return errors.New("can: permission name required")
		}
		p, ok := permission.ParsePermission(rest[0])
		if !ok {
			return fmt.Errorf("can: unknown permission %q", rest[0])
		}
		fmt.Println(engine.CanAccess(p))
		return nil
	case "course":
		id, err := intArg(cmd, rest)
		if err != nil {
			return err
		}
		c, err := engine.Course(ctx, id, false)
		if err != nil {
			return err
		}
		return printJSON(c)
	case "category":
		id, err := intArg(cmd, rest)
		if err != nil {
			return err
		}
		courses, err := engine.CoursesForCategory(ctx, id, false)
		if err != nil {
			return err
		}
		return printJSON(courses)
	case "logout":
		return engine.Logout(ctx)
	case "serve":
		return serve(ctx, engine, opts.addr)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func login(ctx context.Context, engine *goSession.Engine, args []string, opts options) error {
	if len(args) != 1 {
		return errors.New("login: email required")
	}
	pw := opts.password
	if pw == "" {
		pw = os.Getenv("GPS_PASSWORD")
	}
	if pw == "" {
		return errors.New("login: no password; set -password or GPS_PASSWORD")
	}
	u, err := engine.Login(ctx, args[0], pw)
	if err != nil {
		return err
	}
	log.Info().Int("user_id", u.ID).Str("role", u.Role().String()).Msg("signed in")
	return nil
}

func intArg(cmd string, args []string) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("%s: id required", cmd)
	}
	id, err := strconv.Atoi(args[0])
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%s: invalid id %q", cmd, args[0])
	}
	return id, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
