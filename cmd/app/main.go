package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atvirokodosprendimai/credbook/internal/adapters/db/remote"
	sqliteadapter "github.com/atvirokodosprendimai/credbook/internal/adapters/db/sqlite"
	httpadapter "github.com/atvirokodosprendimai/credbook/internal/adapters/http"
	"github.com/atvirokodosprendimai/credbook/internal/adapters/mq"
	rpcadapter "github.com/atvirokodosprendimai/credbook/internal/adapters/rpcjson"
	"github.com/atvirokodosprendimai/credbook/internal/application"
	"github.com/atvirokodosprendimai/credbook/internal/clock"
	"github.com/atvirokodosprendimai/credbook/internal/domain"
	"github.com/atvirokodosprendimai/credbook/internal/obs"
	"github.com/atvirokodosprendimai/credbook/internal/seed"
	"github.com/urfave/cli/v3"
)

func main() {
	args := os.Args
	if len(args) == 1 {
		args = append(args, "--help")
	}

	root := &cli.Command{
		Name:    "credbook",
		Usage:   "Truck yard checkpoint server and CLI",
		Version: version,
		Commands: []*cli.Command{
			serverCommand(),
			authCommand(),
			ticketsCommand(),
			billingCommand(),
			historyCommand(),
			totalsCommand(),
			registryCommand(),
			syncCommand(),
			stateCommand(),
		},
	}

	if err := root.Run(context.Background(), args); err != nil {
		log.Fatal(err)
	}
}

func serverCommand() *cli.Command {
	return &cli.Command{
		Name:  "server",
		Usage: "Run the checkpoint server (HTTP + JSON-RPC)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "env-file", Value: ".env", Usage: "optional dotenv file"},
			&cli.StringFlag{Name: "addr", Usage: "HTTP listen address (HTTP_ADDR)"},
			&cli.StringFlag{Name: "rpc-socket", Usage: "JSON-RPC unix socket path (RPC_SOCKET)"},
			&cli.StringFlag{Name: "db-path", Usage: "SQLite snapshot database path (DB_PATH)"},
			&cli.StringFlag{Name: "remote-dsn", Usage: "shared store DSN (REMOTE_DSN)"},
			&cli.StringFlag{Name: "seed", Usage: "YAML seed file (SEED_FILE)"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := loadServerConfig(c.String("env-file"))
			if err != nil {
				return err
			}
			if c.IsSet("addr") {
				cfg.HTTPAddr = c.String("addr")
			}
			if c.IsSet("rpc-socket") {
				cfg.RPCSocket = c.String("rpc-socket")
			}
			if c.IsSet("db-path") {
				cfg.DBPath = c.String("db-path")
			}
			if c.IsSet("remote-dsn") {
				cfg.RemoteDSN = c.String("remote-dsn")
			}
			if c.IsSet("seed") {
				cfg.SeedFile = c.String("seed")
			}
			return runServer(ctx, cfg)
		},
	}
}

func runServer(ctx context.Context, cfg serverConfig) error {
	logger, err := newLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		return err
	}

	shutdownTracer, err := obs.InitTracer(ctx, cfg.OTelEndpoint, version, cfg.Env)
	if err != nil {
		return err
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracer(tctx)
	}()

	defaults, err := seed.Load(cfg.SeedFile)
	if err != nil {
		return err
	}

	db, err := sqliteadapter.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	if err := sqliteadapter.RunMigrations(ctx, db, logger); err != nil {
		return err
	}
	store := sqliteadapter.NewSnapshotStore(db, domain.DefaultSlot, logger, defaults)

	var shared domain.RemoteStore
	if cfg.RemoteDSN != "" {
		rdb, err := remote.Open(cfg.RemoteDriver, cfg.RemoteDSN)
		if err != nil {
			return err
		}
		rs := remote.NewStore(rdb)
		if err := rs.Migrate(ctx); err != nil {
			return err
		}
		shared = rs
		logger.WithField("driver", cfg.RemoteDriver).Info("shared store configured")
	} else {
		logger.Info("no REMOTE_DSN, running local-only")
	}
	reconciler := application.NewReconciler(shared, logger, cfg.PushTimeout)

	tokens, err := application.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL, clock.Real())
	if err != nil {
		return err
	}

	var events domain.EventPublisher = mq.Nop{}
	if cfg.RabbitURL != "" {
		pub, err := mq.NewPublisher(cfg.RabbitURL, cfg.EventsExchange, obs.ServiceName)
		if err != nil {
			return err
		}
		defer func() { _ = pub.Close() }()
		events = pub
	}

	service, err := application.NewService(ctx, store, reconciler, application.Options{
		Events: events,
		Tokens: tokens,
		Log:    logger,
	})
	if err != nil {
		return err
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	service.Start(runCtx, cfg.SyncInterval)

	router := httpadapter.NewRouter(service, logger)
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}
	rpcSrv, err := rpcadapter.Start(cfg.RPCSocket, service, logger)
	if err != nil {
		return err
	}
	defer func() {
		_ = rpcSrv.Close()
	}()
	logger.Infof("json-rpc listening on unix://%s", cfg.RPCSocket)

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("server listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Infof("received signal %s, shutting down", sig)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	err = srv.Shutdown(shutdownCtx)
	stop()
	service.Wait()
	return err
}

func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authentication commands",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Open the gate session and store the CLI token",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "transport", Value: "uds"},
					&cli.StringFlag{Name: "server", Value: defaultServer},
					&cli.StringFlag{Name: "socket", Value: defaultSocket},
					&cli.StringFlag{Name: "username", Required: true},
					&cli.StringFlag{Name: "password", Required: true},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg := cliConfig{Transport: c.String("transport"), Server: c.String("server"), Socket: c.String("socket")}
					var out application.LoginResult
					if err := doLogin(ctx, cfg, c.String("username"), c.String("password"), &out); err != nil {
						return err
					}
					cfg.Token = out.Token
					if err := saveConfig(cfg); err != nil {
						return err
					}
					fmt.Printf("logged in as %s (%s), token expires %s\n", out.User.Username, out.User.ActorLabel(), formatTime(out.ExpiresAt))
					return nil
				},
			},
			{
				Name:  "whoami",
				Usage: "Show the operator holding the session",
				Flags: []cli.Flag{jsonFlag()},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					var out struct {
						ID       string `json:"id"`
						Username string `json:"username"`
						Role     string `json:"role"`
						Actor    string `json:"actor"`
					}
					if err := doWhoAmI(ctx, cfg, &out); err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printKV([][2]string{{"id", out.ID}, {"username", out.Username}, {"role", out.Role}, {"actor", out.Actor}})
					return nil
				},
			},
			{
				Name:  "logout",
				Usage: "Close the gate session and clear the CLI token",
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					_ = doLogout(ctx, cfg)
					cfg.Token = ""
					if err := saveConfig(cfg); err != nil {
						return err
					}
					fmt.Println("logged out")
					return nil
				},
			},
		},
	}
}

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{Name: "json", Usage: "output raw JSON"}
}

func jsonMarshal(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}
