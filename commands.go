package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"gorm.io/gorm"

	"github.com/customeros/mailarchive/config"
	"github.com/customeros/mailarchive/internal/database"
	"github.com/customeros/mailarchive/internal/enum"
	"github.com/customeros/mailarchive/internal/logger"
	"github.com/customeros/mailarchive/internal/models"
	"github.com/customeros/mailarchive/internal/repository"
	"github.com/customeros/mailarchive/internal/tracing"
	"github.com/customeros/mailarchive/internal/utils"
	"github.com/customeros/mailarchive/server"
	"github.com/customeros/mailarchive/services"
	"github.com/customeros/mailarchive/services/events"
)

// runtime is everything a one-shot command needs.
type runtime struct {
	cfg      *config.Config
	log      logger.Logger
	repos    *repository.Repositories
	services *services.Services
	tracer   io.Closer
}

func loadConfigAndDB() (*config.Config, *gorm.DB, error) {
	cfg, err := config.InitConfig()
	if err != nil {
		return nil, nil, errors.Wrap(err, "config initialization failed")
	}
	db, err := database.InitDatabase(cfg.DatabaseConfig)
	if err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}

func bootstrap(ctx context.Context) (*runtime, error) {
	cfg, db, err := loadConfigAndDB()
	if err != nil {
		return nil, err
	}

	appLogger := logger.NewAppLogger(cfg.Logger)
	appLogger.InitLogger()

	tracer, closer, err := tracing.NewJaegerTracer(cfg.Tracing, appLogger)
	if err != nil {
		return nil, errors.Wrap(err, "jaeger tracer")
	}
	opentracing.SetGlobalTracer(tracer)

	repos := repository.InitRepositories(db)
	svcs, err := services.InitServices(ctx, cfg, appLogger, repos)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}
	return &runtime{cfg: cfg, log: appLogger, repos: repos, services: svcs, tracer: closer}, nil
}

func (r *runtime) close() {
	if err := r.services.Close(); err != nil {
		r.log.Warnf("Failed to close services: %v", err)
	}
	_ = r.tracer.Close()
	_ = r.log.Sync()
}

// commandSpan starts the root span of a one-shot command. Call it after
// bootstrap so the jaeger tracer is in place.
func commandSpan(ctx context.Context, operationName string) (opentracing.Span, context.Context) {
	ctx = utils.WithCustomContext(ctx, &utils.CustomContext{AppSource: events.AppSource})
	span, ctx := opentracing.StartSpanFromContext(ctx, operationName)
	tracing.SetDefaultCLISpanTags(ctx, span)
	return span, ctx
}

func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "run database migrations",
		Action: func(c *cli.Context) error {
			_, db, err := loadConfigAndDB()
			if err != nil {
				return err
			}
			if err := repository.MigrateDB(db); err != nil {
				return errors.Wrap(err, "database migration failed")
			}
			log.Println("Database migration completed successfully")
			return nil
		},
	}
}

func serverCommand() *cli.Command {
	return &cli.Command{
		Name:  "server",
		Usage: "start the API server and scheduler",
		Action: func(c *cli.Context) error {
			cfg, db, err := loadConfigAndDB()
			if err != nil {
				return err
			}
			log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

			srv, err := server.NewServer(cfg, db)
			if err != nil {
				return errors.Wrap(err, "server setup failed")
			}
			if err := srv.Run(); err != nil {
				return errors.Wrap(err, "server startup failed")
			}
			log.Println("Shutdown complete")
			return nil
		},
	}
}

func fetchCommand() *cli.Command {
	return &cli.Command{
		Name:  "fetch",
		Usage: "poll one account now",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "account", Usage: "account id", Required: true},
		},
		Action: func(c *cli.Context) error {
			rt, err := bootstrap(c.Context)
			if err != nil {
				return err
			}
			defer rt.close()
			span, ctx := commandSpan(c.Context, "cli.fetch")
			defer span.Finish()

			outcome, err := rt.services.Poller.PollAccount(ctx, c.String("account"))
			if outcome != nil {
				_ = printJSON(outcome)
			}
			tracing.TraceErr(span, err)
			return err
		},
	}
}

func refreshCommand() *cli.Command {
	return &cli.Command{
		Name:  "refresh",
		Usage: "reprocess every stored email in the foreground",
		Action: func(c *cli.Context) error {
			rt, err := bootstrap(c.Context)
			if err != nil {
				return err
			}
			defer rt.close()
			span, ctx := commandSpan(c.Context, "cli.refresh")
			defer span.Finish()

			if _, err := rt.services.Jobs.StartRefreshAll(ctx); err != nil {
				tracing.TraceErr(span, err)
				return err
			}
			return printJSON(rt.services.Jobs.Wait(ctx))
		},
	}
}

func verifyCommand() *cli.Command {
	return &cli.Command{
		Name:  "verify",
		Usage: "re-hash stored documents and report mismatches",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "document", Usage: "verify a single document id"},
		},
		Action: func(c *cli.Context) error {
			rt, err := bootstrap(c.Context)
			if err != nil {
				return err
			}
			defer rt.close()
			span, ctx := commandSpan(c.Context, "cli.verify")
			defer span.Finish()

			if id := c.String("document"); id != "" {
				if err := rt.services.Store.Verify(ctx, id); err != nil {
					tracing.TraceErr(span, err)
					return err
				}
				fmt.Printf("%s verified\n", id)
				return nil
			}
			outcome, err := rt.services.Store.VerifyAll(ctx)
			if err != nil {
				tracing.TraceErr(span, err)
				return err
			}
			if err := printJSON(outcome); err != nil {
				return err
			}
			if len(outcome.Mismatched)+len(outcome.Missing)+len(outcome.Unchecked) > 0 {
				return cli.Exit("integrity check failed", 2)
			}
			return nil
		},
	}
}

func accountCommand() *cli.Command {
	return &cli.Command{
		Name:  "account",
		Usage: "manage mailbox accounts",
		Subcommands: []*cli.Command{
			{
				Name:  "add",
				Usage: "register a mailbox",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "name"},
					&cli.StringFlag{Name: "provider", Value: enum.EmailProviderIMAP.String(), Usage: "gmail, outlook or imap"},
					&cli.StringFlag{Name: "server"},
					&cli.IntFlag{Name: "port"},
					&cli.StringFlag{Name: "username"},
					&cli.StringSliceFlag{Name: "folder", Usage: "folder to poll, repeatable"},
					&cli.StringFlag{Name: "criteria", Value: enum.SearchAll.String(), Usage: "all, unseen, seen or flagged"},
					&cli.StringFlag{Name: "post-action", Value: enum.PostActionNone.String()},
					&cli.StringFlag{Name: "move-to"},
					&cli.IntFlag{Name: "poll-interval", Value: 15, Usage: "minutes"},
					&cli.IntFlag{Name: "max-per-fetch", Value: 50},
					&cli.BoolFlag{Name: "download-links", Value: true},
				},
				Action: addAccount,
			},
			{
				Name:  "secret",
				Usage: "store the login secret of an account, read from stdin when --secret is empty",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "account", Required: true},
					&cli.StringFlag{Name: "secret"},
					&cli.StringFlag{Name: "master-password", EnvVars: []string{"MAILARCHIVE_MASTER_PASSWORD"}},
				},
				Action: setAccountSecret,
			},
		},
	}
}

func addAccount(c *cli.Context) error {
	provider := enum.EmailProvider(c.String("provider"))
	if !provider.IsValid() {
		return errors.Errorf("unknown provider %q", provider)
	}
	postAction := enum.PostAction(c.String("post-action"))
	if !postAction.IsValid() {
		return errors.Errorf("unknown post action %q", postAction)
	}
	if postAction == enum.PostActionMove && c.String("move-to") == "" {
		return errors.New("--move-to is required for the move post action")
	}

	rt, err := bootstrap(c.Context)
	if err != nil {
		return err
	}
	defer rt.close()
	span, ctx := commandSpan(c.Context, "cli.accountAdd")
	defer span.Finish()

	settings := provider.Settings()
	account := &models.Account{
		Name:                 c.String("name"),
		Email:                strings.TrimSpace(c.String("email")),
		Provider:             provider,
		IMAPServer:           c.String("server"),
		IMAPPort:             c.Int("port"),
		UseTLS:               settings.UseTLS,
		Username:             c.String("username"),
		AuthMethod:           enum.AuthMethodAppPassword,
		Enabled:              true,
		PollIntervalMinutes:  c.Int("poll-interval"),
		Folders:              c.StringSlice("folder"),
		SearchCriteria:       enum.SearchCriteria(c.String("criteria")),
		PostAction:           postAction,
		MoveToFolder:         c.String("move-to"),
		DownloadInvoiceLinks: c.Bool("download-links"),
		MaxPerFetch:          c.Int("max-per-fetch"),
	}
	if err := rt.repos.AccountRepository.Create(ctx, account); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return printJSON(account)
}

func setAccountSecret(c *cli.Context) error {
	rt, err := bootstrap(c.Context)
	if err != nil {
		return err
	}
	defer rt.close()
	span, ctx := commandSpan(c.Context, "cli.accountSecret")
	defer span.Finish()
	tracing.TagAccount(span, c.String("account"))

	account, err := rt.repos.AccountRepository.GetByID(ctx, c.String("account"))
	if err != nil {
		return err
	}
	if account == nil {
		return errors.Errorf("account %s not found", c.String("account"))
	}

	store := rt.services.Credentials
	if !store.IsUnlocked() {
		if err := store.Unlock(ctx, c.String("master-password")); err != nil {
			return err
		}
	}

	secret := c.String("secret")
	if secret == "" {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && err != io.EOF {
			return err
		}
		secret = strings.TrimRight(line, "\r\n")
	}
	if secret == "" {
		return errors.New("empty secret")
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := store.SetSecret(ctx, account.ID, secret); err != nil {
		return err
	}
	fmt.Printf("secret stored for %s\n", account.Email)
	return nil
}
