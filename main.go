package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/storage/redis/v3"
	"github.com/peerloop/peerloop/internal/audit"
	"github.com/peerloop/peerloop/internal/auth"
	"github.com/peerloop/peerloop/internal/common"
	"github.com/peerloop/peerloop/internal/config"
	"github.com/peerloop/peerloop/internal/gateway"
	"github.com/peerloop/peerloop/internal/handlers/api"
	"github.com/peerloop/peerloop/internal/mail"
	"github.com/peerloop/peerloop/internal/middlewares"
	"github.com/peerloop/peerloop/internal/onetime"
	"github.com/peerloop/peerloop/internal/ratelimit"
	"github.com/peerloop/peerloop/internal/settings"
	"github.com/peerloop/peerloop/internal/store"
	"github.com/peerloop/peerloop/internal/token"
	"github.com/peerloop/peerloop/internal/twofactor"
	"github.com/peerloop/peerloop/internal/users"
	"github.com/peerloop/peerloop/model"
	"github.com/peerloop/peerloop/params"
	"github.com/urfave/cli/v2"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
	"gorm.io/plugin/dbresolver"
)

var (
	app       *cli.App
	gitCommit string
	gitDate   string
)

var (
	configFileFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "YAML config file",
		Value: "config.yaml",
	}
	debugFlag = &cli.BoolFlag{
		Name:  "debug",
		Usage: "Enable debug logging",
	}
)

func init() {
	app = cli.NewApp()
	app.EnableBashCompletion = true
	app.Usage = "peerloop - identity and real-time coordination server"
	app.Flags = []cli.Flag{
		configFileFlag,
		debugFlag,
	}
	app.Commands = []*cli.Command{
		{
			Name: "version",
			Action: func(ctx *cli.Context) error {
				fmt.Println(params.VersionWithCommit(gitCommit, gitDate))
				return nil
			},
		},
	}
	app.Action = run
}

func mustInitLogger(debug bool) {
	logLevel := slog.LevelInfo
	if debug {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))
}

func mustInitDatabase(dbConfig config.MySQLConfig) *gorm.DB {
	db, err := gorm.Open(mysql.Open(dbConfig.Dsn), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			TablePrefix:   dbConfig.TablePrefix,
			SingularTable: true,
		},
	})
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if dbConfig.ReplicaDsn != "" {
		err = db.Use(dbresolver.Register(dbresolver.Config{
			Replicas: []gorm.Dialector{mysql.Open(dbConfig.ReplicaDsn)},
		}))
		if err != nil {
			slog.Error("Failed to register read replica", "error", err)
			os.Exit(1)
		}
	}

	sqlDB, err := db.DB()
	if err == nil {
		if dbConfig.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(dbConfig.MaxIdleConns)
		}
		if dbConfig.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(dbConfig.MaxOpenConns)
		}
		if dbConfig.ConnMaxIdleTime > 0 {
			sqlDB.SetConnMaxIdleTime(time.Duration(dbConfig.ConnMaxIdleTime) * time.Second)
		}
		if dbConfig.ConnMaxLifetime > 0 {
			sqlDB.SetConnMaxLifetime(time.Duration(dbConfig.ConnMaxLifetime) * time.Second)
		}
	}

	if err := db.AutoMigrate(model.Models...); err != nil {
		slog.Error("Database migration failed", "error", err)
		os.Exit(1)
	}

	return db
}

func mustInitMailSender(mailCfg config.MailConfig) mail.Sender {
	if mailCfg.Backend != "smtp" {
		slog.Error("Unsupported mail sender backend", "backend", mailCfg.Backend)
		os.Exit(1)
	}
	sender, err := mail.NewSMTPSender(mail.SMTPConfig{
		Host:     mailCfg.SMTP.Host,
		Port:     mailCfg.SMTP.Port,
		Username: mailCfg.SMTP.Username,
		Password: mailCfg.SMTP.Password,
		TLS:      mailCfg.SMTP.TLS,
		CertFile: mailCfg.SMTP.CertFile,
		KeyFile:  mailCfg.SMTP.KeyFile,
		CAFile:   mailCfg.SMTP.CAFile,
	}, mailCfg.SMTP.From)
	if err != nil {
		slog.Error("Failed to initialize mail sender", "error", err)
		os.Exit(1)
	}
	return sender
}

func mustInitRedisStorage(redisCfg config.RedisConfig) *redis.Storage {
	return redis.New(redis.Config{
		URL:           redisCfg.URL,
		PoolSize:      redisCfg.PoolSize,
		IsClusterMode: redisCfg.ClusterMode,
	})
}

func run(ctx *cli.Context) error {
	cfg, err := config.LoadConfig(ctx.String(configFileFlag.Name))
	if err != nil {
		slog.Error("Could not load config file.", "error", err)
		return err
	}
	debug := cfg.Debug || ctx.IsSet(debugFlag.Name)

	mustInitLogger(debug)

	mailSender := mustInitMailSender(cfg.Mail)
	db := mustInitDatabase(cfg.MySQL)
	redisStorage := mustInitRedisStorage(cfg.Redis)
	cacheStorage := store.NewRedisStorage(redisStorage.Conn())

	// repositories
	var (
		userRepo  = users.NewUserRepository(db)
		auditRepo = audit.NewRepository(db)
	)

	// services
	var (
		recorder      = audit.NewRecorder(auditRepo)
		userService   = users.NewUserService(userRepo)
		tokenService  = token.NewService(cfg.MasterKey, cacheStorage)
		limiter       = ratelimit.New(cacheStorage)
		codeIssuer    = onetime.NewIssuer(cfg.MasterKey, cacheStorage)
		settingsStore = settings.NewStore(auditRepo)
		registry      = gateway.NewRegistry()

		twoFactorService = twofactor.NewService(twofactor.Config{
			MasterKey: cfg.MasterKey,
			Issuer:    cfg.SiteName,
			Debug:     debug,
		}, cacheStorage, userService, tokenService, codeIssuer, limiter, mailSender, recorder)

		authService = auth.NewService(debug, userService, tokenService,
			limiter, codeIssuer, mailSender, recorder)
	)

	router := fiber.New(fiber.Config{
		Prefork:       false,
		CaseSensitive: true,
		BodyLimit:     params.ServerBodyLimit,
		IdleTimeout:   params.ServerIdleTimeout,
		ReadTimeout:   params.ServerReadTimeout,
		WriteTimeout:  params.ServerWriteTimeout,
		ErrorHandler:  middlewares.ErrorHandler,
	})

	router.Use(recover.New())
	router.Use(logger.New())
	router.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.AllowOrigins, ", "),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	api.SetupAPIRoutes(router.Group("/api"), tokenService, api.Handlers{
		Auth:      api.NewAuthHandler(authService, userService),
		TwoFactor: api.NewTwoFactorHandler(twoFactorService, tokenService, debug),
		Password:  api.NewPasswordHandler(authService, debug),
		Settings:  api.NewSettingsHandler(settingsStore, registry),
	})

	wsHandler := gateway.NewHandler(registry, tokenService)
	router.Use("/ws", gateway.UpgradeRequired)
	router.Get("/ws", wsHandler.Serve())

	healthCheckCtx, term := context.WithCancel(ctx.Context)
	done := make(chan struct{})
	go common.StartHealthCheckServer(healthCheckCtx, done, redisStorage.Conn(), db)
	defer func() {
		term()
		<-done
	}()
	return router.Listen(cfg.ListenAddr)
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
