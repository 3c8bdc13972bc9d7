package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	"github.com/maynagashev/tokenvault/internal/custody"
	"github.com/maynagashev/tokenvault/internal/events"
	"github.com/maynagashev/tokenvault/internal/handlers"
	appmiddleware "github.com/maynagashev/tokenvault/internal/middleware"
	"github.com/maynagashev/tokenvault/internal/repository"
	"github.com/maynagashev/tokenvault/internal/services"
	"github.com/maynagashev/tokenvault/internal/storage"
)

const (
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultIdleTimeout     = 30 * time.Second
	defaultShutdownTimeout = 15 * time.Second
	// Регион MinIO по умолчанию. Задан явно, чтобы клиент не запрашивал расположение бакета.
	minioRegion = "us-east-1"
)

// Подменяются в тестах.
var (
	newPostgresDB  = repository.NewPostgresDB
	newMinioClient = storage.NewMinioClient
)

// Структура для хранения инициализированных зависимостей.
type dependencies struct {
	db            *sqlx.DB // nil для реестра в памяти
	vaultHandler  *handlers.VaultHandler
	faucetHandler *handlers.FaucetHandler // nil, если служебные маршруты выключены
}

// main - точка входа. Вызывает run и обрабатывает ошибку.
func main() {
	cfg, err := parseFlags()
	if err != nil {
		slog.Error("Ошибка конфигурации", "error", err)
		os.Exit(2)
	}
	if err = run(cfg); err != nil {
		slog.Error("Ошибка выполнения сервера", "error", err)
		os.Exit(1)
	}
}

// run содержит основную логику запуска сервера и возвращает ошибку.
func run(cfg *config) error {
	slog.SetDefault(newLogger(os.Stdout, cfg.LogLevel))
	slog.Info("Запуск сервера хранилищ...", "program_id", cfg.ProgramID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := setupDependencies(ctx, cfg)
	if err != nil {
		return fmt.Errorf("ошибка инициализации зависимостей: %w", err)
	}
	defer func() {
		if deps.db != nil {
			if closeErr := deps.db.Close(); closeErr != nil {
				slog.Error("Ошибка закрытия соединения с БД", "error", closeErr)
			}
		}
	}()

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      setupRouter(deps.vaultHandler, deps.faucetHandler),
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
		IdleTimeout:  defaultIdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		if cfg.TLSEnabled() {
			slog.Info("Запуск HTTPS-сервера", "port", cfg.Port, "cert", cfg.CertFile, "key", cfg.KeyFile)
			serveErr <- server.ListenAndServeTLS(cfg.CertFile, cfg.KeyFile)
			return
		}
		slog.Warn("TLS не настроен, запуск HTTP-сервера", "port", cfg.Port)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err = <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ошибка запуска сервера: %w", err)
		}
		return nil
	case <-ctx.Done():
		slog.Info("Получен сигнал остановки, завершаем работу...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err = server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка остановки сервера: %w", err)
	}
	return nil
}

// newLogger создает JSON-логгер с уровнем level.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// setupDependencies инициализирует и возвращает все необходимые зависимости сервера.
func setupDependencies(ctx context.Context, cfg *config) (*dependencies, error) {
	deps := &dependencies{}

	// 1. Реестр аккаунтов
	var accounts repository.Ledger
	if cfg.DatabaseDSN == "" {
		slog.Warn("Строка подключения к БД не задана, реестр хранится в памяти")
		accounts = repository.NewMemoryLedger()
	} else {
		db, err := newPostgresDB(cfg.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("ошибка инициализации БД: %w", err)
		}
		if err = repository.EnsureSchema(ctx, db); err != nil {
			closeDB(db)
			return nil, err
		}
		deps.db = db
		accounts = repository.NewPostgresLedger(db)
	}

	// 2. Публикация событий
	emitters := events.Multi{events.NewLogEmitter(slog.Default())}
	var history handlers.HistorySource
	if cfg.MinioEndpoint != "" {
		store, err := newMinioClient(ctx, storage.MinioConfig{
			Endpoint:        cfg.MinioEndpoint,
			AccessKeyID:     cfg.MinioUser,
			SecretAccessKey: cfg.MinioPassword,
			UseSSL:          cfg.MinioUseSSL,
			BucketName:      cfg.MinioBucket,
			Region:          minioRegion,
		})
		if err != nil {
			closeDB(deps.db)
			return nil, fmt.Errorf("ошибка инициализации архива событий: %w", err)
		}
		archive := events.NewArchive(store)
		emitters = append(emitters, archive)
		history = archive
	} else {
		slog.Info("Адрес MinIO не задан, архив событий выключен")
	}

	// 3. Сервисы
	tokens := custody.NewTokenService()
	vaultService := services.NewVaultService(accounts, custody.NewAdapter(tokens), emitters, services.Options{
		ProgramID:         cfg.ProgramID,
		CloseRequireEmpty: cfg.CloseRequireEmpty,
	})

	// 4. Обработчики
	deps.vaultHandler = handlers.NewVaultHandler(vaultService, history)
	if cfg.DevFaucet {
		slog.Warn("Служебные маршруты /api/dev включены")
		deps.faucetHandler = handlers.NewFaucetHandler(services.NewFaucetService(accounts, tokens))
	}

	return deps, nil
}

func closeDB(db *sqlx.DB) {
	if db == nil {
		return
	}
	if err := db.Close(); err != nil {
		slog.Error("Ошибка закрытия соединения с БД", "error", err)
	}
}

// setupRouter настраивает и возвращает роутер chi.
// Чтение хранилищ публично, изменяющие запросы требуют подписи.
func setupRouter(vaultHandler *handlers.VaultHandler, faucetHandler *handlers.FaucetHandler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("pong\n"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/vault", func(r chi.Router) {
			r.Get("/{owner}/{asset}", vaultHandler.GetVault)
			r.Get("/{owner}/{asset}/addresses", vaultHandler.GetAddresses)
			r.Get("/{owner}/{asset}/events", vaultHandler.GetHistory)

			r.Group(func(r chi.Router) {
				r.Use(appmiddleware.Authenticator)
				r.Post("/initialize", vaultHandler.Initialize)
				r.Post("/deposit", vaultHandler.Deposit)
				r.Post("/withdraw", vaultHandler.Withdraw)
				r.Post("/close", vaultHandler.Close)
			})
		})

		if faucetHandler != nil {
			r.Route("/dev", func(r chi.Router) {
				r.Use(appmiddleware.Authenticator)
				r.Post("/airdrop", faucetHandler.Airdrop)
				r.Post("/mint", faucetHandler.CreateMint)
				r.Post("/holding", faucetHandler.OpenHolding)
				r.Post("/mint-to", faucetHandler.MintTo)
			})
		}
	})
	return r
}
