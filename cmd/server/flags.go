package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/maynagashev/tokenvault/models"
)

const (
	// Порт по умолчанию для HTTPS (непривилегированный).
	defaultServerPort = "8443"
	// ID программы хранилища по умолчанию.
	defaultProgramID   = "8mkgZQT7izpwtkxuy7ModN6NmeQCGJrQ2TvXqL8LpfjD"
	defaultMinioBucket = "tokenvault-events"
	defaultLogLevel    = "info"

	// Переменные окружения.
	envServerPort        = "SERVER_PORT"
	envTLSCertFile       = "TLS_CERT_FILE"
	envTLSKeyFile        = "TLS_KEY_FILE"
	envDatabaseDSN       = "DATABASE_DSN"
	envProgramID         = "VAULT_PROGRAM_ID"
	envMinioEndpoint     = "MINIO_ENDPOINT"
	envMinioUser         = "MINIO_USER"
	envMinioPassword     = "MINIO_PASSWORD" //nolint:gosec // Это имя переменной окружения
	envMinioBucket       = "MINIO_BUCKET"
	envMinioUseSSL       = "MINIO_USE_SSL"
	envCloseRequireEmpty = "VAULT_CLOSE_REQUIRE_EMPTY"
	envDevFaucet         = "VAULT_DEV_FAUCET"
	envLogLevel          = "LOG_LEVEL"
)

// config хранит конфигурацию сервера.
type config struct {
	Port        string
	CertFile    string
	KeyFile     string
	DatabaseDSN string // Пустая строка - реестр в памяти

	ProgramID         models.Pubkey
	CloseRequireEmpty bool
	DevFaucet         bool

	MinioEndpoint string // Пустая строка - архив событий выключен
	MinioUser     string
	MinioPassword string
	MinioBucket   string
	MinioUseSSL   bool

	LogLevel slog.Level
}

// TLSEnabled сообщает, заданы ли сертификат и ключ.
func (c *config) TLSEnabled() bool {
	return c.CertFile != "" && c.KeyFile != ""
}

// parseFlags разбирает флаги и переменные окружения, возвращает config или ошибку.
// Флаг, заданный явно, имеет приоритет над переменной окружения.
func parseFlags() (*config, error) {
	cfg := &config{}
	var programID, logLevel string

	flag.StringVar(&cfg.Port, "port", defaultServerPort,
		fmt.Sprintf("Порт для запуска сервера (env: %s)", envServerPort))
	flag.StringVar(&cfg.CertFile, "cert-file", "",
		fmt.Sprintf("Путь к файлу TLS-сертификата (env: %s)", envTLSCertFile))
	flag.StringVar(&cfg.KeyFile, "key-file", "",
		fmt.Sprintf("Путь к файлу TLS-ключа (env: %s)", envTLSKeyFile))
	flag.StringVar(&cfg.DatabaseDSN, "database-dsn", "",
		fmt.Sprintf("Строка подключения к PostgreSQL, пусто - реестр в памяти (env: %s)", envDatabaseDSN))
	flag.StringVar(&programID, "program-id", defaultProgramID,
		fmt.Sprintf("ID программы хранилища в base58 (env: %s)", envProgramID))
	flag.BoolVar(&cfg.CloseRequireEmpty, "close-require-empty", false,
		fmt.Sprintf("Запретить закрытие непустого хранилища (env: %s)", envCloseRequireEmpty))
	flag.BoolVar(&cfg.DevFaucet, "dev-faucet", false,
		fmt.Sprintf("Включить служебные маршруты /api/dev (env: %s)", envDevFaucet))
	flag.StringVar(&cfg.MinioEndpoint, "minio-endpoint", "",
		fmt.Sprintf("Адрес MinIO для архива событий, пусто - архив выключен (env: %s)", envMinioEndpoint))
	flag.StringVar(&cfg.MinioUser, "minio-user", "",
		fmt.Sprintf("Пользователь MinIO (env: %s)", envMinioUser))
	flag.StringVar(&cfg.MinioPassword, "minio-password", "",
		fmt.Sprintf("Пароль MinIO (env: %s)", envMinioPassword))
	flag.StringVar(&cfg.MinioBucket, "minio-bucket", defaultMinioBucket,
		fmt.Sprintf("Бакет архива событий (env: %s)", envMinioBucket))
	flag.BoolVar(&cfg.MinioUseSSL, "minio-use-ssl", false,
		fmt.Sprintf("Подключаться к MinIO по TLS (env: %s)", envMinioUseSSL))
	flag.StringVar(&logLevel, "log-level", defaultLogLevel,
		fmt.Sprintf("Уровень логирования: debug, info, warn, error (env: %s)", envLogLevel))

	flag.Parse()

	// Флаги, заданные в командной строке.
	explicit := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	lookupString(explicit, "port", envServerPort, &cfg.Port)
	lookupString(explicit, "cert-file", envTLSCertFile, &cfg.CertFile)
	lookupString(explicit, "key-file", envTLSKeyFile, &cfg.KeyFile)
	lookupString(explicit, "database-dsn", envDatabaseDSN, &cfg.DatabaseDSN)
	lookupString(explicit, "program-id", envProgramID, &programID)
	lookupString(explicit, "minio-endpoint", envMinioEndpoint, &cfg.MinioEndpoint)
	lookupString(explicit, "minio-user", envMinioUser, &cfg.MinioUser)
	lookupString(explicit, "minio-password", envMinioPassword, &cfg.MinioPassword)
	lookupString(explicit, "minio-bucket", envMinioBucket, &cfg.MinioBucket)
	lookupString(explicit, "log-level", envLogLevel, &logLevel)
	for name, dst := range map[string]struct {
		env string
		ptr *bool
	}{
		"close-require-empty": {envCloseRequireEmpty, &cfg.CloseRequireEmpty},
		"dev-faucet":          {envDevFaucet, &cfg.DevFaucet},
		"minio-use-ssl":       {envMinioUseSSL, &cfg.MinioUseSSL},
	} {
		if err := lookupBool(explicit, name, dst.env, dst.ptr); err != nil {
			return nil, err
		}
	}

	// Проверяем параметры
	var err error
	if cfg.ProgramID, err = models.ParsePubkey(programID); err != nil {
		return nil, fmt.Errorf("неверный ID программы (--program-id или %s): %w", envProgramID, err)
	}
	if err = cfg.LogLevel.UnmarshalText([]byte(logLevel)); err != nil {
		return nil, fmt.Errorf("неверный уровень логирования (--log-level или %s): %w", envLogLevel, err)
	}
	if (cfg.CertFile == "") != (cfg.KeyFile == "") {
		return nil, errors.New("сертификат и ключ TLS задаются вместе (--cert-file/" + envTLSCertFile +
			" и --key-file/" + envTLSKeyFile + ")")
	}
	if cfg.Port == "" {
		return nil, errors.New("не указан порт (--port или " + envServerPort + ")")
	}

	return cfg, nil
}

// lookupString применяет переменную окружения, если флаг не задан явно.
func lookupString(explicit map[string]bool, name, env string, dst *string) {
	if explicit[name] {
		return
	}
	if value, ok := os.LookupEnv(env); ok {
		*dst = value
	}
}

func lookupBool(explicit map[string]bool, name, env string, dst *bool) error {
	if explicit[name] {
		return nil
	}
	value, ok := os.LookupEnv(env)
	if !ok {
		return nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("неверное значение %s: %w", env, err)
	}
	*dst = parsed
	return nil
}
