// Package storage содержит клиент объектного хранилища, в которое архивируются события хранилищ.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStore определяет интерфейс объектного хранилища.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	// GetObject возвращает тело объекта, которое нужно закрыть после чтения.
	GetObject(ctx context.Context, key string) (io.ReadCloser, error)
	// ListObjects возвращает ключи всех объектов с префиксом prefix.
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}

// MinioClient реализует ObjectStore для MinIO.
type MinioClient struct {
	client     *minio.Client
	bucketName string
}

var _ ObjectStore = (*MinioClient)(nil)

// MinioConfig содержит параметры подключения к MinIO.
type MinioConfig struct {
	Endpoint        string // Адрес MinIO, например "localhost:9000"
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	BucketName      string // Бакет архива событий
	Region          string
}

// NewMinioClient создает клиент MinIO и при необходимости создает бакет.
func NewMinioClient(ctx context.Context, cfg MinioConfig) (*MinioClient, error) {
	slog.Info("[Minio] Инициализация клиента", "endpoint", cfg.Endpoint, "bucket", cfg.BucketName)

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации клиента MinIO: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("ошибка проверки существования бакета '%s': %w", cfg.BucketName, err)
	}
	if !exists {
		slog.Info("[Minio] Бакет не найден, создаем", "bucket", cfg.BucketName)
		if err = client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("ошибка создания бакета '%s': %w", cfg.BucketName, err)
		}
	}

	return &MinioClient{client: client, bucketName: cfg.BucketName}, nil
}

// PutObject загружает объект в бакет.
func (c *MinioClient) PutObject(
	ctx context.Context,
	key string,
	reader io.Reader,
	size int64,
	contentType string,
) error {
	info, err := c.client.PutObject(ctx, c.bucketName, key, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		slog.Error("[Minio] Ошибка загрузки объекта", "key", key, "error", err)
		return fmt.Errorf("ошибка загрузки объекта в MinIO: %w", err)
	}
	slog.Debug("[Minio] Объект загружен", "key", key, "size", info.Size, "etag", info.ETag)
	return nil
}

// GetObject скачивает объект. Отсутствующий ключ - ErrObjectNotFound.
func (c *MinioClient) GetObject(ctx context.Context, key string) (io.ReadCloser, error) {
	object, err := c.client.GetObject(ctx, c.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, c.translateError(key, err)
	}
	// GetObject ленивый: отсутствие ключа обнаруживается только при первом обращении.
	if _, err = object.Stat(); err != nil {
		_ = object.Close()
		return nil, c.translateError(key, err)
	}
	return object, nil
}

// ListObjects возвращает ключи объектов с префиксом prefix.
func (c *MinioClient) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for obj := range c.client.ListObjects(ctx, c.bucketName, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			slog.Error("[Minio] Ошибка получения списка объектов", "prefix", prefix, "error", obj.Err)
			return nil, fmt.Errorf("ошибка получения списка объектов из MinIO: %w", obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

func (c *MinioClient) translateError(key string, err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	slog.Error("[Minio] Ошибка получения объекта", "key", key, "error", err)
	return fmt.Errorf("ошибка получения объекта из MinIO: %w", err)
}

// Ошибки хранилища.
var (
	ErrObjectNotFound = errors.New("объект не найден в хранилище")
)
