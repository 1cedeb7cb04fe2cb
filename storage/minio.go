package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"midiplayer/config"
	"midiplayer/logger"
)

// ErrObjectNotFound 对象不存在
var ErrObjectNotFound = errors.New("storage: object not found")

// BucketStats 存储桶统计信息
type BucketStats struct {
	TotalObjects int64
	TotalSize    int64
	LastModified time.Time
}

// ObjectInfo 文件信息
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	ContentType  string
	ETag         string
}

// MinioClient 封装了 MinIO 客户端，用来存放音色补丁和 MIDI 文件
type MinioClient struct {
	client     *minio.Client
	bucketName string
}

// NewMinioClient 创建一个新的 MinIO 客户端
func NewMinioClient(endpoint, accessKey, secretKey, bucketName string, useSSL bool, region string) (*MinioClient, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("创建 MinIO 客户端失败: %w", err)
	}

	return &MinioClient{
		client:     client,
		bucketName: bucketName,
	}, nil
}

// NewMinioClientFromConfig 按配置创建客户端
func NewMinioClientFromConfig(cfg *config.Config) (*MinioClient, error) {
	if !cfg.MinioEnabled() {
		return nil, fmt.Errorf("MinIO 未配置")
	}
	logger.Info("[NewMinioClientFromConfig] 正在连接 MinIO 服务器",
		logger.String("endpoint", cfg.MinioEndpoint),
		logger.String("bucket", cfg.MinioBucket))
	return NewMinioClient(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL, cfg.MinioRegion)
}

// Bucket 默认存储桶
func (m *MinioClient) Bucket() string {
	return m.bucketName
}

// EnsureBucket 检查存储桶，不存在则创建
func (m *MinioClient) EnsureBucket(ctx context.Context, region string) error {
	exists, err := m.client.BucketExists(ctx, m.bucketName)
	if err != nil {
		return fmt.Errorf("检查存储桶失败: %w", err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.bucketName, minio.MakeBucketOptions{Region: region}); err != nil {
		return fmt.Errorf("创建存储桶失败: %w", err)
	}
	logger.Info("[EnsureBucket] 成功创建存储桶", logger.String("bucket", m.bucketName))
	return nil
}

// GetObjectBytes 读取整个对象，bucket 为空时使用默认存储桶
func (m *MinioClient) GetObjectBytes(ctx context.Context, bucket, key string) ([]byte, error) {
	if bucket == "" {
		bucket = m.bucketName
	}
	obj, err := m.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, wrapNotFound(err, bucket, key)
	}
	defer obj.Close()

	// GetObject 是懒加载的，NoSuchKey 在第一次读的时候才出现
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, wrapNotFound(err, bucket, key)
	}
	return data, nil
}

// PutObject 上传对象
func (m *MinioClient) PutObject(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := m.client.PutObject(ctx, m.bucketName, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("上传对象 %s 失败: %w", key, err)
	}
	return nil
}

// ListObjects 列出前缀下的对象并统计
func (m *MinioClient) ListObjects(ctx context.Context, prefix string, recursive bool) ([]ObjectInfo, *BucketStats, error) {
	stats := &BucketStats{}
	var objects []ObjectInfo

	objectCh := m.client.ListObjects(ctx, m.bucketName, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: recursive,
	})
	for object := range objectCh {
		if object.Err != nil {
			return nil, nil, fmt.Errorf("列出对象时出错: %w", object.Err)
		}

		stats.TotalObjects++
		stats.TotalSize += object.Size
		if object.LastModified.After(stats.LastModified) {
			stats.LastModified = object.LastModified
		}

		objects = append(objects, ObjectInfo{
			Key:          object.Key,
			Size:         object.Size,
			LastModified: object.LastModified,
			ContentType:  object.ContentType,
			ETag:         object.ETag,
		})
	}
	return objects, stats, nil
}

// DeleteDirectory 删除前缀下的所有对象
func (m *MinioClient) DeleteDirectory(ctx context.Context, prefix string) (int, error) {
	if prefix == "" {
		return 0, fmt.Errorf("删除操作需要指定目录前缀")
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	objectsCh := make(chan minio.ObjectInfo)
	go func() {
		defer close(objectsCh)
		for object := range m.client.ListObjects(ctx, m.bucketName, minio.ListObjectsOptions{
			Prefix:    prefix,
			Recursive: true,
		}) {
			if object.Err != nil {
				logger.Warn("[DeleteDirectory] 列出对象时出错", logger.ErrorField(object.Err))
				continue
			}
			objectsCh <- object
		}
	}()

	deleted := 0
	for _, key := range collectKeys(objectsCh) {
		if err := m.client.RemoveObject(ctx, m.bucketName, key, minio.RemoveObjectOptions{}); err != nil {
			return deleted, fmt.Errorf("删除对象 %s 失败: %w", key, err)
		}
		deleted++
	}
	logger.Info("[DeleteDirectory] 删除完成", logger.String("prefix", prefix), logger.Int("count", deleted))
	return deleted, nil
}

func collectKeys(ch <-chan minio.ObjectInfo) []string {
	var keys []string
	for o := range ch {
		keys = append(keys, o.Key)
	}
	return keys
}

func wrapNotFound(err error, bucket, key string) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
		return fmt.Errorf("%w: %s/%s", ErrObjectNotFound, bucket, key)
	}
	return fmt.Errorf("读取对象 %s/%s 失败: %w", bucket, key, err)
}

// FormatSize 格式化文件大小
func FormatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
