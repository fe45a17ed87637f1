package oss

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/google/uuid"

	"github.com/qs3c/homework_helper/config"
)

type Client struct {
	bucket     *oss.Bucket
	bucketName string
	endpoint   string
	cdnDomain  string
}

func NewClient(cfg *config.OSSConfig) (*Client, error) {
	client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create OSS client: %w", err)
	}

	bucket, err := client.Bucket(cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to get bucket: %w", err)
	}

	return &Client{
		bucket:     bucket,
		bucketName: cfg.BucketName,
		endpoint:   strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "https://"), "http://"),
		cdnDomain:  cfg.CDNDomain,
	}, nil
}

// UploadAvatar 上传用户头像
func (c *Client) UploadAvatar(ctx context.Context, userID int64, data []byte, contentType string) (string, error) {
	key := fmt.Sprintf("avatars/%d/%d%s", userID, time.Now().Unix(), Extension(contentType))
	return c.put(ctx, key, data, contentType)
}

// UploadChatImage 归档作业图片
func (c *Client) UploadChatImage(ctx context.Context, userID, sessionID int64, data []byte, contentType string) (string, error) {
	key := fmt.Sprintf("homework/%d/%d/%s%s", userID, sessionID, uuid.NewString(), Extension(contentType))
	return c.put(ctx, key, data, contentType)
}

// DeleteByURL 按访问地址删除对象，非本桶地址忽略
func (c *Client) DeleteByURL(ctx context.Context, url string) error {
	key := c.ObjectKey(url)
	if key == "" {
		return nil
	}
	if err := c.bucket.DeleteObject(key, oss.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

func (c *Client) put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	err := c.bucket.PutObject(key, bytes.NewReader(data), oss.ContentType(contentType), oss.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return c.URL(key), nil
}

// URL 获取文件访问 URL
func (c *Client) URL(key string) string {
	if c.cdnDomain != "" {
		return fmt.Sprintf("https://%s/%s", c.cdnDomain, key)
	}
	return fmt.Sprintf("https://%s.%s/%s", c.bucketName, c.endpoint, key)
}

// ObjectKey 从访问 URL 中提取 object key
func (c *Client) ObjectKey(url string) string {
	prefixes := []string{fmt.Sprintf("https://%s.%s/", c.bucketName, c.endpoint)}
	if c.cdnDomain != "" {
		prefixes = append(prefixes, fmt.Sprintf("https://%s/", c.cdnDomain))
	}
	for _, p := range prefixes {
		if strings.HasPrefix(url, p) {
			return strings.TrimPrefix(url, p)
		}
	}
	return ""
}

// Extension 根据 Content-Type 获取扩展名
func Extension(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ""
	}
}
