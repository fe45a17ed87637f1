package oss

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/homework_helper/config"
)

func newTestClient(t *testing.T, cdn string) *Client {
	t.Helper()

	c, err := NewClient(&config.OSSConfig{
		Endpoint:        "oss-cn-hangzhou.aliyuncs.com",
		AccessKeyID:     "id",
		AccessKeySecret: "secret",
		BucketName:      "hh-assets",
		CDNDomain:       cdn,
	})
	require.NoError(t, err)
	return c
}

func TestClient_URL(t *testing.T) {
	c := newTestClient(t, "")
	assert.Equal(t, "https://hh-assets.oss-cn-hangzhou.aliyuncs.com/avatars/1/2.png", c.URL("avatars/1/2.png"))

	cdn := newTestClient(t, "cdn.example.com")
	assert.Equal(t, "https://cdn.example.com/avatars/1/2.png", cdn.URL("avatars/1/2.png"))
}

func TestClient_ObjectKey(t *testing.T) {
	c := newTestClient(t, "cdn.example.com")

	assert.Equal(t, "avatars/1/2.png", c.ObjectKey("https://cdn.example.com/avatars/1/2.png"))
	assert.Equal(t, "homework/1/3/x.jpg", c.ObjectKey("https://hh-assets.oss-cn-hangzhou.aliyuncs.com/homework/1/3/x.jpg"))
	assert.Equal(t, "", c.ObjectKey("https://avatars.githubusercontent.com/u/1"))
}

func TestExtension(t *testing.T) {
	assert.Equal(t, ".jpg", Extension("image/jpeg"))
	assert.Equal(t, ".png", Extension("image/png"))
	assert.Equal(t, ".webp", Extension("image/webp"))
	assert.Equal(t, "", Extension("application/pdf"))
}
