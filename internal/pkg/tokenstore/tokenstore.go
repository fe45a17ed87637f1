package tokenstore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	revokedKeyPrefix = "hh:revoked:"
	tokenKeyPrefix   = "hh:token:"
)

// Purpose 一次性令牌的用途
type Purpose string

const (
	PurposeOAuthState    Purpose = "oauth_state"
	PurposePasswordReset Purpose = "password_reset"
)

var ErrTokenNotFound = errors.New("invalid or expired token")

// Store 基于 Redis 的令牌存储：吊销名单和一次性令牌
type Store struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// Revoke 将令牌 ID 加入吊销名单，直到令牌自然过期
func (s *Store) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if jti == "" || ttl <= 0 {
		return nil
	}
	if err := s.rdb.Set(ctx, revokedKeyPrefix+jti, 1, ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// IsRevoked 令牌是否已被吊销
func (s *Store) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	n, err := s.rdb.Exists(ctx, revokedKeyPrefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check revoked token: %w", err)
	}
	return n > 0, nil
}

// Issue 生成一次性令牌并保存关联的值
func (s *Store) Issue(ctx context.Context, purpose Purpose, value string, ttl time.Duration) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	token := hex.EncodeToString(buf)

	if err := s.rdb.Set(ctx, key(purpose, token), value, ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store token: %w", err)
	}
	return token, nil
}

// Consume 校验并删除一次性令牌，返回关联的值
func (s *Store) Consume(ctx context.Context, purpose Purpose, token string) (string, error) {
	if token == "" {
		return "", ErrTokenNotFound
	}

	k := key(purpose, token)
	var value string
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		val, err := tx.Get(ctx, k).Result()
		if err == redis.Nil {
			return ErrTokenNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get token: %w", err)
		}
		value = val

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, k)
			return nil
		})
		return err
	}, k)
	if err != nil {
		return "", err
	}
	return value, nil
}

func key(purpose Purpose, token string) string {
	return tokenKeyPrefix + string(purpose) + ":" + token
}
