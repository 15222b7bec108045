package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/clinic-manager/internal/config"
	"github.com/iliyamo/clinic-manager/internal/database"
	"github.com/iliyamo/clinic-manager/internal/model"
	"github.com/iliyamo/clinic-manager/internal/notify"
	"github.com/iliyamo/clinic-manager/internal/repository"
	"github.com/iliyamo/clinic-manager/internal/utils"
)

// ErrOTPInvalid covers wrong, expired, exhausted and unknown codes alike.
var ErrOTPInvalid = errors.New("invalid or expired code")

// RedisOTPStore keeps one pending code per (tenant, email) as a hash with
// the bcrypt digest and the number of failed attempts.
type RedisOTPStore struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisOTPStore(rdb *redis.Client, prefix string) *RedisOTPStore {
	return &RedisOTPStore{rdb: rdb, prefix: prefix}
}

func (s *RedisOTPStore) key(tenant, email string) string {
	return s.prefix + ":" + tenant + ":" + email
}

// Put replaces any pending code.
func (s *RedisOTPStore) Put(ctx context.Context, tenant, email, hash string, ttl time.Duration) error {
	k := s.key(tenant, email)
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, k)
		p.HSet(ctx, k, "hash", hash, "attempts", 0)
		p.Expire(ctx, k, ttl)
		return nil
	})
	return err
}

// Get returns the pending digest and failed attempts so far.
func (s *RedisOTPStore) Get(ctx context.Context, tenant, email string) (hash string, attempts int, err error) {
	vals, err := s.rdb.HMGet(ctx, s.key(tenant, email), "hash", "attempts").Result()
	if err != nil {
		return "", 0, err
	}
	h, _ := vals[0].(string)
	if h == "" {
		return "", 0, redis.Nil
	}
	if a, ok := vals[1].(string); ok {
		attempts, _ = strconv.Atoi(a)
	}
	return h, attempts, nil
}

// Fail records a wrong guess and returns the new attempt count.
func (s *RedisOTPStore) Fail(ctx context.Context, tenant, email string) (int, error) {
	n, err := s.rdb.HIncrBy(ctx, s.key(tenant, email), "attempts", 1).Result()
	return int(n), err
}

func (s *RedisOTPStore) Delete(ctx context.Context, tenant, email string) error {
	return s.rdb.Del(ctx, s.key(tenant, email)).Err()
}

// OTPService issues and redeems emailed one-time login codes.
type OTPService struct {
	store  *RedisOTPStore
	models *repository.Factory
	mail   notify.Sender
	cfg    config.OTPConfig
	logger *zap.Logger
}

func NewOTPService(store *RedisOTPStore, models *repository.Factory, mail notify.Sender, cfg config.OTPConfig, logger *zap.Logger) *OTPService {
	return &OTPService{store: store, models: models, mail: mail, cfg: cfg, logger: logger}
}

// Request emails a fresh code to an active user of the tenant behind conn.
// Unknown addresses succeed silently so the endpoint cannot be used to
// probe for accounts.
func (s *OTPService) Request(ctx context.Context, conn *database.Conn, email string) error {
	email = utils.NormalizeEmail(email)
	u, err := s.models.Users(conn).FindOne(ctx, repository.Where("email", email))
	if errors.Is(err, repository.ErrNotFound) || (err == nil && !u.IsActive) {
		s.logger.Info("otp requested for unknown user", zap.String("tenant", conn.Tenant()))
		return nil
	}
	if err != nil {
		return err
	}

	code, err := utils.NewOTPCode(s.cfg.Digits)
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.MinCost)
	if err != nil {
		return err
	}
	if err := s.store.Put(ctx, conn.Tenant(), email, string(hash), s.cfg.TTL); err != nil {
		return fmt.Errorf("store otp: %w", err)
	}
	msg := notify.Message{
		To:      email,
		Subject: "Your login code",
		HTML: fmt.Sprintf("<p>Your login code is <b>%s</b>.</p><p>It expires in %d minutes.</p>",
			code, int(s.cfg.TTL.Minutes())),
	}
	if err := s.mail.Send(ctx, msg); err != nil {
		s.logger.Warn("otp email failed", zap.String("tenant", conn.Tenant()), zap.Uint64("user_id", u.ID), zap.Error(err))
	}
	return nil
}

// Verify redeems code and returns the user it was issued to.  A code is
// single use and dies after MaxAttempts wrong guesses.
func (s *OTPService) Verify(ctx context.Context, conn *database.Conn, email, code string) (model.User, error) {
	email = utils.NormalizeEmail(email)
	tenantKey := conn.Tenant()
	hash, attempts, err := s.store.Get(ctx, tenantKey, email)
	if errors.Is(err, redis.Nil) {
		return model.User{}, ErrOTPInvalid
	}
	if err != nil {
		return model.User{}, err
	}
	if attempts >= s.cfg.MaxAttempts {
		_ = s.store.Delete(ctx, tenantKey, email)
		return model.User{}, ErrOTPInvalid
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) != nil {
		n, ferr := s.store.Fail(ctx, tenantKey, email)
		if ferr == nil && n >= s.cfg.MaxAttempts {
			_ = s.store.Delete(ctx, tenantKey, email)
		}
		return model.User{}, ErrOTPInvalid
	}
	if err := s.store.Delete(ctx, tenantKey, email); err != nil {
		return model.User{}, err
	}

	u, err := s.models.Users(conn).FindOne(ctx, repository.Where("email", email))
	if errors.Is(err, repository.ErrNotFound) || (err == nil && !u.IsActive) {
		return model.User{}, ErrOTPInvalid
	}
	return u, err
}
