package utils

import (
	"context"
	"time"

	"github.com/mojocn/base64Captcha"
)

// Captcha answers live in Redis so verification works behind a load
// balancer; the library's in-memory store is the single-instance fallback.
var captchaStore base64Captcha.Store = newRedisCaptchaStore(10 * time.Minute)

// GenerateCaptcha creates a digit captcha and returns (id, dataURI).
func GenerateCaptcha() (string, string, error) {
	driver := base64Captcha.NewDriverDigit(40, 120, 5, 0.7, 80)
	c := base64Captcha.NewCaptcha(driver, captchaStore)
	id, b64, _, err := c.Generate()
	return id, b64, err
}

// VerifyCaptcha verifies the provided answer, consuming it on success.
func VerifyCaptcha(id, answer string) bool {
	if id == "" || answer == "" {
		return false
	}
	return captchaStore.Verify(id, answer, true)
}

// VerifyCaptchaNoConsume verifies without consuming the stored answer,
// used for client-side blur validation.
func VerifyCaptchaNoConsume(id, answer string) bool {
	if id == "" || answer == "" {
		return false
	}
	return captchaStore.Verify(id, answer, false)
}

type redisCaptchaStore struct {
	ttl      time.Duration
	fallback base64Captcha.Store
}

func newRedisCaptchaStore(ttl time.Duration) base64Captcha.Store {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &redisCaptchaStore{ttl: ttl, fallback: base64Captcha.DefaultMemStore}
}

func (s *redisCaptchaStore) key(id string) string {
	return "captcha:" + id
}

// Set stores the captcha value with TTL.
func (s *redisCaptchaStore) Set(id string, value string) error {
	rc := GetRedis()
	if rc == nil {
		return s.fallback.Set(id, value)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rc.Set(ctx, s.key(id), value, s.ttl).Err(); err != nil {
		return s.fallback.Set(id, value)
	}
	return nil
}

// Get retrieves the value and optionally clears it.
func (s *redisCaptchaStore) Get(id string, clear bool) string {
	rc := GetRedis()
	if rc == nil {
		return s.fallback.Get(id, clear)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if clear {
		if v, err := rc.GetDel(ctx, s.key(id)).Result(); err == nil {
			return v
		}
		return s.fallback.Get(id, clear)
	}
	v, err := rc.Get(ctx, s.key(id)).Result()
	if err != nil {
		return s.fallback.Get(id, clear)
	}
	return v
}

// Verify compares the answer and optionally clears it.
func (s *redisCaptchaStore) Verify(id, answer string, clear bool) bool {
	v := s.Get(id, clear)
	return v != "" && v == answer
}
