package utils

import (
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/descubrelocal/descubre/config"
)

func TestMain(m *testing.M) {
	os.Setenv("JWT_SECRET", "test-secret")

	mr, err := miniredis.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "miniredis: %v\n", err)
		os.Exit(1)
	}
	host, port, _ := strings.Cut(mr.Addr(), ":")
	os.Setenv("REDIS_HOST", host)
	os.Setenv("REDIS_PORT", port)
	config.Load()

	code := m.Run()
	mr.Close()
	os.Exit(code)
}

func TestCacheRoundTrip(t *testing.T) {
	key := "cache:test:roundtrip"
	CacheSetBytes(key, []byte(`{"ok":true}`), time.Minute)

	b, ok := CacheGetBytes(key)
	require.True(t, ok)
	require.JSONEq(t, `{"ok":true}`, string(b))

	_, ok = CacheGetBytes("cache:test:missing")
	require.False(t, ok)
}

func TestCacheSetJSON(t *testing.T) {
	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	CacheSetJSON("cache:test:json", payload{Name: "visits", Count: 3}, time.Minute)

	b, ok := CacheGetBytes("cache:test:json")
	require.True(t, ok)
	require.JSONEq(t, `{"name":"visits","count":3}`, string(b))
}

func TestInvalidateByPrefix(t *testing.T) {
	CacheSetBytes("cache:places:list:page=1", []byte("a"), time.Minute)
	CacheSetBytes("cache:places:list:page=2", []byte("b"), time.Minute)
	CacheSetBytes("cache:place:detail:7", []byte("c"), time.Minute)

	InvalidateByPrefix("cache:places:list:")

	_, ok := CacheGetBytes("cache:places:list:page=1")
	require.False(t, ok)
	_, ok = CacheGetBytes("cache:places:list:page=2")
	require.False(t, ok)
	_, ok = CacheGetBytes("cache:place:detail:7")
	require.True(t, ok)
}

func TestTokenBlacklist(t *testing.T) {
	token := "blacklist-test-token"
	require.False(t, IsTokenBlacklisted(token))

	BlacklistToken(token, time.Now().Add(time.Hour))
	require.True(t, IsTokenBlacklisted(token))
}

func TestGenerateAndParseToken(t *testing.T) {
	token, err := GenerateToken(7, "alice", "tourist", time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(token)
	require.NoError(t, err)
	require.Equal(t, uint(7), claims.UserID)
	require.Equal(t, "alice", claims.Username)
	require.Equal(t, "tourist", claims.Role)

	_, err = ParseToken(token + "tampered")
	require.Error(t, err)
}

func TestVerificationCodeConsume(t *testing.T) {
	email := "visitor@example.com"
	code := GenerateVerificationCode(6)
	require.Len(t, code, 6)

	SaveCode(email, code, time.Minute)
	require.False(t, VerifyAndConsumeCode(email, "000000"))
	// The wrong attempt consumed the stored code.
	SaveCode(email, code, time.Minute)
	require.True(t, VerifyAndConsumeCode(email, code))
	// Single use.
	require.False(t, VerifyAndConsumeCode(email, code))
}

func TestOAuthStateSingleUse(t *testing.T) {
	SaveState("state-abc", time.Minute)
	require.True(t, ConsumeState("state-abc"))
	require.False(t, ConsumeState("state-abc"))
	require.False(t, ConsumeState("never-saved"))
}

func TestNormalizeCountryName(t *testing.T) {
	require.Equal(t, "Colombia", NormalizeCountryName("Colombia - Antioquia - Medellin"))
	require.Equal(t, "France", NormalizeCountryName(" France – Paris"))
	require.Equal(t, "Peru", NormalizeCountryName("Peru Lima"))
	require.Equal(t, "", NormalizeCountryName("   "))
}

func TestIsPrivateIP(t *testing.T) {
	require.True(t, IsPrivateIP("127.0.0.1"))
	require.True(t, IsPrivateIP("10.1.2.3"))
	require.True(t, IsPrivateIP("192.168.0.5"))
	require.False(t, IsPrivateIP("8.8.8.8"))
	require.False(t, IsPrivateIP("not-an-ip"))
}
