package utils

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

var geoHTTPClient = &http.Client{Timeout: 3 * time.Second}

type geoAPIResp struct {
	IP       string `json:"ip"`
	Location string `json:"location"`
}

// simple in-memory TTL cache
type geoCacheEntry struct {
	value     string
	expiresAt time.Time
}

var (
	ipCountryMu    sync.RWMutex
	ipCountryCache = make(map[string]geoCacheEntry)
	ipCountryTTL   = 24 * time.Hour
)

// NormalizeCountryName returns the leading country segment of a location
// string (e.g. "Colombia - Antioquia - Medellin" -> "Colombia").
func NormalizeCountryName(name string) string {
	s := strings.TrimSpace(name)
	if s == "" {
		return ""
	}
	dashMapped := strings.Map(func(r rune) rune {
		switch r {
		case '-', '–', '—', '‑', '‒', '﹣', '－':
			return '-'
		default:
			return r
		}
	}, s)
	if idx := strings.IndexRune(dashMapped, '-'); idx >= 0 {
		return strings.TrimSpace(dashMapped[:idx])
	}
	toks := strings.Fields(dashMapped)
	if len(toks) > 0 {
		return strings.TrimSpace(toks[0])
	}
	return strings.TrimSpace(dashMapped)
}

// IsPrivateIP returns true for RFC1918 and loopback ranges.
func IsPrivateIP(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate()
}

// GetIPCountry returns the country for an IP with in-memory and Redis caching.
// Private and loopback addresses resolve to empty with no error.
func GetIPCountry(ctx context.Context, ip string) (string, error) {
	if ip == "" || IsPrivateIP(ip) {
		return "", nil
	}
	if v, ok := geoCacheGet(ip); ok {
		return v, nil
	}
	if v, ok := geoRedisGet(ctx, ip); ok {
		geoCacheSet(ip, v)
		return v, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://api.cloudcpp.com/ip/"+ip, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "Descubre/1.0 (compatible; DescubreClient/1.0)")
	resp, err := geoHTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", errors.New("ip api non-200")
	}
	var body geoAPIResp
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	country := NormalizeCountryName(body.Location)
	if country != "" {
		geoCacheSet(ip, country)
		_ = geoRedisSet(ctx, ip, country)
	}
	return country, nil
}

func geoCacheGet(ip string) (string, bool) {
	ipCountryMu.RLock()
	e, ok := ipCountryCache[ip]
	ipCountryMu.RUnlock()
	if !ok {
		return "", false
	}
	if time.Now().After(e.expiresAt) {
		ipCountryMu.Lock()
		delete(ipCountryCache, ip)
		ipCountryMu.Unlock()
		return "", false
	}
	return e.value, true
}

func geoCacheSet(ip, country string) {
	ipCountryMu.Lock()
	ipCountryCache[ip] = geoCacheEntry{value: country, expiresAt: time.Now().Add(ipCountryTTL)}
	ipCountryMu.Unlock()
}

func geoRedisKey(ip string) string { return "ipcountry:" + ip }

func geoRedisGet(ctx context.Context, ip string) (string, bool) {
	cli := GetRedis()
	if cli == nil {
		return "", false
	}
	ctx2, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()
	val, err := cli.Get(ctx2, geoRedisKey(ip)).Result()
	if err != nil || val == "" {
		return "", false
	}
	return val, true
}

func geoRedisSet(ctx context.Context, ip, country string) error {
	cli := GetRedis()
	if cli == nil {
		return nil
	}
	ctx2, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()
	return cli.Set(ctx2, geoRedisKey(ip), country, ipCountryTTL).Err()
}
