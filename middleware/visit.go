package middleware

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/descubrelocal/descubre/config"
	"github.com/descubrelocal/descubre/indicators"
	"github.com/descubrelocal/descubre/utils"
)

// VisitRecorder counts successful page views against the site_visits
// indicator and classifies visitor origin for international_visits.
// Recording never blocks or fails the request.
func VisitRecorder(svc *indicators.Service) gin.HandlerFunc {
	homeCountry := utils.NormalizeCountryName(config.Get().HomeCountry)

	return func(c *gin.Context) {
		c.Next()

		// Only count successful page views for GET requests.
		if c.Request.Method != "GET" {
			return
		}
		status := c.Writer.Status()
		if status < 200 || status >= 400 {
			return
		}

		// Ignore non-content endpoints to avoid skewing visit counts.
		path := c.Request.URL.Path
		if path == "/health" || strings.HasPrefix(path, "/api/") || strings.HasPrefix(path, "/static/") {
			return
		}

		svc.IncrementAsync(indicators.SiteVisits)

		ip := effectiveClientIP(c)
		if ip == "" || utils.IsPrivateIP(ip) {
			return
		}
		go func() {
			defer func() { _ = recover() }()
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			country, err := utils.GetIPCountry(ctx, ip)
			if err != nil || country == "" {
				return
			}
			if utils.NormalizeCountryName(country) != homeCountry {
				svc.IncrementAsync(indicators.InternationalVisits)
			}
		}()
	}
}

func clientIP(c *gin.Context) string {
	ip := c.ClientIP()
	if h, _, err := net.SplitHostPort(ip); err == nil {
		return h
	}
	return ip
}

// effectiveClientIP extracts the real visitor IP considering common proxy headers.
// Priority: CF-Connecting-IP > X-Real-IP > first of X-Forwarded-For > gin.ClientIP
func effectiveClientIP(c *gin.Context) string {
	if v := strings.TrimSpace(c.GetHeader("CF-Connecting-IP")); v != "" {
		v = stripPort(v)
		if isValidPublicIP(v) {
			return v
		}
	}
	if v := strings.TrimSpace(c.GetHeader("X-Real-IP")); v != "" {
		v = stripPort(v)
		if isValidPublicIP(v) {
			return v
		}
	}
	if v := strings.TrimSpace(c.GetHeader("X-Forwarded-For")); v != "" {
		parts := strings.Split(v, ",")
		if len(parts) > 0 {
			cand := strings.TrimSpace(parts[0])
			cand = stripPort(cand)
			if isValidPublicIP(cand) {
				return cand
			}
		}
	}
	return clientIP(c)
}

func stripPort(ip string) string {
	if h, _, err := net.SplitHostPort(ip); err == nil {
		return h
	}
	return ip
}

func isValidPublicIP(ip string) bool {
	p := net.ParseIP(ip)
	if p == nil {
		return false
	}
	if p.IsLoopback() || p.IsPrivate() {
		return false
	}
	return true
}
