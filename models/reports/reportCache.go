package reports

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mmdatafocus/erp_backend/config"
	"github.com/mmdatafocus/erp_backend/utils"
	"github.com/sirupsen/logrus"
)

func reportCacheEnabled() bool {
	v := strings.TrimSpace(os.Getenv("ENABLE_REPORT_CACHE"))
	return v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes") || strings.EqualFold(v, "on")
}

// REPORT_CACHE_TTL_SECONDS, default 120s.
func reportCacheTTL() time.Duration {
	ttl := 120
	if v := strings.TrimSpace(os.Getenv("REPORT_CACHE_TTL_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			ttl = n
		}
	}
	return time.Duration(ttl) * time.Second
}

// REPORT_SLOW_MS, default 500ms.
func reportSlowMs() int64 {
	ms := int64(500)
	if v := strings.TrimSpace(os.Getenv("REPORT_SLOW_MS")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			ms = n
		}
	}
	return ms
}

func logSlowReport(ctx context.Context, name string, started time.Time, extra logrus.Fields) {
	d := time.Since(started)
	if d.Milliseconds() < reportSlowMs() {
		return
	}
	cid, _ := utils.GetCorrelationIdFromContext(ctx)
	fields := logrus.Fields{
		"field":          "Report",
		"report":         name,
		"ms":             d.Milliseconds(),
		"correlation_id": cid,
	}
	for k, v := range extra {
		fields[k] = v
	}
	config.GetLogger().WithFields(fields).Warn("slow report")
}

func cacheKey(name string, parts ...any) string {
	key := "Report:" + name
	for _, p := range parts {
		key += ":" + fmt.Sprint(p)
	}
	return key
}

// cached returns the cached value under key or builds and stores it. Cache
// failures fall through to build.
func cached[T any](key string, build func() (T, error)) (T, error) {
	if !reportCacheEnabled() || config.GetRedisDB() == nil {
		return build()
	}
	var hit T
	if ok, err := config.GetRedisObject(key, &hit); err == nil && ok {
		return hit, nil
	}
	v, err := build()
	if err != nil {
		return v, err
	}
	_ = config.SetRedisObject(key, v, reportCacheTTL())
	return v, nil
}
