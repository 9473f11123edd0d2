package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// LoadEnv 读取 .env（不存在时忽略），已有的环境变量优先
func LoadEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			zap.S().Warnf("load %s: %v", f, err)
		}
	}
}

func Get(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func GetInt(k string, def int) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// GetList 逗号分隔，去空白；lower=true 时统一小写（邮箱列表）
func GetList(k string, lower bool) []string {
	var out []string
	for _, s := range strings.Split(os.Getenv(k), ",") {
		t := strings.TrimSpace(s)
		if t == "" {
			continue
		}
		if lower {
			t = strings.ToLower(t)
		}
		out = append(out, t)
	}
	return out
}
