package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Env holds the settings the cdnsync binaries read from the environment.
type Env struct {
	DatabaseURL   string
	NATSURL       string
	Protocol      string
	Bypass        bool
	Inventory     string
	InventoryName string
	ResolverAddr  string
	Bootstrap     string
}

// LoadDotEnv loads the given .env files, or ./.env when none are given. Missing files are
// ignored; variables already set in the process win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// FromEnv reads the CDN_*, DATABASE_URL, NATS_URL and RESOLVER_ADDR variables.
func FromEnv() Env {
	return Env{
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		NATSURL:       os.Getenv("NATS_URL"),
		Protocol:      strings.TrimSuffix(getEnv("CDN_PROTOCOL", "http"), "://"),
		Bypass:        getEnvBool("CDN_BYPASS", false),
		Inventory:     os.Getenv("CDN_INVENTORY"),
		InventoryName: getEnv("CDN_INVENTORY_NAME", "default"),
		ResolverAddr:  getEnv("RESOLVER_ADDR", ":8080"),
		Bootstrap:     os.Getenv("CDN_BOOTSTRAP"),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}
