package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	// Addr is the listen address, ":8080" unless PORT overrides it.
	Addr string

	// AllowedOrigins are websocket origin patterns, comma separated in
	// ALLOWED_ORIGINS. Empty means same-origin only.
	AllowedOrigins []string

	// DatabaseURL enables match history recording when set.
	DatabaseURL string

	MaxPlayersPerLobby int
}

func FromEnv() Config {
	cfg := Config{
		Addr:               ":8080",
		MaxPlayersPerLobby: 20,
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.Addr = ":" + port
	}
	if raw := os.Getenv("ALLOWED_ORIGINS"); raw != "" {
		for _, origin := range strings.Split(raw, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
			}
		}
	}
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if raw := os.Getenv("MAX_PLAYERS_PER_LOBBY"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			cfg.MaxPlayersPerLobby = n
		}
	}

	return cfg
}
