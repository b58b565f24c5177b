package app

import (
	"strings"

	"github.com/charlesng35/doctracker/internal/database"
)

// DatabaseConnConfig converts DatabaseConfig into database.Config, picking the
// host credentials that match the configured driver.
func (c DatabaseConfig) DatabaseConnConfig() database.Config {
	cfg := database.Config{
		Driver:          strings.ToLower(strings.TrimSpace(c.Driver)),
		Path:            c.Path,
		DSN:             c.DSN,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
	}

	var creds DBAuthConfig
	switch cfg.Driver {
	case "postgres", "postgresql":
		creds = c.Postgres
	case "mysql", "mariadb":
		creds = c.MySQL
	default:
		return cfg
	}
	cfg.Host = creds.Host
	cfg.Port = creds.Port
	cfg.Name = creds.Database
	cfg.User = creds.Username
	cfg.Password = creds.Password
	return cfg
}
