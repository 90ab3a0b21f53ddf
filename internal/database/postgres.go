package database

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openPostgres(cfg Config) (*gorm.DB, error) {
	dsn, err := buildPostgresDSN(cfg)
	if err != nil {
		return nil, err
	}
	return gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
}

// buildPostgresDSN renders a keyword/value connection string and checks it with the
// pgx parser so a bad sslmode or port fails at startup instead of on first query.
func buildPostgresDSN(cfg Config) (string, error) {
	dsn := cfg.DSN
	if dsn == "" {
		if cfg.User == "" || cfg.Name == "" {
			return "", errors.New("postgres configuration requires user and database name")
		}

		host := cfg.Host
		if host == "" {
			host = "localhost"
		}
		port := cfg.Port
		if port == 0 {
			port = 5432
		}

		params := []string{
			pgParam("host", host),
			pgParam("port", strconv.Itoa(port)),
			pgParam("user", cfg.User),
			pgParam("dbname", cfg.Name),
		}
		if cfg.Password != "" {
			params = append(params, pgParam("password", cfg.Password))
		}

		options := map[string]string{"sslmode": "disable"}
		for key, value := range cfg.Options {
			options[key] = value
		}
		keys := make([]string, 0, len(options))
		for key := range options {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			params = append(params, pgParam(key, options[key]))
		}
		dsn = strings.Join(params, " ")
	}

	if _, err := pgconn.ParseConfig(dsn); err != nil {
		return "", fmt.Errorf("invalid postgres dsn: %w", err)
	}
	return dsn, nil
}

// pgParam quotes values the way libpq expects when they contain spaces or quotes.
func pgParam(key, value string) string {
	if value != "" && !strings.ContainsAny(value, ` '\`) {
		return key + "=" + value
	}
	escaped := strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(value)
	return key + "='" + escaped + "'"
}
