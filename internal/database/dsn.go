package database

import (
	"fmt"
	"net/url"

	"github.com/linguahub/aui-stream/internal/config"
)

// ConnString renders the database settings as a postgres:// URL. Credentials
// go through url.UserPassword, which escapes characters with URL meaning.
func ConnString(cfg config.DBConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:     "/" + cfg.Name,
		RawQuery: "sslmode=" + sslMode,
	}
	return u.String()
}
