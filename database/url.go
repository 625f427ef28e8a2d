package database

import (
	"net/url"
)

// ConstructDatabaseURL points baseURL at databaseName and defaults sslmode to
// disable. An empty name or an unparseable URL returns baseURL unchanged; the
// pool reports the parse error.
func ConstructDatabaseURL(baseURL, databaseName string) string {
	if databaseName == "" {
		return baseURL
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return baseURL
	}
	u.Path = "/" + databaseName

	query := u.Query()
	if query.Get("sslmode") == "" {
		query.Set("sslmode", "disable")
	}
	u.RawQuery = query.Encode()

	return u.String()
}
