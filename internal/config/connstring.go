package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Connection-string keywords. Keys are matched case-insensitively; several
// have synonyms carried over from the DSN vocabulary of ODBC tooling.
const (
	KeyDriver          = "driver"
	KeyDSN             = "dsn"
	KeyURI             = "uri"
	KeyServer          = "server"
	KeyUser            = "user"
	KeyUID             = "uid"
	KeyPassword        = "password"
	KeyPWD             = "pwd"
	KeyDatabase        = "database"
	KeyAppName         = "appname"
	KeyLogLevel        = "loglevel"
	KeySimpleTypesOnly = "simple_types_only"
	KeyTimeout         = "timeout"
)

// Attributes is a parsed connection string: normalized lowercase keyword to
// raw value. Unrecognized keywords are preserved and passed through opaquely.
type Attributes map[string]string

// ParseConnectionString splits a semicolon-delimited key=value connection
// string. Empty segments are skipped; on duplicate keywords the first
// occurrence wins, matching DSN resolution rules.
func ParseConnectionString(s string) (Attributes, error) {
	attrs := Attributes{}
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		eq := strings.Index(part, "=")
		if eq <= 0 {
			return nil, fmt.Errorf("invalid connection string attribute %q: expected key=value", part)
		}
		key := strings.ToLower(strings.TrimSpace(part[:eq]))
		val := strings.TrimSpace(part[eq+1:])
		if _, dup := attrs[key]; !dup {
			attrs[key] = val
		}
	}
	return attrs, nil
}

// Connection is the resolved per-connection configuration.
type Connection struct {
	URI             string `validate:"required"`
	Database        string
	User            string
	Password        string
	AppName         string
	LogLevel        string `validate:"omitempty,oneof=error warn info debug trace"`
	SimpleTypesOnly bool
	MaxStringLength int
	Timeout         time.Duration

	// Unrecognized keeps attributes the driver does not interpret; they are
	// reported back through the out-connection-string unchanged.
	Unrecognized map[string]string
}

// Resolve merges parsed connection-string attributes over driver defaults
// and produces the validated per-connection configuration. The client URI is
// either taken verbatim from the uri keyword or assembled from server plus
// credentials.
func Resolve(defaults *Config, attrs Attributes) (*Connection, error) {
	conn := &Connection{
		LogLevel:        defaults.Logging.Level,
		Timeout:         defaults.Query.Timeout,
		MaxStringLength: defaults.Query.MaxStringLength,
		Unrecognized:    map[string]string{},
	}

	lookup := func(keys ...string) string {
		for _, k := range keys {
			if v, ok := attrs[k]; ok {
				return v
			}
		}
		return ""
	}

	conn.User = lookup(KeyUID, KeyUser)
	conn.Password = lookup(KeyPWD, KeyPassword)
	conn.Database = lookup(KeyDatabase)
	conn.AppName = lookup(KeyAppName)
	if lvl := lookup(KeyLogLevel); lvl != "" {
		conn.LogLevel = strings.ToLower(lvl)
	}
	if v := lookup(KeySimpleTypesOnly); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q for %s", v, KeySimpleTypesOnly)
		}
		conn.SimpleTypesOnly = b
		if b && conn.MaxStringLength == 0 {
			conn.MaxStringLength = ClampedStringLength
		}
	}
	if v := lookup(KeyTimeout); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs < 0 {
			return nil, fmt.Errorf("invalid value %q for %s", v, KeyTimeout)
		}
		conn.Timeout = time.Duration(secs) * time.Second
	}

	if uri := lookup(KeyURI); uri != "" {
		conn.URI = uri
	} else if server := lookup(KeyServer); server != "" {
		conn.URI = buildURI(server, conn.User, conn.Password)
	} else {
		return nil, fmt.Errorf("one of %s or %s is required", KeyURI, KeyServer)
	}

	for k, v := range attrs {
		switch k {
		case KeyDriver, KeyDSN, KeyURI, KeyServer, KeyUser, KeyUID,
			KeyPassword, KeyPWD, KeyDatabase, KeyAppName, KeyLogLevel,
			KeySimpleTypesOnly, KeyTimeout:
		default:
			conn.Unrecognized[k] = v
		}
	}

	if err := validate.Struct(conn); err != nil {
		return nil, fmt.Errorf("invalid connection configuration: %w", err)
	}
	return conn, nil
}

// ClampedStringLength is the display size variable-length string columns are
// clamped to when the simple-types toggle is on; some client tools cannot
// bind unbounded string columns.
const ClampedStringLength = 4000

func buildURI(server, user, password string) string {
	if user == "" {
		return "mongodb://" + server
	}
	return fmt.Sprintf("mongodb://%s:%s@%s", url.QueryEscape(user), url.QueryEscape(password), server)
}
