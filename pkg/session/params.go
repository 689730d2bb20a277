package session

import (
	"crypto/tls"
	"strconv"
	"time"

	"github.com/outpostdb/pgwire/pkg/auth"
)

// ConnectionParameters is immutable once a Session is created from it, per
// spec: nothing in the Session mutates its own configuration.
type ConnectionParameters struct {
	User     string
	Database string // defaults to User if empty, per spec's StartupMessage boundary behavior

	Host string // "/" prefix selects the domain-socket convention
	Port int

	Password auth.Password

	TLSConfig *tls.Config // nil disables SSL entirely

	ApplicationName string
	Replication     string // "", "true", "false", or "database"
	Options         string
	ClientEncoding  string

	StatementTimeout                 time.Duration
	LockTimeout                      time.Duration
	IdleInTransactionSessionTimeout  time.Duration

	ConnectTimeout time.Duration
	QueryTimeout   time.Duration // default per-query read timeout; a Query may override

	BinaryDefault bool

	Keepalive     bool
	KeepaliveIdle time.Duration
}

// database returns Database, defaulting to User per spec §8's boundary
// behavior: "A StartupMessage with user but no database must default
// database := user."
func (p ConnectionParameters) database() string {
	if p.Database != "" {
		return p.Database
	}
	return p.User
}

// startupParameters builds the key/value parameters for the
// StartupMessage, omitting anything left at its zero value.
func (p ConnectionParameters) startupParameters() map[string]string {
	params := map[string]string{
		"user":     p.User,
		"database": p.database(),
	}
	if p.ApplicationName != "" {
		params["application_name"] = p.ApplicationName
	}
	if p.Replication != "" {
		params["replication"] = p.Replication
	}
	if p.Options != "" {
		params["options"] = p.Options
	}
	if p.ClientEncoding != "" {
		params["client_encoding"] = p.ClientEncoding
	}
	if p.StatementTimeout > 0 {
		params["statement_timeout"] = durationToMillis(p.StatementTimeout)
	}
	if p.LockTimeout > 0 {
		params["lock_timeout"] = durationToMillis(p.LockTimeout)
	}
	if p.IdleInTransactionSessionTimeout > 0 {
		params["idle_in_transaction_session_timeout"] = durationToMillis(p.IdleInTransactionSessionTimeout)
	}
	return params
}

func durationToMillis(d time.Duration) string {
	ms := d.Milliseconds()
	if ms <= 0 {
		ms = 1
	}
	return strconv.FormatInt(ms, 10)
}
