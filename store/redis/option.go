package redis

import (
	"github.com/redis/go-redis/v9"
)

// options holds Redis store configuration.
type options struct {
	addr     string
	username string
	password string
	db       int
	prefix   string
	client   *redis.Client
}

// Option configures the Redis store.
type Option func(*options)

// WithAddr sets the server address.
// Default is "localhost:6379".
func WithAddr(addr string) Option {
	return func(o *options) {
		o.addr = addr
	}
}

// WithAuth sets the username and password for servers with ACLs enabled.
// Leave username empty for legacy requirepass authentication.
func WithAuth(username, password string) Option {
	return func(o *options) {
		o.username = username
		o.password = password
	}
}

// WithDB selects the logical database number.
func WithDB(db int) Option {
	return func(o *options) {
		o.db = db
	}
}

// WithKeyPrefix sets the prefix applied to every key.
// Default is "ms:". Use distinct prefixes to share a server between
// deployments.
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = prefix
	}
}

// WithClient supplies a pre-built client, overriding the connection
// options. The store takes ownership and closes it on Close.
func WithClient(client *redis.Client) Option {
	return func(o *options) {
		o.client = client
	}
}
