package redis

import (
	"github.com/pkg/errors"
	rclient "github.com/redis/go-redis/v9"
)

var (
	ErrKeyNotFound  = errors.New("key not found")
	ErrClientClosed = errors.New("redis client is closed")
)

// mapError turns go-redis sentinels into this package's errors. Other errors
// are returned unchanged.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rclient.Nil):
		return ErrKeyNotFound
	case errors.Is(err, rclient.ErrClosed):
		return ErrClientClosed
	default:
		return err
	}
}
