// Package noop is a Store that keeps nothing. Reads return empty results.
package noop

import (
	"context"
	"time"
)

type Store struct{}

func NewStore() *Store {
	return &Store{}
}

func (*Store) Get(context.Context, string) (string, error)           { return "", nil }
func (*Store) Set(context.Context, string, any, time.Duration) error { return nil }
func (*Store) Delete(context.Context, ...string) error               { return nil }
func (*Store) Expire(context.Context, string, time.Duration) error   { return nil }
func (*Store) HSet(context.Context, string, map[string]any) error    { return nil }
func (*Store) HIncrBy(context.Context, string, string, int64) (int64, error) {
	return 0, nil
}
func (*Store) HGetAll(context.Context, string) (map[string]string, error) {
	return map[string]string{}, nil
}
func (*Store) RPush(context.Context, string, ...any) error { return nil }
func (*Store) LRange(context.Context, string, int64, int64) ([]string, error) {
	return nil, nil
}
func (*Store) SAdd(context.Context, string, ...any) error         { return nil }
func (*Store) SMembers(context.Context, string) ([]string, error) { return nil, nil }
func (*Store) Ping(context.Context) error                         { return nil }
func (*Store) Close() error                                       { return nil }
