//go:generate mockgen -package mocks -destination mocks/interface.go -source=interface.go
package s3

import (
	"context"
	"errors"
)

var ErrKeyNotFound = errors.New("key not found")

// Client reads objects below the prefix it was created with.
// Keys passed to and returned from a Client are relative to that prefix.
type Client interface {
	Lister
	Getter
}

type Lister interface {
	// List returns every key starting with prefix, in lexical order.
	List(ctx context.Context, prefix string) (keys []string, err error)
}

type Getter interface {
	// Get returns ErrKeyNotFound if the given key doesn't exist.
	Get(ctx context.Context, key string) (data []byte, err error)
}
