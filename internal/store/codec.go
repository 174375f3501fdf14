package store

import (
	"context"
	"strconv"
)

// GetString reads a scalar as a string.
func GetString(ctx context.Context, tx Tx, key string) (string, bool, error) {
	v, ok, err := tx.Get(ctx, key)
	if err != nil || !ok {
		return "", ok, err
	}
	return string(v), true, nil
}

// PutString writes a scalar string.
func PutString(ctx context.Context, tx Tx, key, value string) error {
	return tx.Put(ctx, key, []byte(value))
}

// MapGetString reads a map entry as a string.
func MapGetString(ctx context.Context, tx Tx, m, key string) (string, bool, error) {
	v, ok, err := tx.MapGet(ctx, m, key)
	if err != nil || !ok {
		return "", ok, err
	}
	return string(v), true, nil
}

// MapPutString writes a map entry string.
func MapPutString(ctx context.Context, tx Tx, m, key, value string) error {
	return tx.MapPut(ctx, m, key, []byte(value))
}

// FormatIndex renders a log index or set member as a map key.
func FormatIndex(n uint64) string {
	return strconv.FormatUint(n, 10)
}
