// Package domain defines the capacity enforcement contract for the hierarchy.
package domain

import (
	"context"
	"errors"

	partydomain "github.com/smallbiznis/licensia/internal/party/domain"
	"gorm.io/gorm"
)

// ErrQuotaExceeded is returned when a parent has no free child slot or any
// ancestor has exhausted its subtree licensee capacity.
var ErrQuotaExceeded = errors.New("quota_exceeded")

// Service reserves and releases capacity slots. All methods run inside the
// caller's transaction so an aborted create never leaks a slot.
type Service interface {
	// Reserve takes one direct child slot on chain[0] and, when childKind is
	// a licensee, one subtree slot on every node in the chain. The chain is
	// ordered [parent, ..., root].
	Reserve(ctx context.Context, tx *gorm.DB, chain []partydomain.PartyNode, childKind partydomain.Kind) error
	// Release returns the slots taken by Reserve. Counters never go below zero.
	Release(ctx context.Context, tx *gorm.DB, chain []partydomain.PartyNode, childKind partydomain.Kind) error
}
