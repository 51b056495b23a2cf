// Package refreshtokens keeps the denylist of refresh tokens revoked by
// logout. Entries are keyed by the token's jti and only need to live until
// the token would have expired on its own.
package refreshtokens

import (
	"context"
	"time"
)

type Repository interface {
	// Revoke denylists jti until expiresAt. Revoking twice is not an error.
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error

	// IsRevoked reports whether jti is on the denylist.
	IsRevoked(ctx context.Context, jti string) (bool, error)
}
