package app

import (
	"context"
	"fmt"
	"time"

	"github.com/dkeye/WatchParty/internal/auth"
	"github.com/dkeye/WatchParty/internal/domain"
	"github.com/rs/zerolog/log"
)

const DefaultAuthTimeout = 15 * time.Second

// Authenticator runs the token verifier once per connection, bounded by timeout.
type Authenticator struct {
	verifier auth.Verifier
	timeout  time.Duration
}

func NewAuthenticator(v auth.Verifier, timeout time.Duration) *Authenticator {
	if timeout <= 0 {
		timeout = DefaultAuthTimeout
	}
	return &Authenticator{verifier: v, timeout: timeout}
}

// Authenticate returns domain.ErrAuth for missing, invalid or expired tokens
// and domain.ErrConnectionTimeout when the verifier does not answer in time.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (*domain.Identity, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: %w", domain.ErrAuth, auth.ErrMissingToken)
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	type result struct {
		id  *domain.Identity
		err error
	}
	done := make(chan result, 1)
	go func() {
		id, err := a.verifier.Verify(ctx, token)
		done <- result{id, err}
	}()

	select {
	case <-ctx.Done():
		log.Warn().Str("module", "app.auth").Dur("timeout", a.timeout).Msg("token verification timed out")
		return nil, fmt.Errorf("%w: token verification", domain.ErrConnectionTimeout)
	case res := <-done:
		if res.err != nil {
			log.Info().Err(res.err).Str("module", "app.auth").Msg("token rejected")
			return nil, fmt.Errorf("%w: %w", domain.ErrAuth, res.err)
		}
		return res.id, nil
	}
}
