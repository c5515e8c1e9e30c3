package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"rentcar/internal/app/commands"
	"rentcar/internal/app/locks"
)

// IdempotentCommand is replayed from the store when its key has already succeeded.
type IdempotentCommand interface {
	commands.Command
	IdempotencyKey() string
	// ResultPrototype returns a pointer of the handler's result type to decode into.
	ResultPrototype() any
}

// IdempotencyRecord is a stored successful result. Fingerprint hashes the command so a
// key reused for a different request is caught.
type IdempotencyRecord struct {
	Key         string
	Fingerprint string
	Payload     []byte
	OccurredAt  time.Time
}

type IdempotencyStore interface {
	Get(ctx context.Context, key string) (IdempotencyRecord, bool, error)
	Save(ctx context.Context, rec IdempotencyRecord) error
}

var ErrIdempotencyKeyReused = errors.New("middleware: idempotency key reused for a different request")

// Idempotency replays stored results for repeated keys. Requests sharing a key run one at
// a time so a retry racing the original waits for its result. Failures are not stored.
func Idempotency(store IdempotencyStore, keys *locks.Keyed) CommandMiddleware {
	if keys == nil {
		keys = locks.NewKeyed()
	}
	return func(next commands.Bus) commands.Bus {
		return commands.BusFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			idCmd, ok := cmd.(IdempotentCommand)
			if !ok || idCmd.IdempotencyKey() == "" {
				return next.Dispatch(ctx, cmd)
			}
			key := cmd.Key() + ":" + idCmd.IdempotencyKey()
			fingerprint, err := fingerprintOf(cmd)
			if err != nil {
				return nil, err
			}

			ctx, unlock, err := keys.Lock(ctx, "idempotency:"+key)
			if err != nil {
				return nil, err
			}
			defer unlock()

			rec, found, err := store.Get(ctx, key)
			if err != nil {
				return nil, err
			}
			if found {
				if rec.Fingerprint != "" && rec.Fingerprint != fingerprint {
					return nil, fmt.Errorf("%w: %s", ErrIdempotencyKeyReused, idCmd.IdempotencyKey())
				}
				out := idCmd.ResultPrototype()
				if err := json.Unmarshal(rec.Payload, out); err != nil {
					return nil, fmt.Errorf("middleware: decode stored result for %s: %w", key, err)
				}
				return out, nil
			}

			result, err := next.Dispatch(ctx, cmd)
			if err != nil {
				return nil, err
			}
			payload, err := json.Marshal(result)
			if err != nil {
				return nil, err
			}
			err = store.Save(ctx, IdempotencyRecord{
				Key:         key,
				Fingerprint: fingerprint,
				Payload:     payload,
				OccurredAt:  time.Now().UTC(),
			})
			if err != nil {
				return nil, err
			}
			return result, nil
		})
	}
}

func fingerprintOf(cmd commands.Command) (string, error) {
	raw, err := json.Marshal(cmd)
	if err != nil {
		return "", fmt.Errorf("middleware: fingerprint %s: %w", cmd.Key(), err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
