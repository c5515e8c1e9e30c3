package middleware

import (
	"context"

	"rentcar/internal/app/commands"
	"rentcar/internal/app/queries"
)

// Check rejects a message before its handler runs. auth.RoleAuthorizer.Authorize and
// Validate both have this shape.
type Check func(ctx context.Context, message any) error

// Validate runs the message's own Validate method when it has one.
func Validate(_ context.Context, message any) error {
	if v, ok := message.(interface{ Validate() error }); ok {
		return v.Validate()
	}
	return nil
}

// GuardCommands runs checks in order and stops at the first failure.
func GuardCommands(checks ...Check) CommandMiddleware {
	return func(next commands.Bus) commands.Bus {
		return commands.BusFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			if err := runChecks(ctx, cmd, checks); err != nil {
				return nil, err
			}
			return next.Dispatch(ctx, cmd)
		})
	}
}

func GuardQueries(checks ...Check) QueryMiddleware {
	return func(next queries.Bus) queries.Bus {
		return queries.BusFunc(func(ctx context.Context, q queries.Query) (any, error) {
			if err := runChecks(ctx, q, checks); err != nil {
				return nil, err
			}
			return next.Ask(ctx, q)
		})
	}
}

func runChecks(ctx context.Context, message any, checks []Check) error {
	for _, check := range checks {
		if err := check(ctx, message); err != nil {
			return err
		}
	}
	return nil
}
