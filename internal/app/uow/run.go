package uow

import "context"

// contextInjector is implemented by units that carry driver state (a Mongo session) in context.
type contextInjector interface {
	InjectContext(context.Context) context.Context
}

// Run executes fn inside a unit of work. A unit already present in ctx is reused and
// left for its owner to commit; otherwise a new one is begun, committed when fn
// succeeds and rolled back when it fails.
func Run(ctx context.Context, factory UoWFactory, opts TxOptions, fn func(ctx context.Context, unit UnitOfWork) error) error {
	if unit, ok := Current(ctx); ok {
		return fn(ctx, unit)
	}
	if factory == nil {
		return ErrNoFactory
	}
	unit, err := factory.Begin(ctx, opts)
	if err != nil {
		return err
	}
	execCtx := ctx
	if injector, ok := unit.(contextInjector); ok {
		execCtx = injector.InjectContext(ctx)
	}
	execCtx = WithUnit(execCtx, unit)
	committed := false
	defer func() {
		if !committed {
			_ = unit.Rollback(execCtx)
		}
	}()

	if err := fn(execCtx, unit); err != nil {
		return err
	}
	if opts.ReadOnly {
		return nil
	}
	if err := unit.Commit(execCtx); err != nil {
		return err
	}
	committed = true
	return nil
}
