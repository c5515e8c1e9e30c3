package mongo

import (
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"

	"rentcar/internal/app/uow"
)

// translate maps driver errors to domain errors. duplicate replaces unique index
// violations; transaction write conflicts become uow.ErrConcurrentUpdate.
func translate(err error, duplicate error) error {
	if err == nil {
		return nil
	}
	if duplicate != nil && mongo.IsDuplicateKeyError(err) {
		return duplicate
	}
	var labeled mongo.LabeledError
	if errors.As(err, &labeled) && labeled.HasErrorLabel("TransientTransactionError") {
		return fmt.Errorf("%w: %v", uow.ErrConcurrentUpdate, err)
	}
	return err
}

func notFound(err error, sentinel error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return sentinel
	}
	return err
}
