// Package txn runs MongoDB multi-document transactions.
//
// Transactions require a replica set or sharded cluster. Run reports
// ErrNotSupported when the deployment cannot run one; callers that need
// atomicity (voucher approval) surface that as a hard failure rather than
// falling back to unguarded writes.
package txn

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"
)

// ErrNotSupported is returned when the server cannot run transactions.
var ErrNotSupported = errors.New("txn: transactions not supported by this deployment")

// Run executes fn inside a session transaction, retrying on the driver's
// transient errors. fn must only use the supplied context for its writes.
func Run(ctx context.Context, client *mongo.Client, fn func(sc mongo.SessionContext) error) error {
	sess, err := client.StartSession()
	if err != nil {
		return classify("start session", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	if err != nil && IsNotSupported(err) {
		return classify("", err)
	}
	return err
}

// classify maps a driver error to ErrNotSupported when the deployment
// cannot run transactions. The driver error stays in the message only, so
// callers match on ErrNotSupported alone.
func classify(op string, err error) error {
	if IsNotSupported(err) {
		return fmt.Errorf("%w: %v", ErrNotSupported, err)
	}
	if op == "" {
		return err
	}
	return fmt.Errorf("txn: %s: %w", op, err)
}

// IsNotSupported reports whether err indicates the server cannot run
// transactions (standalone mongod, unsupported topology, or a command that
// is illegal inside a transaction).
func IsNotSupported(err error) bool {
	if err == nil {
		return false
	}

	var ce mongo.CommandError
	if errors.As(err, &ce) {
		switch ce.Code {
		case 20, // IllegalOperation
			51,  // NotAReplicaSet (legacy)
			263: // OperationNotSupportedInTransaction
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	has := func(s string) bool { return strings.Contains(msg, s) }
	switch {
	case has("transaction") && has("replica set"):
		return true
	case has("session") && has("not supported"):
		return true
	case has("transaction") && has("session"):
		return true
	case has("illegal operation") && has("transaction"):
		return true
	}
	return false
}
