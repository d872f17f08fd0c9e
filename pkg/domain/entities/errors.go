package entities

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrNoTransaction is returned when a staged write is attempted without an open transaction
var ErrNoTransaction = errors.New("no open allocation transaction")

// ValidationError reports a missing or malformed field on an allocation write
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("validation failed: %s is required", e.Field)
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

// CapacityError reports a write that would exceed the remaining batch capacity
type CapacityError struct {
	BatchNumber string
	Requested   decimal.Decimal
	Available   decimal.Decimal
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("batch %s: requested %s kg exceeds remaining capacity %s kg",
		e.BatchNumber, e.Requested, e.Available)
}

// ReallocationError reports an attempt to move a locked batch to another customer
type ReallocationError struct {
	BatchNumber string
	Holder      string
	Requester   string
}

func (e *ReallocationError) Error() string {
	return fmt.Sprintf("batch %s is held by %s and cannot be reallocated to %s",
		e.BatchNumber, e.Holder, e.Requester)
}

// DuplicateError reports the same (batch, customer, order) staged twice in one transaction
type DuplicateError struct {
	BatchNumber string
	CustomerID  string
	Order       OrderKey
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate allocation for batch %s, customer %s, order %s",
		e.BatchNumber, e.CustomerID, e.Order)
}

// PersistenceError reports that the storage collaborator could not durably save or load the ledger
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("ledger %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether an allocation error must abort the whole pass.
// Reallocation conflicts only abort the bucket they occur in.
func IsFatal(err error) bool {
	var reallocation *ReallocationError
	return err != nil && !errors.As(err, &reallocation)
}
