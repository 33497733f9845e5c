/*
errors.go - Centralized error types for the engine

PURPOSE:
  All engine error types in one place. Every entity-level failure is caught
  and isolated by the batch runner; these types carry enough context to
  report the entity identity and reason, never silently dropping a skip.

ERROR CATEGORIES:
  1. Validation errors  - Missing required field; entity left for retry
  2. Rate errors        - Required exogenous rate absent from the snapshot
  3. Indexer errors     - Unsupported indexer configuration (operator action)
  4. Store errors       - External read/write failure; current entity aborted

USAGE:
  if errors.Is(err, fixedincome.ErrRateUnavailable) {
      // contract skipped this run, eligible next run
  }
*/
package fixedincome

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned when an entity is missing a required field.
	// The entity is skipped and left unchanged for retry on a future run.
	ErrValidation = errors.New("validation failed")

	// ErrRateUnavailable is returned when a required exogenous rate is absent
	// from the snapshot. The contract's accrual is skipped this run and is
	// eligible again next run. Missing rates are never defaulted to zero.
	ErrRateUnavailable = errors.New("required rate unavailable")

	// ErrUnknownIndexer is returned for an unsupported indexer configuration.
	// The contract is skipped and the condition surfaced as a warning needing
	// operator attention.
	ErrUnknownIndexer = errors.New("unknown indexer")

	// ErrStore is returned when an external read/write fails. The operation
	// on the current entity is aborted; other entities are still attempted.
	ErrStore = errors.New("store operation failed")

	// ErrNotFound is returned for point reads of missing entities.
	ErrNotFound = errors.New("entity not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry entity identity and reason
// =============================================================================

// ValidationError identifies the entity and field that failed validation.
type ValidationError struct {
	Entity string // "contribution", "withdrawal", ...
	ID     string
	Field  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s: missing or invalid %s", e.Entity, e.ID, e.Field)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// RateUnavailableError identifies which rate was missing for which contract.
type RateUnavailableError struct {
	ContractID ContractID
	Rate       string // "short_rate", "interbank_rate"
}

func (e *RateUnavailableError) Error() string {
	return fmt.Sprintf("contract %s: %s unavailable in snapshot", e.ContractID, e.Rate)
}

func (e *RateUnavailableError) Unwrap() error { return ErrRateUnavailable }

// UnknownIndexerError identifies the unsupported configuration.
type UnknownIndexerError struct {
	ContractID ContractID
	Kind       IndexerKind
}

func (e *UnknownIndexerError) Error() string {
	return fmt.Sprintf("contract %s: unknown indexer %q", e.ContractID, e.Kind)
}

func (e *UnknownIndexerError) Unwrap() error { return ErrUnknownIndexer }

// StoreError wraps a failure from the external system of record.
type StoreError struct {
	Op  string // "create allocation", "update contract", ...
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return ErrStore }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable reports whether the failed entity is expected to succeed on a
// later run without operator intervention.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStore) || errors.Is(err, ErrRateUnavailable)
}

// NeedsOperator reports whether the failure requires a configuration fix
// before the entity can ever be processed.
func NeedsOperator(err error) bool {
	return errors.Is(err, ErrUnknownIndexer) || errors.Is(err, ErrValidation)
}
