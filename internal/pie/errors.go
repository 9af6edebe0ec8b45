package pie

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount       = errors.New("pie: invalid amount")
	ErrPieNotFound         = errors.New("pie: pie not found")
	ErrPieAlreadySettled   = errors.New("pie: pie already settled")
	ErrPieExists           = errors.New("pie: pie already exists")
	ErrMissingPieID        = errors.New("pie: pie id is required")
	ErrGateway             = errors.New("pie: messaging gateway failure")
	ErrStore               = errors.New("pie: store failure")
	ErrUnrecognizedCommand = errors.New("pie: unrecognized command")

	// ErrMissingValue is an ErrInvalidAmount for a command that names a pie but no value.
	ErrMissingValue = fmt.Errorf("%w: value is required", ErrInvalidAmount)
)

// SettlementFailure records a pie that could not be settled or re-weighted
// during a pass. Other pies in the same pass are unaffected.
type SettlementFailure struct {
	PieID string
	Err   error
}

func (f SettlementFailure) Error() string {
	return fmt.Sprintf("pie %s: %v", f.PieID, f.Err)
}

func (f SettlementFailure) Unwrap() error { return f.Err }

// storeErr tags a raw store error with ErrStore, leaving domain sentinels as they are.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrPieNotFound) ||
		errors.Is(err, ErrPieAlreadySettled) ||
		errors.Is(err, ErrPieExists) ||
		errors.Is(err, ErrStore) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrStore, op, err)
}

// UserMessage turns an error into the short text shown in chat.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingValue):
		return "A value is required: pie [id] <value>"
	case errors.Is(err, ErrInvalidAmount):
		return "Invalid number"
	case errors.Is(err, ErrPieNotFound):
		return "Invalid pie ID"
	case errors.Is(err, ErrPieAlreadySettled):
		return "That pie has already been settled"
	case errors.Is(err, ErrPieExists):
		return "A pie with that ID already exists"
	case errors.Is(err, ErrMissingPieID):
		return "A pie ID is required"
	case errors.Is(err, ErrGateway):
		return "Could not post the announcement, no pie was created"
	case errors.Is(err, ErrStore):
		return "The ledger is unavailable, please try again later"
	case errors.Is(err, ErrUnrecognizedCommand):
		return "Unrecognized command"
	default:
		return "Something went wrong"
	}
}
