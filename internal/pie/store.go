package pie

import "context"

// Store is the persistence contract for pies, slices and settlements.
//
// Implementations return ErrPieNotFound, ErrPieExists and ErrPieAlreadySettled
// for the matching conditions; any other error is treated as a store failure.
type Store interface {
	InsertPie(ctx context.Context, p *Pie) error
	PieByID(ctx context.Context, id string) (*Pie, error)
	PieByToken(ctx context.Context, token Token) (*Pie, error)
	// OpenPies returns unsettled pies ordered by creation time.
	OpenPies(ctx context.Context) ([]*Pie, error)

	// InsertSlice appends a slice. It must check that the pie exists and is
	// still open in the same atomic step as the insert.
	InsertSlice(ctx context.Context, s *Slice) error
	SlicesByPie(ctx context.Context, pieID string) ([]*Slice, error)

	UpsertSettlement(ctx context.Context, s *Settlement) error
	Settlements(ctx context.Context) ([]*Settlement, error)
	// MarkSettled flips the settled flag, failing with ErrPieAlreadySettled
	// when another pass got there first.
	MarkSettled(ctx context.Context, pieID string) error

	// Clear purges every pie, slice and settlement record.
	Clear(ctx context.Context) error
	Ping(ctx context.Context) error
}

// Gateway posts messages to the chat platform. Posting with an empty thread
// starts a new thread whose token is returned.
type Gateway interface {
	PostMessage(ctx context.Context, channel, text string, thread Token) (Token, error)
}
