package pie

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
)

type CreatePieInput struct {
	// ID is the user-supplied pie identifier; one is generated when empty.
	ID       string
	Owner    string
	Channel  string
	RawValue string
}

// Registrar creates pies and binds each to a fresh chat thread.
type Registrar struct {
	store   Store
	gateway Gateway
	// channel overrides the command's channel for announcements when set.
	channel string
	now     func() time.Time
}

func NewRegistrar(store Store, gateway Gateway, announceChannel string) *Registrar {
	return &Registrar{
		store:   store,
		gateway: gateway,
		channel: announceChannel,
		now:     time.Now,
	}
}

// CreatePie announces the pie first and persists it second, so a gateway
// failure leaves nothing behind. A store failure after the announcement
// leaves an orphaned thread, which is logged.
func (r *Registrar) CreatePie(ctx context.Context, in CreatePieInput) (*Pie, error) {
	value, err := ParseAmount(in.RawValue)
	if err != nil {
		return nil, err
	}

	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = newID(prefixPie)
	}
	if _, err := r.store.PieByID(ctx, id); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrPieExists, id)
	} else if !errors.Is(err, ErrPieNotFound) {
		return nil, storeErr("lookup pie", err)
	}

	channel := r.channel
	if channel == "" {
		channel = in.Channel
	}
	if channel == "" {
		return nil, fmt.Errorf("%w: no announcement channel", ErrGateway)
	}

	text := fmt.Sprintf("Pie %s has been added by %s with value %s. Reply in this thread with your slice.",
		id, in.Owner, FormatAmount(value))
	token, err := r.gateway.PostMessage(ctx, channel, text, "")
	if err != nil {
		return nil, fmt.Errorf("%w: announce pie %s: %w", ErrGateway, id, err)
	}
	if token == "" {
		return nil, fmt.Errorf("%w: announce pie %s: no thread token returned", ErrGateway, id)
	}

	p := &Pie{
		ID:            id,
		Owner:         in.Owner,
		Channel:       channel,
		Token:         token,
		DeclaredValue: value,
		CreatedAt:     r.now().UTC(),
	}
	if err := r.store.InsertPie(ctx, p); err != nil {
		log.Printf("registrar: pie %s announced in thread %s but not persisted: %v", id, token, err)
		return nil, storeErr("insert pie", err)
	}
	return p, nil
}
