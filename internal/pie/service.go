package pie

import "context"

type Options struct {
	// AnnounceChannel receives every pie announcement when set.
	AnnounceChannel string
	// SettleConcurrency bounds how many pies one pass settles in parallel.
	SettleConcurrency int
}

// Service bundles the registrar, recorder and engine over one store handle.
type Service struct {
	Registrar *Registrar
	Recorder  *Recorder
	Engine    *Engine

	store Store
}

func NewService(store Store, gateway Gateway, opts Options) *Service {
	locks := NewLocks()
	return &Service{
		Registrar: NewRegistrar(store, gateway, opts.AnnounceChannel),
		Recorder:  NewRecorder(store, gateway, locks),
		Engine:    NewEngine(store, locks, opts.SettleConcurrency),
		store:     store,
	}
}

// Clear purges all pie, slice and settlement records.
func (s *Service) Clear(ctx context.Context) error {
	return storeErr("clear", s.store.Clear(ctx))
}

func (s *Service) Ping(ctx context.Context) error {
	return storeErr("ping", s.store.Ping(ctx))
}
