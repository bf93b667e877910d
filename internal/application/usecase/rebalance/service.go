package rebalance

import (
	"context"

	"github.com/rs/zerolog/log"

	"yieldopt/internal/application/port"
	"yieldopt/internal/application/service"
	"yieldopt/internal/domain/model"
)

// ServiceDeps wires one optimization run. Cache and Executor are optional.
type ServiceDeps struct {
	Source    port.MarketSource
	Store     port.Store
	Allocator *service.Allocator
	Cache     port.SnapshotCache
	Executor  port.Executor
	Sink      port.Sink
}

// Service sequences fetch -> persist snapshots -> optimize -> persist
// allocation -> report, surfacing the final decision. The pipeline is
// synchronous end-to-end; failures are terminal for the run and retried, if
// desired, by an external scheduler.
type Service struct {
	deps ServiceDeps
	fmt  *Formatter
}

func NewService(deps ServiceDeps) *Service {
	return &Service{deps: deps, fmt: NewFormatter()}
}

// Run executes one optimization cycle. Transport and schema failures abort
// before anything is persisted. An infeasible optimization aborts after the
// snapshots are persisted: the observations stay valuable history whether or
// not a decision could be computed.
func (s *Service) Run(ctx context.Context, params model.ParamSet) (model.AllocationDecision, error) {
	snaps, err := s.deps.Source.Fetch(ctx)
	if err != nil {
		log.Error().Err(err).Msg("market data fetch failed")
		return model.AllocationDecision{}, err
	}
	log.Info().Int("markets", len(snaps)).Msg("market data fetched")

	if err := s.deps.Store.AppendSnapshots(ctx, snaps); err != nil {
		log.Error().Err(err).Msg("snapshot persistence failed")
		return model.AllocationDecision{}, err
	}

	if s.deps.Cache != nil {
		if err := s.deps.Cache.SetLatest(ctx, snaps); err != nil {
			log.Warn().Err(err).Msg("latest cache update failed")
		}
	}

	dec, err := s.deps.Allocator.Optimize(snaps, params)
	if err != nil {
		// Snapshots stay persisted.
		log.Error().Err(err).Msg("optimization failed")
		return model.AllocationDecision{}, err
	}

	if err := s.deps.Store.AppendAllocation(ctx, dec, params); err != nil {
		log.Error().Err(err).Msg("allocation persistence failed")
		return model.AllocationDecision{}, err
	}

	log.Info().
		Float64("available_funds", params.AvailableFunds).
		Float64("allocated", dec.Total()).
		Int("markets", len(dec.Lines)).
		Msg("allocation computed")

	for _, line := range s.fmt.AllocationLines(dec) {
		_ = s.deps.Sink.WriteLine(line)
	}

	if s.deps.Executor != nil && dec.Total() > 0 {
		hash, err := s.deps.Executor.Reallocate(ctx, snaps, dec)
		if err != nil {
			log.Error().Err(err).Msg("vault reallocate failed")
			return dec, err
		}
		if hash != "" {
			log.Info().Str("tx", hash).Msg("vault reallocate confirmed")
		}
	}

	return dec, nil
}
