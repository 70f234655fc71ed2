package admission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariebrainware/lis-backend/metrics"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// PersistFunc stores the new record carrying code using tx.
type PersistFunc func(tx *gorm.DB, code string) error

// Generator assigns admission codes. The month is taken from the server clock in
// the configured location, never from the caller.
type Generator struct {
	sequencer Sequencer
	now       func() time.Time
	loc       *time.Location
	locks     *keyedMutex
}

// Option configures a Generator.
type Option func(*Generator)

// WithClock overrides the clock used to pick the admission month.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		if now != nil {
			g.now = now
		}
	}
}

// WithLocation sets the time zone month boundaries are computed in.
func WithLocation(loc *time.Location) Option {
	return func(g *Generator) {
		if loc != nil {
			g.loc = loc
		}
	}
}

// NewGenerator returns a Generator drawing numbers from seq. Defaults to the
// system clock in UTC.
func NewGenerator(seq Sequencer, opts ...Option) *Generator {
	g := &Generator{
		sequencer: seq,
		now:       time.Now,
		loc:       time.UTC,
		locks:     newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// SequencerName reports which sequencer backs the generator.
func (g *Generator) SequencerName() string {
	return g.sequencer.Name()
}

// Period returns the admission month for the current instant.
func (g *Generator) Period() Period {
	return PeriodOf(g.now().In(g.loc))
}

// Admit computes the next code for the current month and hands it to persist
// inside one transaction. The period is locked for the whole count-and-insert so
// callers in this process never compute the same number. Sequencers that also
// implement PeriodLocker are asked for a cross-process lock held until commit;
// the others rely on the row lock their storage takes. Waiting for either lock
// ends when ctx is done. A duplicate key from persist is reported as
// ErrUniquenessConflict. Nothing is retried here.
func (g *Generator) Admit(ctx context.Context, db *gorm.DB, persist PersistFunc) (string, error) {
	p := g.Period()

	unlock, err := g.locks.Lock(ctx, p.Key())
	if err != nil {
		return "", err
	}
	defer unlock()

	if locker, ok := g.sequencer.(PeriodLocker); ok {
		release, err := locker.LockPeriod(ctx, p)
		if err != nil {
			return "", err
		}
		defer release()
	}

	start := time.Now()
	defer func() {
		metrics.AdmissionDuration.Observe(time.Since(start).Seconds())
	}()

	var code string
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := g.sequencer.Next(ctx, tx, p)
		if err != nil {
			return err
		}
		code, err = Format(p, n)
		if err != nil {
			return err
		}
		if err := persist(tx, code); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: %s", ErrUniquenessConflict, code)
			}
			return err
		}
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrUniquenessConflict):
			metrics.AdmissionConflicts.Inc()
			log.Warn().Err(err).Str("period", p.Key()).Msg("admission code conflict")
		case errors.Is(err, ErrSequenceOverflow):
			metrics.AdmissionOverflows.Inc()
			log.Error().Err(err).Str("period", p.Key()).Msg("admission sequence overflow")
		}
		return "", err
	}

	metrics.AdmissionCodesIssued.WithLabelValues(g.sequencer.Name()).Inc()
	log.Info().
		Str("admission_code", code).
		Str("period", p.Key()).
		Str("sequencer", g.sequencer.Name()).
		Msg("admission code issued")
	return code, nil
}

// Preview returns the code the next admission would receive right now. Nothing
// is reserved, so a concurrent admission may take it first.
func (g *Generator) Preview(ctx context.Context, db *gorm.DB) (string, error) {
	p := g.Period()
	n, err := g.sequencer.Current(ctx, db.WithContext(ctx), p)
	if err != nil {
		return "", err
	}
	return Format(p, n+1)
}
