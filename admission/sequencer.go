package admission

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ariebrainware/lis-backend/model"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Sequencer hands out per-period sequence numbers.
//
// Next is called inside the transaction that persists the patient and must return
// a number strictly greater than any previously committed one for the period.
// Current reports the last number handed out without consuming one.
type Sequencer interface {
	Name() string
	Next(ctx context.Context, tx *gorm.DB, p Period) (int, error)
	Current(ctx context.Context, tx *gorm.DB, p Period) (int, error)
}

// PeriodLocker is implemented by sequencers that hand numbers out outside the
// database transaction. The returned release func is called after commit.
type PeriodLocker interface {
	LockPeriod(ctx context.Context, p Period) (release func(), err error)
}

// Sequencer kinds accepted by NewSequencer.
const (
	KindCounter = "counter"
	KindRedis   = "redis"
	KindCount   = "count"
)

// NewSequencer builds the sequencer named by kind. rdb is only used by KindRedis.
func NewSequencer(kind string, rdb redis.Cmdable) (Sequencer, error) {
	switch kind {
	case "", KindCounter:
		return CounterSequencer{}, nil
	case KindCount:
		return CountSequencer{}, nil
	case KindRedis:
		if rdb == nil {
			return nil, fmt.Errorf("redis sequencer requires a redis client")
		}
		return NewRedisSequencer(rdb), nil
	default:
		return nil, fmt.Errorf("unknown admission sequencer %q", kind)
	}
}

// MaxIssued returns the highest sequence number already stored on a patient for p,
// or 0 when the month has no admissions yet.
func MaxIssued(ctx context.Context, tx *gorm.DB, p Period) (int, error) {
	var maxCode sql.NullString
	err := tx.WithContext(ctx).
		Model(&model.Patient{}).
		Select("MAX(admission_code)").
		Where("admission_code LIKE ?", p.Prefix()+"%").
		Scan(&maxCode).Error
	if err != nil {
		return 0, fmt.Errorf("find highest admission code for %s: %w", p, err)
	}
	if !maxCode.Valid || maxCode.String == "" {
		return 0, nil
	}
	_, n, err := Parse(maxCode.String)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// CountSequencer numbers admissions by counting the codes already issued in the
// month. It is only safe while callers serialize on the period, which Generator does
// within one process.
type CountSequencer struct{}

func (CountSequencer) Name() string { return KindCount }

func (s CountSequencer) Next(ctx context.Context, tx *gorm.DB, p Period) (int, error) {
	n, err := s.Current(ctx, tx, p)
	if err != nil {
		return 0, err
	}
	return n + 1, nil
}

func (CountSequencer) Current(ctx context.Context, tx *gorm.DB, p Period) (int, error) {
	var count int64
	err := tx.WithContext(ctx).
		Model(&model.Patient{}).
		Where("admission_code LIKE ?", p.Prefix()+"%").
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count admissions for %s: %w", p, err)
	}
	return int(count), nil
}

// CounterSequencer keeps one admission_counters row per period and advances it with
// a single UPDATE, so the row lock is held until the surrounding transaction ends.
// A missing row is seeded from the highest code already stored for the period.
type CounterSequencer struct{}

func (CounterSequencer) Name() string { return KindCounter }

func (s CounterSequencer) Next(ctx context.Context, tx *gorm.DB, p Period) (int, error) {
	tx = tx.WithContext(ctx)

	advanced, err := s.advance(tx, p)
	if err != nil {
		return 0, err
	}
	if !advanced {
		if err := s.seed(ctx, tx, p); err != nil {
			return 0, err
		}
		if advanced, err = s.advance(tx, p); err != nil {
			return 0, err
		}
		if !advanced {
			return 0, fmt.Errorf("admission counter for %s vanished", p)
		}
	}

	var counter model.AdmissionCounter
	if err := tx.Where("period = ?", p.Key()).First(&counter).Error; err != nil {
		return 0, fmt.Errorf("read admission counter for %s: %w", p, err)
	}
	return counter.LastNumber, nil
}

func (s CounterSequencer) Current(ctx context.Context, tx *gorm.DB, p Period) (int, error) {
	var counter model.AdmissionCounter
	err := tx.WithContext(ctx).Where("period = ?", p.Key()).Limit(1).Find(&counter).Error
	if err != nil {
		return 0, fmt.Errorf("read admission counter for %s: %w", p, err)
	}
	if counter.ID == 0 {
		return MaxIssued(ctx, tx, p)
	}
	return counter.LastNumber, nil
}

func (CounterSequencer) advance(tx *gorm.DB, p Period) (bool, error) {
	res := tx.Model(&model.AdmissionCounter{}).
		Where("period = ?", p.Key()).
		Update("last_number", gorm.Expr("last_number + ?", 1))
	if res.Error != nil {
		return false, fmt.Errorf("advance admission counter for %s: %w", p, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (CounterSequencer) seed(ctx context.Context, tx *gorm.DB, p Period) error {
	last, err := MaxIssued(ctx, tx, p)
	if err != nil {
		return err
	}
	err = tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "period"}},
		DoNothing: true,
	}).Create(&model.AdmissionCounter{Period: p.Key(), LastNumber: last}).Error
	if err != nil {
		return fmt.Errorf("seed admission counter for %s: %w", p, err)
	}
	return nil
}
