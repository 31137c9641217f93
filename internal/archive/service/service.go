// Package service copies the fiches visible to the signed-in user into the local archive and
// reports validated teaching hours from it.
package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"koursa/client/internal/apperror"
	"koursa/client/internal/archive/domain"
	"koursa/client/internal/archive/repository"
	fichedomain "koursa/client/internal/fiche/domain"
)

// FicheLister lists the fiches visible to the current user.
type FicheLister interface {
	List(ctx context.Context) ([]fichedomain.Fiche, error)
}

// ArchiveService synchronizes the archive and queries it.
type ArchiveService struct {
	fiches FicheLister
	repo   repository.Repository
	nowF   func() time.Time
}

// NewArchiveService returns an ArchiveService reading from fiches and writing to repo.
func NewArchiveService(fiches FicheLister, repo repository.Repository) *ArchiveService {
	return &ArchiveService{fiches: fiches, repo: repo, nowF: time.Now}
}

// Sync fetches every visible fiche and upserts it under a new run. Fiches with an unparsable
// lesson date are skipped and logged; the returned run counts archived fiches only.
func (s *ArchiveService) Sync(ctx context.Context) (*domain.Run, error) {
	fiches, err := s.fiches.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("archive: list fiches: %w", err)
	}
	run := &domain.Run{ID: uuid.NewString(), StartedAt: s.nowF().UTC()}
	if err := s.repo.StartRun(ctx, run); err != nil {
		return nil, fmt.Errorf("archive: start run: %w", err)
	}
	for i := range fiches {
		f := &fiches[i]
		if err := f.CheckInvariants(); err != nil {
			log.Printf("archive: skipping fiche %d: %v", f.ID, err)
			continue
		}
		if err := s.repo.Upsert(ctx, f, run.ID, run.StartedAt); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Printf("archive: skipping fiche %d: %v", f.ID, err)
			continue
		}
		run.FicheCount++
	}
	run.FinishedAt = s.nowF().UTC()
	if err := s.repo.FinishRun(ctx, run); err != nil {
		return nil, fmt.Errorf("archive: finish run: %w", err)
	}
	log.Printf("archive: run %s archived %d of %d fiches", run.ID, run.FicheCount, len(fiches))
	return run, nil
}

// HoursByUnit returns validated hours per unit for lessons held in the given month.
func (s *ArchiveService) HoursByUnit(ctx context.Context, year int, month time.Month) ([]domain.UnitHours, error) {
	if month < time.January || month > time.December {
		return nil, apperror.Validation("month", "month must be between 1 and 12")
	}
	if year < 2000 || year > 9999 {
		return nil, apperror.Validation("year", "year is out of range")
	}
	from, to := domain.MonthRange(year, month)
	hours, err := s.repo.HoursByUnit(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("archive: hours by unit: %w", err)
	}
	return hours, nil
}

// Get returns the archived copy of a fiche, or nil if it was never archived.
func (s *ArchiveService) Get(ctx context.Context, id int64) (*domain.Record, error) {
	if id <= 0 {
		return nil, apperror.Validation("id", "fiche id must be positive")
	}
	return s.repo.GetByID(ctx, id)
}
