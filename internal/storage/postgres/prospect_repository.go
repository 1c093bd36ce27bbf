package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/makkenzo/prospect-enrichment-api/internal/domain/enrichment"
	"github.com/makkenzo/prospect-enrichment-api/internal/domain/prospect"
	"go.uber.org/zap"
)

type ProspectRepository struct {
	db     DB
	logger *zap.Logger
	now    func() time.Time
}

func NewProspectRepository(db DB, logger *zap.Logger) *ProspectRepository {
	return &ProspectRepository{
		db:     db,
		logger: logger.Named("ProspectRepository"),
		now:    time.Now,
	}
}

var _ prospect.Repository = (*ProspectRepository)(nil)

func (r *ProspectRepository) FindByID(ctx context.Context, id uuid.UUID) (*prospect.ContactRecord, error) {
	query := `
		SELECT
			id, full_name, first_name, last_name, company, company_url, title, city, email,
			phone_1, phone_2, phone_3, phone_4, linkedin_url, enriched_key_id, updated_at
		FROM prospects
		WHERE id = $1
	`
	var (
		rec    prospect.ContactRecord
		phones [enrichment.MaxPhones]string
	)
	err := r.db.QueryRow(ctx, query, id).Scan(
		&rec.ID,
		&rec.FullName,
		&rec.FirstName,
		&rec.LastName,
		&rec.Company,
		&rec.CompanyURL,
		&rec.Title,
		&rec.City,
		&rec.Email,
		&phones[0],
		&phones[1],
		&phones[2],
		&phones[3],
		&rec.LinkedInURL,
		&rec.EnrichedKeyID,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, prospect.ErrNotFound
		}
		r.logger.Error("Failed to find prospect", zap.String("id", id.String()), zap.Error(err))
		return nil, fmt.Errorf("db error finding prospect: %w", err)
	}

	for _, p := range phones {
		if p != "" {
			rec.Phones = append(rec.Phones, p)
		}
	}
	return &rec, nil
}

func (r *ProspectRepository) UpdateContact(ctx context.Context, rec *prospect.ContactRecord, keyID *uuid.UUID) error {
	var phones [enrichment.MaxPhones]string
	copy(phones[:], rec.Phones)

	query := `
		UPDATE prospects SET
			full_name = $1,
			company = $2,
			company_url = $3,
			title = $4,
			city = $5,
			email = $6,
			phone_1 = $7,
			phone_2 = $8,
			phone_3 = $9,
			phone_4 = $10,
			enriched_key_id = COALESCE($11, enriched_key_id),
			updated_at = $12
		WHERE id = $13
	`
	cmdTag, err := r.db.Exec(ctx, query,
		rec.FullName,
		rec.Company,
		rec.CompanyURL,
		rec.Title,
		rec.City,
		rec.Email,
		phones[0],
		phones[1],
		phones[2],
		phones[3],
		keyID,
		r.now().UTC(),
		rec.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update prospect contact", zap.String("id", rec.ID.String()), zap.Error(err))
		return fmt.Errorf("database error on update prospect: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return prospect.ErrNotFound
	}

	r.logger.Info("Prospect contact updated", zap.String("id", rec.ID.String()))
	return nil
}
