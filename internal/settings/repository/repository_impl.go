package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/invoicer/internal/settings/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Ensure(ctx context.Context, db *gorm.DB) (*domain.Settings, error) {
	defaults := domain.Defaults(time.Now().UTC())
	if err := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&defaults).Error; err != nil {
		return nil, err
	}

	var settings domain.Settings
	err := db.WithContext(ctx).Raw(
		`SELECT id, business_name, business_email, business_phone, business_address,
			gst_number, qst_number,
			tax_1_label, tax_1_rate, tax_1_number, tax_2_label, tax_2_rate, tax_2_number,
			default_terms, created_at, updated_at
		 FROM settings WHERE id = ?`,
		domain.SingletonID,
	).Scan(&settings).Error
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, settings *domain.Settings) error {
	return db.WithContext(ctx).Exec(
		`UPDATE settings
		 SET business_name = ?, business_email = ?, business_phone = ?, business_address = ?,
			gst_number = ?, qst_number = ?,
			tax_1_label = ?, tax_1_rate = ?, tax_1_number = ?,
			tax_2_label = ?, tax_2_rate = ?, tax_2_number = ?,
			default_terms = ?, updated_at = ?
		 WHERE id = ?`,
		settings.BusinessName,
		settings.BusinessEmail,
		settings.BusinessPhone,
		settings.BusinessAddress,
		settings.GSTNumber,
		settings.QSTNumber,
		settings.Tax1Label,
		settings.Tax1Rate,
		settings.Tax1Number,
		settings.Tax2Label,
		settings.Tax2Rate,
		settings.Tax2Number,
		settings.DefaultTerms,
		settings.UpdatedAt,
		domain.SingletonID,
	).Error
}
