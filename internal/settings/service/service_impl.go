package service

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/invoicer/internal/settings/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var maxTaxRate = decimal.NewFromInt(100)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("settings.service"),
		repo: p.Repo,
	}
}

func (s *Service) Get(ctx context.Context) (domain.Settings, error) {
	settings, err := s.repo.Ensure(ctx, s.db)
	if err != nil {
		return domain.Settings{}, err
	}
	return *settings, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdateRequest) (domain.Settings, error) {
	for _, rate := range []*decimal.Decimal{req.Tax1Rate, req.Tax2Rate} {
		if rate != nil && (rate.IsNegative() || rate.GreaterThan(maxTaxRate)) {
			return domain.Settings{}, domain.ErrInvalidTaxRate
		}
	}

	var out domain.Settings
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.Ensure(ctx, tx)
		if err != nil {
			return err
		}

		current.BusinessName = strings.TrimSpace(req.BusinessName)
		current.BusinessEmail = strings.TrimSpace(req.BusinessEmail)
		current.BusinessPhone = strings.TrimSpace(req.BusinessPhone)
		current.BusinessAddress = strings.TrimSpace(req.BusinessAddress)
		current.GSTNumber = strings.TrimSpace(req.GSTNumber)
		current.QSTNumber = strings.TrimSpace(req.QSTNumber)
		current.DefaultTerms = req.DefaultTerms

		if req.Tax1Label != nil {
			current.Tax1Label = strings.TrimSpace(*req.Tax1Label)
		}
		if req.Tax1Rate != nil {
			current.Tax1Rate = decimal.NewNullDecimal(req.Tax1Rate.Round(3))
		}
		if req.Tax1Number != nil {
			current.Tax1Number = strings.TrimSpace(*req.Tax1Number)
		}
		if req.Tax2Label != nil {
			current.Tax2Label = strings.TrimSpace(*req.Tax2Label)
		}
		if req.Tax2Rate != nil {
			current.Tax2Rate = decimal.NewNullDecimal(req.Tax2Rate.Round(3))
		}
		if req.Tax2Number != nil {
			current.Tax2Number = strings.TrimSpace(*req.Tax2Number)
		}
		current.UpdatedAt = time.Now().UTC()

		if err := s.repo.Update(ctx, tx, current); err != nil {
			return err
		}
		out = *current
		return nil
	})
	if err != nil {
		s.log.Error("failed to update settings", zap.Error(err))
		return domain.Settings{}, err
	}
	return out, nil
}
