package service

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invoicer/internal/client/domain"
	"github.com/smallbiznis/invoicer/internal/clock"
	"github.com/smallbiznis/invoicer/internal/observability/logger"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
	Clock clock.Clock `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
	clock clock.Clock
}

func New(p Params) domain.Service {
	c := p.Clock
	if c == nil {
		c = clock.System()
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("client.service"),
		genID: p.GenID,
		repo:  p.Repo,
		clock: c,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (domain.Client, bool, error) {
	name := normalizeName(req.Name)
	if name == "" {
		return domain.Client{}, false, domain.ErrInvalidName
	}
	email := strings.TrimSpace(req.Email)
	phone := strings.TrimSpace(req.Phone)
	address := strings.TrimSpace(req.Address)

	var (
		result  domain.Client
		created bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindByName(ctx, tx, name, 0)
		if err != nil {
			return err
		}
		now := s.now()

		if existing != nil {
			if existing.IsArchived {
				return &domain.ConflictError{Code: domain.ConflictClientArchived, Existing: *existing}
			}
			if existing.SameContact(email, phone, address) {
				result = *existing
				return nil
			}
			if !req.Overwrite {
				return &domain.ConflictError{Code: domain.ConflictClientExists, Existing: *existing}
			}
			existing.Name = name
			existing.Email = email
			existing.Phone = phone
			existing.Address = address
			existing.UpdatedAt = now
			if err := s.repo.Update(ctx, tx, existing); err != nil {
				return err
			}
			result = *existing
			return nil
		}

		client := domain.Client{
			ID:        s.genID.Generate(),
			Name:      name,
			Email:     email,
			Phone:     phone,
			Address:   address,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.repo.Insert(ctx, tx, &client); err != nil {
			return err
		}
		result = client
		created = true
		return nil
	})
	if err != nil {
		return domain.Client{}, false, err
	}

	if created {
		logger.WithContext(ctx, s.log).Info("client created", zap.String("client_id", result.ID.String()))
	}
	return result, created, nil
}

func (s *Service) Update(ctx context.Context, id string, req domain.UpdateRequest) (domain.Client, error) {
	clientID, err := parseID(id)
	if err != nil {
		return domain.Client{}, err
	}
	name := normalizeName(req.Name)
	if name == "" {
		return domain.Client{}, domain.ErrInvalidName
	}

	var result domain.Client
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		client, err := s.repo.FindByID(ctx, tx, clientID)
		if err != nil {
			return err
		}
		if client == nil {
			return domain.ErrNotFound
		}

		conflict, err := s.repo.FindByName(ctx, tx, name, clientID)
		if err != nil {
			return err
		}
		if conflict != nil {
			code := domain.ConflictClientExists
			if conflict.IsArchived {
				code = domain.ConflictClientArchived
			}
			return &domain.ConflictError{Code: code, Existing: *conflict}
		}

		client.Name = name
		client.Email = strings.TrimSpace(req.Email)
		client.Phone = strings.TrimSpace(req.Phone)
		client.Address = strings.TrimSpace(req.Address)
		client.UpdatedAt = s.now()
		if err := s.repo.Update(ctx, tx, client); err != nil {
			return err
		}
		result = *client
		return nil
	})
	if err != nil {
		return domain.Client{}, err
	}
	return result, nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.Client, error) {
	clientID, err := parseID(id)
	if err != nil {
		return domain.Client{}, err
	}
	client, err := s.repo.FindByID(ctx, s.db, clientID)
	if err != nil {
		return domain.Client{}, err
	}
	if client == nil {
		return domain.Client{}, domain.ErrNotFound
	}
	return *client, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) ([]domain.Client, error) {
	limit := domain.DefaultListLimit
	if req.IncludeArchived {
		limit = domain.ArchivedListLimit
	}
	clients, err := s.repo.List(ctx, s.db, domain.ListFilter{
		Search:          strings.TrimSpace(req.Search),
		IncludeArchived: req.IncludeArchived,
		Limit:           limit,
	})
	if err != nil {
		return nil, err
	}
	if clients == nil {
		clients = []domain.Client{}
	}
	return clients, nil
}

func (s *Service) Archive(ctx context.Context, id string) (domain.Client, error) {
	clientID, err := parseID(id)
	if err != nil {
		return domain.Client{}, err
	}

	var result domain.Client
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		client, err := s.repo.FindByID(ctx, tx, clientID)
		if err != nil {
			return err
		}
		if client == nil {
			return domain.ErrNotFound
		}
		if !client.IsArchived {
			now := s.now()
			client.IsArchived = true
			client.ArchivedAt = &now
			client.UpdatedAt = now
			if err := s.repo.Update(ctx, tx, client); err != nil {
				return err
			}
		}
		result = *client
		return nil
	})
	if err != nil {
		return domain.Client{}, err
	}
	return result, nil
}

func (s *Service) Restore(ctx context.Context, id string) (domain.Client, error) {
	clientID, err := parseID(id)
	if err != nil {
		return domain.Client{}, err
	}

	var result domain.Client
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		client, err := s.repo.FindByID(ctx, tx, clientID)
		if err != nil {
			return err
		}
		if client == nil {
			return domain.ErrNotFound
		}
		if client.IsArchived {
			conflict, err := s.repo.FindByName(ctx, tx, client.Name, clientID)
			if err != nil {
				return err
			}
			if conflict != nil {
				return domain.ErrNameInUse
			}
			client.IsArchived = false
			client.ArchivedAt = nil
			client.UpdatedAt = s.now()
			if err := s.repo.Update(ctx, tx, client); err != nil {
				return err
			}
		}
		result = *client
		return nil
	})
	if err != nil {
		return domain.Client{}, err
	}
	return result, nil
}

func (s *Service) now() time.Time {
	return s.clock.Now().UTC()
}

func normalizeName(name string) string {
	return whitespaceRun.ReplaceAllString(strings.TrimSpace(name), " ")
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
