package invoice

import (
	"github.com/smallbiznis/invoicer/internal/invoice/repository"
	"github.com/smallbiznis/invoicer/internal/invoice/service"
	"github.com/smallbiznis/invoicer/internal/sequence"
	"github.com/smallbiznis/invoicer/internal/tax"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.service",
	tax.Module,
	sequence.Module,
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
