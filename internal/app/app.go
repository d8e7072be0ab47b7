package app

import (
	"go.uber.org/fx"

	"github.com/Additional-Code/comanda/internal/cache"
	"github.com/Additional-Code/comanda/internal/config"
	"github.com/Additional-Code/comanda/internal/database"
	"github.com/Additional-Code/comanda/internal/lifecycle"
	"github.com/Additional-Code/comanda/internal/logger"
	"github.com/Additional-Code/comanda/internal/messaging"
	"github.com/Additional-Code/comanda/internal/observability"
	"github.com/Additional-Code/comanda/internal/repository/uow"
	grpcserver "github.com/Additional-Code/comanda/internal/server/grpc"
	httpserver "github.com/Additional-Code/comanda/internal/server/http"
	serviceorder "github.com/Additional-Code/comanda/internal/service/order"
	transporthttp "github.com/Additional-Code/comanda/internal/transport/http"
	"github.com/Additional-Code/comanda/internal/worker"
	workerorder "github.com/Additional-Code/comanda/internal/worker/order"
)

// Core provides the foundational modules shared across executables.
var Core = fx.Options(
	config.Module,
	cache.Module,
	database.Module,
	logger.Module,
	messaging.Module,
	observability.Module,
	uow.Module,
	lifecycle.Module,
	serviceorder.Module,
)

// HTTP wires the HTTP transport and the gRPC health endpoint on top of the core modules.
var HTTP = fx.Options(
	Core,
	httpserver.Module,
	transporthttp.Module,
	grpcserver.Module,
)

// Worker exposes background worker processing.
var Worker = fx.Options(
	Core,
	worker.Module,
	workerorder.Module,
)

// Module is the default application wiring.
var Module = HTTP
