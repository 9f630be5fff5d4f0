//go:build wireinject
// +build wireinject

package di

import (
	"FlowScan/pkg/config"
	"FlowScan/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Provider access
		ProvideGovernor,
		ProvideHTTPClient,
		ProvideCache,
		ProvideProviderClient,

		// Stream fan-in
		ProvideStream,
		ProvideBook,
		ProvidePipeline,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Stores and outbound channels
		ProvideAlertStore,
		ProvideDispatchers,
		ProvideAuditHandler,

		// Core loops
		ProvideOrchestrator,
		ProvideAlertGate,

		// HTTP surface
		ProvideStatusHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
