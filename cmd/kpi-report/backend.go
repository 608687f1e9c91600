package main

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/kpi-recon/internal/api"
	"github.com/miradorstack/kpi-recon/internal/cache"
	"github.com/miradorstack/kpi-recon/internal/config"
	"github.com/miradorstack/kpi-recon/internal/engine"
	"github.com/miradorstack/kpi-recon/internal/models"
	"github.com/miradorstack/kpi-recon/internal/services"
)

// backend is where a command gets its data: an in-process pipeline or a remote service.
type backend interface {
	Run(ctx context.Context, req models.RunRequest) (models.Report, error)
	Definitions(ctx context.Context) ([]models.KPIDefinition, error)
	Close() error
}

func newBackend(server string, cfg *config.Config, logger *slog.Logger) (backend, error) {
	creds := models.Credentials{APIKey: cfg.Upstream.APIKey}
	if server != "" {
		conn, err := grpc.NewClient(server, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, fmt.Errorf("connect to %s: %w", server, err)
		}
		return &remoteBackend{conn: conn, client: api.NewReconcilerClient(conn), creds: creds}, nil
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	provider := services.NewCacheProvider(cfg.Cache, logger)
	return &localBackend{
		pipeline: services.NewPipelineFromConfig(cfg, provider, logger),
		cache:    provider,
		creds:    creds,
	}, nil
}

type localBackend struct {
	pipeline *engine.Pipeline
	cache    cache.Provider
	creds    models.Credentials
}

func (b *localBackend) Run(ctx context.Context, req models.RunRequest) (models.Report, error) {
	return b.pipeline.Run(ctx, b.creds, req)
}

func (b *localBackend) Definitions(ctx context.Context) ([]models.KPIDefinition, error) {
	return b.pipeline.Definitions(ctx, b.creds)
}

func (b *localBackend) Close() error {
	return b.cache.Close()
}

type remoteBackend struct {
	conn   *grpc.ClientConn
	client *api.ReconcilerClient
	creds  models.Credentials
}

func (b *remoteBackend) outgoing(ctx context.Context) context.Context {
	if b.creds.APIKey == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, services.APIKeyMetadataKey, b.creds.APIKey)
}

func (b *remoteBackend) Run(ctx context.Context, req models.RunRequest) (models.Report, error) {
	doc, err := api.ToProtoRunRequest(req)
	if err != nil {
		return models.Report{}, err
	}
	resp, err := b.client.ReconcileKPIs(b.outgoing(ctx), doc)
	if err != nil {
		return models.Report{}, err
	}
	return api.FromProtoReport(resp)
}

func (b *remoteBackend) Definitions(ctx context.Context) ([]models.KPIDefinition, error) {
	resp, err := b.client.ListKPIs(b.outgoing(ctx), &structpb.Struct{})
	if err != nil {
		return nil, err
	}
	return api.FromProtoDefinitions(resp)
}

func (b *remoteBackend) Close() error {
	return b.conn.Close()
}
