package docker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"Talos/internal/config"
	"Talos/internal/provider"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/google/uuid"
)

const (
	workerLabelPrefix = "talos.worker"
	labelWorkerID     = workerLabelPrefix + ".id"
	labelWorkerName   = workerLabelPrefix + ".name"
	labelWorkerQueue  = workerLabelPrefix + ".queue"
	labelManagedBy    = workerLabelPrefix + ".managed-by"
)

type DockerProvider struct {
	client *client.Client
	config config.DockerConfig
	logger *slog.Logger
	mu     sync.RWMutex
}

// New creates a new Docker provider
func New(cfg config.DockerConfig, logger *slog.Logger) (*DockerProvider, error) {
	cli, err := client.NewClientWithOpts(
		client.WithHost(cfg.Host),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	return &DockerProvider{
		client: cli,
		config: cfg,
		logger: logger.With("provider", "docker"),
	}, nil
}

func (p *DockerProvider) Name() string {
	return "docker"
}

func (p *DockerProvider) ListWorkers(ctx context.Context) ([]*provider.Worker, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.listWorkers(ctx)
}

// listWorkers assumes the caller holds p.mu.
func (p *DockerProvider) listWorkers(ctx context.Context) ([]*provider.Worker, error) {
	containers, err := p.client.ContainerList(ctx, container.ListOptions{
		All: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	var workers []*provider.Worker
	for _, c := range containers {
		if c.Labels[labelManagedBy] != "talos" {
			continue
		}

		status := mapContainerState(c.State)
		workers = append(workers, &provider.Worker{
			ID:         c.Labels[labelWorkerID],
			Name:       c.Labels[labelWorkerName],
			Status:     status,
			Queue:      c.Labels[labelWorkerQueue],
			Provider:   "docker",
			ProviderID: c.ID,
			CreatedAt:  time.Unix(c.Created, 0),
			Metadata: map[string]string{
				"container_id": c.ID,
				"image":        c.Image,
				"state":        c.State,
			},
		})
	}

	return workers, nil
}

func (p *DockerProvider) GetWorker(ctx context.Context, id string) (*provider.Worker, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.findWorker(ctx, id)
}

// findWorker assumes the caller holds p.mu.
func (p *DockerProvider) findWorker(ctx context.Context, id string) (*provider.Worker, error) {
	workers, err := p.listWorkers(ctx)
	if err != nil {
		return nil, err
	}

	for _, w := range workers {
		if w.ID == id {
			return w, nil
		}
	}

	return nil, fmt.Errorf("worker %s not found", id)
}

func (p *DockerProvider) CreateWorker(ctx context.Context, req *provider.CreateWorkerRequest) (*provider.Worker, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	workerID := uuid.New().String()
	containerName := fmt.Sprintf("talos-worker-%s", workerID[:8])

	p.logger.Info("creating worker", "id", workerID, "name", req.Name, "queue", req.Queue)

	// Pull image if needed
	if p.config.PullPolicy == "always" || p.config.PullPolicy == "if-not-present" {
		if err := p.pullImage(ctx); err != nil {
			return nil, fmt.Errorf("failed to pull image: %w", err)
		}
	}

	env := p.buildEnv(req)
	labels := p.buildLabels(workerID, req)

	containerConfig := &container.Config{
		Image:  p.config.Image,
		Env:    env,
		Labels: labels,
	}

	hostConfig := &container.HostConfig{
		NetworkMode: container.NetworkMode(p.config.Network),
		Resources: container.Resources{
			NanoCPUs: int64(p.config.CPULimit * 1e9),
			Memory:   p.config.MemoryLimit,
		},
	}

	if len(p.config.Volumes) > 0 {
		hostConfig.Binds = p.config.Volumes
	}

	resp, err := p.client.ContainerCreate(
		ctx,
		containerConfig,
		hostConfig,
		nil,
		nil,
		containerName,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	if err := p.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		// Clean up container on start failure
		_ = p.client.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	p.logger.Info("worker created successfully",
		"id", workerID,
		"container_id", resp.ID,
		"name", req.Name,
	)

	return &provider.Worker{
		ID:         workerID,
		Name:       req.Name,
		Status:     provider.StatusProvisioning,
		Queue:      req.Queue,
		Provider:   "docker",
		ProviderID: resp.ID,
		CreatedAt:  time.Now(),
		Metadata: map[string]string{
			"container_id": resp.ID,
			"image":        p.config.Image,
		},
	}, nil
}

func (p *DockerProvider) RemoveWorker(ctx context.Context, id string, graceful bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	worker, err := p.findWorker(ctx, id)
	if err != nil {
		return err
	}

	p.logger.Info("removing worker",
		"id", id,
		"container_id", worker.ProviderID,
		"graceful", graceful,
	)

	var timeout *int
	if graceful {
		t := 30
		timeout = &t
	}

	removeOpts := container.RemoveOptions{
		Force:         !graceful,
		RemoveVolumes: true,
	}

	if graceful {
		// Try graceful shutdown first so an in-flight task can finish
		if err := p.client.ContainerStop(ctx, worker.ProviderID, container.StopOptions{
			Timeout: timeout,
		}); err != nil {
			p.logger.Warn("graceful stop failed, forcing removal", "error", err)
			removeOpts.Force = true
		}
	}

	if err := p.client.ContainerRemove(ctx, worker.ProviderID, removeOpts); err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}

	p.logger.Info("worker removed successfully", "id", id)
	return nil
}

func (p *DockerProvider) HealthCheck(ctx context.Context) error {
	_, err := p.client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("docker health check failed: %w", err)
	}
	return nil
}

func (p *DockerProvider) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}

func (p *DockerProvider) pullImage(ctx context.Context) error {
	p.logger.Info("pulling image", "image", p.config.Image)

	reader, err := p.client.ImagePull(ctx, p.config.Image, types.ImagePullOptions{})
	if err != nil {
		return err
	}
	defer reader.Close()

	// Consume the output to ensure pull completes
	_, err = io.Copy(io.Discard, reader)
	return err
}

func (p *DockerProvider) buildEnv(req *provider.CreateWorkerRequest) []string {
	env := []string{
		fmt.Sprintf("WORKER_NAME=%s", req.Name),
		fmt.Sprintf("BROKER_URL=%s", req.BrokerURL),
		fmt.Sprintf("QUEUE_NAME=%s", req.Queue),
	}

	if req.BrokerToken != "" {
		env = append(env, fmt.Sprintf("BROKER_TOKEN=%s", req.BrokerToken))
	}

	return env
}

func (p *DockerProvider) buildLabels(workerID string, req *provider.CreateWorkerRequest) map[string]string {
	labels := map[string]string{
		labelWorkerID:    workerID,
		labelWorkerName:  req.Name,
		labelWorkerQueue: req.Queue,
		labelManagedBy:   "talos",
	}

	// Merge custom labels from config
	for k, v := range p.config.Labels {
		labels[k] = v
	}

	// Add request metadata
	for k, v := range req.Metadata {
		labels[workerLabelPrefix+"."+k] = v
	}

	return labels
}

func mapContainerState(state string) provider.WorkerStatus {
	switch state {
	case "running":
		return provider.StatusRunning
	case "exited", "dead":
		return provider.StatusTerminated
	case "restarting":
		return provider.StatusProvisioning
	case "removing":
		return provider.StatusTerminating
	case "created":
		return provider.StatusPending
	default:
		return provider.StatusFailed
	}
}
