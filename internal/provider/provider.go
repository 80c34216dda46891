package provider

import (
	"context"
	"time"
)

// Worker represents a queue-consumer instance managed by a provider
type Worker struct {
	ID         string
	Name       string
	Status     WorkerStatus
	Queue      string
	Provider   string
	ProviderID string
	CreatedAt  time.Time
	Metadata   map[string]string
}

// WorkerStatus represents the state of a worker
type WorkerStatus string

const (
	StatusPending      WorkerStatus = "pending"
	StatusProvisioning WorkerStatus = "provisioning"
	StatusRunning      WorkerStatus = "running"
	StatusTerminating  WorkerStatus = "terminating"
	StatusTerminated   WorkerStatus = "terminated"
	StatusFailed       WorkerStatus = "failed"
)

// Terminal reports whether the worker no longer counts toward pool capacity.
func (s WorkerStatus) Terminal() bool {
	return s == StatusTerminating || s == StatusTerminated || s == StatusFailed
}

// CreateWorkerRequest contains parameters for creating a new worker
type CreateWorkerRequest struct {
	Name        string
	Queue       string
	BrokerURL   string
	BrokerToken string
	Metadata    map[string]string
}

// Provider defines the interface for worker providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// ListWorkers returns all workers managed by this provider
	ListWorkers(ctx context.Context) ([]*Worker, error)

	// GetWorker returns a specific worker by ID
	GetWorker(ctx context.Context, id string) (*Worker, error)

	// CreateWorker provisions a new worker
	CreateWorker(ctx context.Context, req *CreateWorkerRequest) (*Worker, error)

	// RemoveWorker terminates and removes a worker
	RemoveWorker(ctx context.Context, id string, graceful bool) error

	// HealthCheck performs a health check on the provider
	HealthCheck(ctx context.Context) error

	// Close releases any resources held by the provider
	Close() error
}
