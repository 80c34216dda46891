package ec2

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"Talos/internal/config"
	"Talos/internal/provider"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/google/uuid"
)

const (
	tagManagedBy   = "talos:managed-by"
	tagWorkerID    = "talos:worker-id"
	tagWorkerName  = "talos:worker-name"
	tagWorkerQueue = "talos:worker-queue"
	tagCreatedAt   = "talos:created-at"
)

type EC2Provider struct {
	client *ec2.Client
	config config.AWSConfig
	logger *slog.Logger
	mu     sync.RWMutex
}

// New creates a new EC2 provider
func New(cfg config.AWSConfig, logger *slog.Logger) (*EC2Provider, error) {
	ctx := context.Background()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &EC2Provider{
		client: ec2.NewFromConfig(awsCfg),
		config: cfg,
		logger: logger.With("provider", "ec2"),
	}, nil
}

func (p *EC2Provider) Name() string {
	return "ec2"
}

func (p *EC2Provider) ListWorkers(ctx context.Context) ([]*provider.Worker, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	input := &ec2.DescribeInstancesInput{
		Filters: []types.Filter{
			{
				Name:   aws.String("tag:" + tagManagedBy),
				Values: []string{"talos"},
			},
			{
				Name: aws.String("instance-state-name"),
				Values: []string{
					"pending",
					"running",
					"stopping",
					"stopped",
				},
			},
		},
	}

	result, err := p.client.DescribeInstances(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to describe instances: %w", err)
	}

	var workers []*provider.Worker
	for _, reservation := range result.Reservations {
		for _, instance := range reservation.Instances {
			worker := p.instanceToWorker(&instance)
			workers = append(workers, worker)
		}
	}

	return workers, nil
}

func (p *EC2Provider) GetWorker(ctx context.Context, id string) (*provider.Worker, error) {
	input := &ec2.DescribeInstancesInput{
		Filters: []types.Filter{
			{
				Name:   aws.String("tag:" + tagWorkerID),
				Values: []string{id},
			},
		},
	}

	result, err := p.client.DescribeInstances(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to describe instance: %w", err)
	}

	if len(result.Reservations) == 0 || len(result.Reservations[0].Instances) == 0 {
		return nil, fmt.Errorf("worker %s not found", id)
	}

	return p.instanceToWorker(&result.Reservations[0].Instances[0]), nil
}

func (p *EC2Provider) CreateWorker(ctx context.Context, req *provider.CreateWorkerRequest) (*provider.Worker, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	workerID := uuid.New().String()

	p.logger.Info("creating EC2 instance",
		"id", workerID,
		"name", req.Name,
		"queue", req.Queue,
		"instance_type", p.config.InstanceType,
		"use_spot", p.config.UseSpot,
	)

	userData := p.buildUserData(req)
	userDataB64 := base64.StdEncoding.EncodeToString([]byte(userData))

	tags := p.buildTags(workerID, req)
	tagSpecs := []types.TagSpecification{
		{
			ResourceType: types.ResourceTypeInstance,
			Tags:         tags,
		},
		{
			ResourceType: types.ResourceTypeVolume,
			Tags:         tags,
		},
	}

	blockDeviceMappings := []types.BlockDeviceMapping{
		{
			DeviceName: aws.String("/dev/sda1"),
			Ebs: &types.EbsBlockDevice{
				VolumeSize:          aws.Int32(p.config.VolumeSize),
				VolumeType:          types.VolumeType(p.config.VolumeType),
				DeleteOnTermination: aws.Bool(true),
			},
		},
	}

	var instanceID string
	var err error

	if p.config.UseSpot {
		instanceID, err = p.createSpotInstance(ctx, userDataB64, tagSpecs, blockDeviceMappings)
	} else {
		instanceID, err = p.createOnDemandInstance(ctx, userDataB64, tagSpecs, blockDeviceMappings)
	}

	if err != nil {
		return nil, err
	}

	p.logger.Info("EC2 instance created",
		"id", workerID,
		"instance_id", instanceID,
	)

	return &provider.Worker{
		ID:         workerID,
		Name:       req.Name,
		Status:     provider.StatusProvisioning,
		Queue:      req.Queue,
		Provider:   "ec2",
		ProviderID: instanceID,
		CreatedAt:  time.Now(),
		Metadata: map[string]string{
			"instance_id":   instanceID,
			"instance_type": p.config.InstanceType,
			"region":        p.config.Region,
			"spot":          fmt.Sprintf("%t", p.config.UseSpot),
		},
	}, nil
}

func (p *EC2Provider) RemoveWorker(ctx context.Context, id string, graceful bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	worker, err := p.GetWorker(ctx, id)
	if err != nil {
		return err
	}

	p.logger.Info("terminating EC2 instance",
		"id", id,
		"instance_id", worker.ProviderID,
		"graceful", graceful,
	)

	input := &ec2.TerminateInstancesInput{
		InstanceIds: []string{worker.ProviderID},
	}

	_, err = p.client.TerminateInstances(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to terminate instance: %w", err)
	}

	p.logger.Info("EC2 instance termination initiated", "id", id)
	return nil
}

func (p *EC2Provider) HealthCheck(ctx context.Context) error {
	// Simple check: describe regions to verify API access
	svc := p.client
	_, err := svc.DescribeRegions(ctx, &ec2.DescribeRegionsInput{})
	if err != nil {
		return fmt.Errorf("EC2 health check failed: %w", err)
	}
	return nil
}

func (p *EC2Provider) Close() error {
	return nil
}

func (p *EC2Provider) createOnDemandInstance(
	ctx context.Context,
	userData string,
	tagSpecs []types.TagSpecification,
	blockDeviceMappings []types.BlockDeviceMapping,
) (string, error) {
	input := &ec2.RunInstancesInput{
		ImageId:             aws.String(p.config.AMI),
		InstanceType:        types.InstanceType(p.config.InstanceType),
		MinCount:            aws.Int32(1),
		MaxCount:            aws.Int32(1),
		UserData:            aws.String(userData),
		SubnetId:            aws.String(p.config.SubnetID),
		SecurityGroupIds:    p.config.SecurityGroupIDs,
		TagSpecifications:   tagSpecs,
		BlockDeviceMappings: blockDeviceMappings,
	}

	if p.config.KeyName != "" {
		input.KeyName = aws.String(p.config.KeyName)
	}

	if p.config.IAMInstanceProfile != "" {
		input.IamInstanceProfile = &types.IamInstanceProfileSpecification{
			Name: aws.String(p.config.IAMInstanceProfile),
		}
	}

	result, err := p.client.RunInstances(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to run on-demand instance: %w", err)
	}

	if len(result.Instances) == 0 {
		return "", fmt.Errorf("no instances created")
	}

	return *result.Instances[0].InstanceId, nil
}

func (p *EC2Provider) createSpotInstance(
	ctx context.Context,
	userData string,
	tagSpecs []types.TagSpecification,
	blockDeviceMappings []types.BlockDeviceMapping,
) (string, error) {
	launchSpec := &types.RequestSpotLaunchSpecification{
		ImageId:             aws.String(p.config.AMI),
		InstanceType:        types.InstanceType(p.config.InstanceType),
		UserData:            aws.String(userData),
		SubnetId:            aws.String(p.config.SubnetID),
		SecurityGroupIds:    p.config.SecurityGroupIDs,
		BlockDeviceMappings: blockDeviceMappings,
	}

	if p.config.KeyName != "" {
		launchSpec.KeyName = aws.String(p.config.KeyName)
	}

	if p.config.IAMInstanceProfile != "" {
		launchSpec.IamInstanceProfile = &types.IamInstanceProfileSpecification{
			Name: aws.String(p.config.IAMInstanceProfile),
		}
	}

	input := &ec2.RequestSpotInstancesInput{
		SpotPrice:           aws.String(p.config.SpotMaxPrice),
		InstanceCount:       aws.Int32(1),
		Type:                types.SpotInstanceTypeOneTime,
		LaunchSpecification: launchSpec,
		TagSpecifications:   tagSpecs,
	}

	result, err := p.client.RequestSpotInstances(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to request spot instance: %w", err)
	}

	if len(result.SpotInstanceRequests) == 0 {
		return "", fmt.Errorf("no spot requests created")
	}

	requestID := *result.SpotInstanceRequests[0].SpotInstanceRequestId

	// Wait for spot request to be fulfilled
	waiter := ec2.NewSpotInstanceRequestFulfilledWaiter(p.client)
	waitInput := &ec2.DescribeSpotInstanceRequestsInput{
		SpotInstanceRequestIds: []string{requestID},
	}

	if err := waiter.Wait(ctx, waitInput, 5*time.Minute); err != nil {
		return "", fmt.Errorf("spot request not fulfilled: %w", err)
	}

	// Get instance ID from fulfilled request
	descResult, err := p.client.DescribeSpotInstanceRequests(ctx, waitInput)
	if err != nil {
		return "", fmt.Errorf("failed to describe spot request: %w", err)
	}

	if len(descResult.SpotInstanceRequests) == 0 || descResult.SpotInstanceRequests[0].InstanceId == nil {
		return "", fmt.Errorf("spot request has no instance ID")
	}

	instanceID := *descResult.SpotInstanceRequests[0].InstanceId

	// Tag the instance (spot instances don't inherit tags from request)
	tagInput := &ec2.CreateTagsInput{
		Resources: []string{instanceID},
		Tags:      tagSpecs[0].Tags,
	}
	_, err = p.client.CreateTags(ctx, tagInput)
	if err != nil {
		p.logger.Warn("failed to tag spot instance", "error", err)
	}

	return instanceID, nil
}

func (p *EC2Provider) buildUserData(req *provider.CreateWorkerRequest) string {
	if p.config.UserDataScript != "" {
		// Use custom user data script
		script := p.config.UserDataScript
		script = strings.ReplaceAll(script, "{{WORKER_NAME}}", req.Name)
		script = strings.ReplaceAll(script, "{{BROKER_URL}}", req.BrokerURL)
		script = strings.ReplaceAll(script, "{{BROKER_TOKEN}}", req.BrokerToken)
		script = strings.ReplaceAll(script, "{{QUEUE_NAME}}", req.Queue)
		return script
	}

	// Default user data script: the worker AMI ships the consumer binary
	// as a systemd unit reading its broker settings from /etc/talos-worker
	return fmt.Sprintf(`#!/bin/bash
set -e

mkdir -p /etc/talos-worker
cat > /etc/talos-worker/worker.env <<EOF
WORKER_NAME=%s
BROKER_URL=%s
BROKER_TOKEN=%s
QUEUE_NAME=%s
EOF

systemctl enable talos-worker
systemctl start talos-worker
`,
		req.Name,
		req.BrokerURL,
		req.BrokerToken,
		req.Queue,
	)
}

func (p *EC2Provider) buildTags(workerID string, req *provider.CreateWorkerRequest) []types.Tag {
	tags := []types.Tag{
		{
			Key:   aws.String(tagManagedBy),
			Value: aws.String("talos"),
		},
		{
			Key:   aws.String(tagWorkerID),
			Value: aws.String(workerID),
		},
		{
			Key:   aws.String(tagWorkerName),
			Value: aws.String(req.Name),
		},
		{
			Key:   aws.String(tagWorkerQueue),
			Value: aws.String(req.Queue),
		},
		{
			Key:   aws.String(tagCreatedAt),
			Value: aws.String(time.Now().Format(time.RFC3339)),
		},
		{
			Key:   aws.String("Name"),
			Value: aws.String(fmt.Sprintf("talos-worker-%s", workerID[:8])),
		},
	}

	// Add custom tags from config
	for k, v := range p.config.Tags {
		tags = append(tags, types.Tag{
			Key:   aws.String(k),
			Value: aws.String(v),
		})
	}

	return tags
}

func (p *EC2Provider) instanceToWorker(instance *types.Instance) *provider.Worker {
	workerID := ""
	workerName := ""
	workerQueue := ""
	createdAt := time.Now()

	for _, tag := range instance.Tags {
		switch *tag.Key {
		case tagWorkerID:
			workerID = *tag.Value
		case tagWorkerName:
			workerName = *tag.Value
		case tagWorkerQueue:
			workerQueue = *tag.Value
		case tagCreatedAt:
			if t, err := time.Parse(time.RFC3339, *tag.Value); err == nil {
				createdAt = t
			}
		}
	}

	status := mapInstanceState(instance.State.Name)

	metadata := map[string]string{
		"instance_id":   *instance.InstanceId,
		"instance_type": string(instance.InstanceType),
		"state":         string(instance.State.Name),
		"az":            *instance.Placement.AvailabilityZone,
	}

	if instance.PrivateIpAddress != nil {
		metadata["private_ip"] = *instance.PrivateIpAddress
	}
	if instance.PublicIpAddress != nil {
		metadata["public_ip"] = *instance.PublicIpAddress
	}

	return &provider.Worker{
		ID:         workerID,
		Name:       workerName,
		Status:     status,
		Queue:      workerQueue,
		Provider:   "ec2",
		ProviderID: *instance.InstanceId,
		CreatedAt:  createdAt,
		Metadata:   metadata,
	}
}

func mapInstanceState(state types.InstanceStateName) provider.WorkerStatus {
	switch state {
	case types.InstanceStateNamePending:
		return provider.StatusProvisioning
	case types.InstanceStateNameRunning:
		return provider.StatusRunning
	case types.InstanceStateNameStopping:
		return provider.StatusTerminating
	case types.InstanceStateNameStopped:
		return provider.StatusTerminated
	case types.InstanceStateNameShuttingDown:
		return provider.StatusTerminating
	case types.InstanceStateNameTerminated:
		return provider.StatusTerminated
	default:
		return provider.StatusFailed
	}
}
