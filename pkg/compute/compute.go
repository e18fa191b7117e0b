// Package compute implements the compute lifecycle manager. A compute
// instance is one running sandbox, materialized as exactly one pod belonging
// to its preset's deployment. Provisioning works purely through replica-count
// changes and label bookkeeping: there is no separate scheduler and no store
// other than the cluster's own resources.
package compute

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/util/retry"

	"github.com/computesdk/orchestrator/internal/metrics"
	"github.com/computesdk/orchestrator/pkg/errors"
	"github.com/computesdk/orchestrator/pkg/kubernetes"
	"github.com/computesdk/orchestrator/pkg/logger"
	"github.com/computesdk/orchestrator/pkg/preset"
	"github.com/computesdk/orchestrator/pkg/types"
)

// Manager is the compute lifecycle contract exposed to the rest of the SDK.
type Manager interface {
	CreateCompute(ctx context.Context, spec types.ComputeSpec) (*types.ComputeInfo, error)
	GetCompute(ctx context.Context, computeID string) (*types.ComputeInfo, error)
	ListComputes(ctx context.Context, filters types.ComputeFilters) ([]*types.ComputeInfo, error)
	DeleteCompute(ctx context.Context, computeID string) error
	GetComputeStatus(ctx context.Context, computeID string) (*types.ComputeStatus, error)
	WaitForComputeReady(ctx context.Context, computeID string, timeout time.Duration) (*types.ComputeInfo, error)
	RestartCompute(ctx context.Context, computeID string) (*types.ComputeInfo, error)

	// Start launches the periodic cache refresh task; Stop cancels it.
	Start() error
	Stop() error
}

// Config holds manager configuration.
type Config struct {
	Namespace string
	// CreateTimeout bounds the pod claim loop.
	CreateTimeout time.Duration
	// PollInterval is the claim loop's retry interval.
	PollInterval time.Duration
	// CacheRefreshInterval is the background refresh period.
	CacheRefreshInterval time.Duration
}

type manager struct {
	logger      logger.Interface
	pods        kubernetes.PodInterface
	deployments kubernetes.DeploymentInterface
	presets     preset.Manager
	metrics     *metrics.Recorder
	cache       *cache

	namespace            string
	createTimeout        time.Duration
	pollInterval         time.Duration
	cacheRefreshInterval time.Duration

	stopCh chan struct{}
}

var _ Manager = (*manager)(nil)

// New creates a new compute lifecycle manager.
func New(log logger.Interface, pods kubernetes.PodInterface, deployments kubernetes.DeploymentInterface, presets preset.Manager, rec *metrics.Recorder, cfg *Config) (Manager, error) {
	if log == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if pods == nil {
		return nil, fmt.Errorf("pod client cannot be nil")
	}
	if deployments == nil {
		return nil, fmt.Errorf("deployment client cannot be nil")
	}
	if presets == nil {
		return nil, fmt.Errorf("preset manager cannot be nil")
	}
	if rec == nil {
		rec = metrics.NewNop()
	}
	if cfg == nil {
		cfg = &Config{}
	}

	m := &manager{
		logger:               log,
		pods:                 pods,
		deployments:          deployments,
		presets:              presets,
		metrics:              rec,
		cache:                newCache(),
		namespace:            cfg.Namespace,
		createTimeout:        cfg.CreateTimeout,
		pollInterval:         cfg.PollInterval,
		cacheRefreshInterval: cfg.CacheRefreshInterval,
		stopCh:               make(chan struct{}),
	}
	if m.namespace == "" {
		m.namespace = "default"
	}
	if m.createTimeout <= 0 {
		m.createTimeout = 60 * time.Second
	}
	if m.pollInterval <= 0 {
		m.pollInterval = 2 * time.Second
	}
	if m.cacheRefreshInterval <= 0 {
		m.cacheRefreshInterval = 30 * time.Second
	}
	return m, nil
}

// CreateCompute provisions a new compute instance from a preset: increment
// the preset deployment's replica count, wait for the cluster controller to
// materialize an unclaimed pod, and claim it by writing the compute ID into
// its labels. A failed creation leaves the replica count unchanged.
func (m *manager) CreateCompute(ctx context.Context, spec types.ComputeSpec) (info *types.ComputeInfo, err error) {
	start := time.Now()
	defer func() { m.metrics.RecordOperation("compute", "CreateCompute", start, err) }()

	if spec.ComputeID == "" {
		spec.ComputeID = "cmp-" + uuid.New().String()
	}
	if err = validateComputeSpec(spec); err != nil {
		return nil, err
	}

	log := m.logger.With("computeId", spec.ComputeID, "presetId", spec.PresetID)
	log.Info("Creating compute", "namespace", m.namespace)

	deployment, err := m.presets.EnsurePresetDeployment(ctx, spec.PresetID)
	if err != nil {
		return nil, errors.NewComputeError(spec.ComputeID, "create", err)
	}

	if _, err = m.scaleDeployment(ctx, deployment.Name, func(replicas int32) int32 {
		return replicas + 1
	}); err != nil {
		log.Error("Failed to scale up preset deployment", err, "deployment", deployment.Name)
		return nil, errors.NewComputeError(spec.ComputeID, "create", err)
	}

	claimed, err := m.claimPod(ctx, spec)
	if err != nil {
		// Roll back the increment so a failed creation leaves the preset's
		// replica count unchanged. The rollback is best-effort: its own
		// failure is logged but never masks the original error. Caller
		// cancellation is the exception: cleanup stops where the caller
		// stopped it.
		if ctx.Err() == nil {
			if _, rollbackErr := m.scaleDeployment(context.Background(), deployment.Name, func(replicas int32) int32 {
				return replicas - 1
			}); rollbackErr != nil {
				log.Error("Failed to roll back replica count after claim failure", rollbackErr,
					"deployment", deployment.Name)
			}
		}
		return nil, errors.NewComputeError(spec.ComputeID, "create", err)
	}

	info = projectComputeInfo(claimed)
	m.cacheSet(info)
	log.Info("Compute created", "pod", info.PodName)
	return info, nil
}

// claimPod polls for a pod belonging to the target preset that no compute ID
// has claimed yet, then claims it by labeling it with ours. The label write
// is conditional on the pod's resource version, so two concurrent creators
// cannot both win the same pod; the loser keeps polling.
func (m *manager) claimPod(ctx context.Context, spec types.ComputeSpec) (*corev1.Pod, error) {
	selector := labels.Set{
		types.LabelApp:      types.AppCompute,
		types.LabelPresetID: spec.PresetID,
	}.String()

	var claimed *corev1.Pod
	err := wait.PollUntilContextTimeout(ctx, m.pollInterval, m.createTimeout, true, func(ctx context.Context) (bool, error) {
		pods, err := m.pods.List(ctx, m.namespace, selector)
		if err != nil {
			return false, err
		}

		for i := range pods.Items {
			pod := &pods.Items[i]
			if pod.Labels[types.LabelComputeID] != "" || pod.DeletionTimestamp != nil {
				continue
			}

			candidate := pod.DeepCopy()
			candidate.Labels[types.LabelComputeID] = spec.ComputeID
			for k, v := range spec.Labels {
				if k == types.LabelApp || k == types.LabelPresetID || k == types.LabelComputeID {
					continue
				}
				candidate.Labels[k] = v
			}

			updated, err := m.pods.Update(ctx, m.namespace, candidate)
			if err != nil {
				if apierrors.IsConflict(err) {
					// Another creator touched this pod first; move on to
					// the next candidate.
					continue
				}
				return false, err
			}
			claimed = updated
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		if wait.Interrupted(err) {
			return nil, errors.NewTimeoutError("CreateCompute",
				fmt.Sprintf("no claimable pod for preset %s within %s", spec.PresetID, m.createTimeout), err)
		}
		return nil, err
	}
	return claimed, nil
}

// GetCompute retrieves a compute by ID, consulting the cache first.
func (m *manager) GetCompute(ctx context.Context, computeID string) (info *types.ComputeInfo, err error) {
	start := time.Now()
	defer func() { m.metrics.RecordOperation("compute", "GetCompute", start, err) }()

	if cached, ok := m.cache.get(computeID); ok {
		return cached, nil
	}
	return m.fetchCompute(ctx, computeID)
}

// fetchCompute reads a compute's pod from the cluster, bypassing the cache,
// and refreshes the cache with the result.
func (m *manager) fetchCompute(ctx context.Context, computeID string) (*types.ComputeInfo, error) {
	selector := labels.Set{
		types.LabelApp:       types.AppCompute,
		types.LabelComputeID: computeID,
	}.String()

	pods, err := m.pods.List(ctx, m.namespace, selector)
	if err != nil {
		return nil, errors.NewComputeError(computeID, "get", err)
	}

	for i := range pods.Items {
		if info := projectComputeInfo(&pods.Items[i]); info != nil {
			m.cacheSet(info)
			return info, nil
		}
	}
	return nil, errors.NewComputeError(computeID, "get",
		errors.NewNotFoundError("compute", computeID, nil))
}

// ListComputes lists live computes matching the filters. Pods lacking a
// usable compute or preset identifier are not valid compute records and are
// silently skipped. The phase filter is applied client-side.
func (m *manager) ListComputes(ctx context.Context, filters types.ComputeFilters) (infos []*types.ComputeInfo, err error) {
	start := time.Now()
	defer func() { m.metrics.RecordOperation("compute", "ListComputes", start, err) }()

	selector := labels.Set{types.LabelApp: types.AppCompute}
	if filters.PresetID != "" {
		selector[types.LabelPresetID] = filters.PresetID
	}
	for k, v := range filters.Labels {
		selector[k] = v
	}

	pods, err := m.pods.List(ctx, m.namespace, selector.String())
	if err != nil {
		return nil, errors.NewComputeError("", "list", err)
	}

	infos = make([]*types.ComputeInfo, 0, len(pods.Items))
	for i := range pods.Items {
		info := projectComputeInfo(&pods.Items[i])
		if info == nil {
			continue
		}
		m.cacheSet(info)
		if filters.Phase != "" && info.Status.Phase != filters.Phase {
			continue
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// DeleteCompute tears down a compute instance: delete its pod and decrement
// the owning deployment's replica count. The initial lookup must succeed;
// deleting an unknown compute is an error, not a no-op.
func (m *manager) DeleteCompute(ctx context.Context, computeID string) (err error) {
	start := time.Now()
	defer func() { m.metrics.RecordOperation("compute", "DeleteCompute", start, err) }()

	// Mutating decision: read the cluster, never trust the cache.
	info, err := m.fetchCompute(ctx, computeID)
	if err != nil {
		return err
	}

	log := m.logger.With("computeId", computeID, "presetId", info.PresetID)

	if err = m.pods.Delete(ctx, m.namespace, info.PodName); err != nil {
		log.Error("Failed to delete compute pod", err, "pod", info.PodName)
		return errors.NewComputeError(computeID, "delete", err)
	}

	if _, err = m.scaleDeployment(ctx, info.DeploymentName, func(replicas int32) int32 {
		return replicas - 1
	}); err != nil {
		log.Error("Failed to scale down preset deployment", err, "deployment", info.DeploymentName)
		return errors.NewComputeError(computeID, "delete", err)
	}

	m.cacheDelete(computeID)
	log.Info("Compute deleted", "pod", info.PodName)
	return nil
}

// GetComputeStatus returns the observed status of a compute.
func (m *manager) GetComputeStatus(ctx context.Context, computeID string) (*types.ComputeStatus, error) {
	info, err := m.GetCompute(ctx, computeID)
	if err != nil {
		return nil, err
	}
	status := info.Status
	return &status, nil
}

// WaitForComputeReady blocks until the compute's pod reports ready, then
// re-fetches the compute so the returned record carries fresh network facts.
func (m *manager) WaitForComputeReady(ctx context.Context, computeID string, timeout time.Duration) (info *types.ComputeInfo, err error) {
	start := time.Now()
	defer func() { m.metrics.RecordOperation("compute", "WaitForComputeReady", start, err) }()

	info, err = m.GetCompute(ctx, computeID)
	if err != nil {
		return nil, err
	}

	if err = m.pods.WaitForReady(ctx, m.namespace, info.PodName, timeout); err != nil {
		return nil, errors.NewComputeError(computeID, "waitForReady", err)
	}
	return m.fetchCompute(ctx, computeID)
}

// RestartCompute deletes only the compute's pod; the deployment controller
// recreates one from the template. The replacement comes up unclaimed, so
// the compute ID is written back onto it to preserve the instance identity.
func (m *manager) RestartCompute(ctx context.Context, computeID string) (info *types.ComputeInfo, err error) {
	start := time.Now()
	defer func() { m.metrics.RecordOperation("compute", "RestartCompute", start, err) }()

	existing, err := m.fetchCompute(ctx, computeID)
	if err != nil {
		return nil, err
	}

	if err = m.pods.Delete(ctx, m.namespace, existing.PodName); err != nil {
		return nil, errors.NewComputeError(computeID, "restart", err)
	}
	m.cacheDelete(computeID)

	claimed, err := m.claimPod(ctx, types.ComputeSpec{
		ComputeID: computeID,
		PresetID:  existing.PresetID,
	})
	if err != nil {
		return nil, errors.NewComputeError(computeID, "restart", err)
	}

	info = projectComputeInfo(claimed)
	m.cacheSet(info)
	m.logger.Info("Compute restarted", "computeId", computeID, "pod", info.PodName)
	return info, nil
}

// Start launches the periodic cache refresh task.
func (m *manager) Start() error {
	go m.refreshLoop()
	m.logger.Info("Compute manager started", "cacheRefreshInterval", m.cacheRefreshInterval.String())
	return nil
}

// Stop cancels the background refresh task.
func (m *manager) Stop() error {
	close(m.stopCh)
	m.logger.Info("Compute manager stopped")
	return nil
}

// refreshLoop periodically re-lists all computes to refresh the cache. It
// only ever adds or updates entries; entries absent from a list response are
// kept, so the refresher cannot race a concurrent create. Failures are
// logged and never propagate to callers.
func (m *manager) refreshLoop() {
	ticker := time.NewTicker(m.cacheRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), kubernetes.DefaultTimeout)
			_, err := m.ListComputes(ctx, types.ComputeFilters{})
			cancel()
			if err != nil {
				m.metrics.RecordCacheRefreshFailure()
				m.logger.Warn("Background cache refresh failed", "error", err.Error())
			}
		}
	}
}

// scaleDeployment applies a replica-count mutation with optimistic
// concurrency: the update is conditional on the deployment's resource
// version and retried on conflict, so concurrent increments and decrements
// cannot lose updates. The count never drops below zero.
func (m *manager) scaleDeployment(ctx context.Context, name string, mutate func(int32) int32) (int32, error) {
	var final int32
	err := retry.RetryOnConflict(retry.DefaultRetry, func() error {
		deployment, err := m.deployments.Get(ctx, m.namespace, name)
		if err != nil {
			return err
		}

		replicas := int32(0)
		if deployment.Spec.Replicas != nil {
			replicas = *deployment.Spec.Replicas
		}
		replicas = mutate(replicas)
		if replicas < 0 {
			replicas = 0
		}

		deployment.Spec.Replicas = &replicas
		if _, err := m.deployments.Update(ctx, m.namespace, deployment); err != nil {
			return err
		}
		final = replicas
		return nil
	})
	if err != nil {
		return 0, err
	}
	return final, nil
}

// cacheSet updates the cache and the cache size gauge.
func (m *manager) cacheSet(info *types.ComputeInfo) {
	m.cache.set(info)
	m.metrics.SetCacheSize(m.cache.size())
}

// cacheDelete evicts a cache entry and updates the cache size gauge.
func (m *manager) cacheDelete(computeID string) {
	m.cache.delete(computeID)
	m.metrics.SetCacheSize(m.cache.size())
}

// validateComputeSpec checks a ComputeSpec without touching the cluster.
func validateComputeSpec(spec types.ComputeSpec) error {
	details := map[string]interface{}{}
	if spec.ComputeID == "" {
		details["computeId"] = "must not be empty"
	}
	if spec.PresetID == "" {
		details["presetId"] = "must not be empty"
	}
	if len(details) > 0 {
		return errors.NewValidationError("invalid compute spec", details, nil)
	}
	return nil
}
