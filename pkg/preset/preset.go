// Package preset implements the preset registry: template lifecycle backed
// by zero-replica deployments. Each preset is represented as exactly one
// deployment whose name is a pure function of the preset ID, so lookup never
// requires a side index.
package preset

import (
	"context"
	"fmt"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/labels"

	"github.com/computesdk/orchestrator/internal/metrics"
	"github.com/computesdk/orchestrator/pkg/errors"
	"github.com/computesdk/orchestrator/pkg/kubernetes"
	"github.com/computesdk/orchestrator/pkg/logger"
	"github.com/computesdk/orchestrator/pkg/types"
)

// deploymentNamePrefix derives the backing deployment name from a preset ID.
const deploymentNamePrefix = "preset-"

// DeploymentName returns the backing deployment name for a preset ID.
func DeploymentName(presetID string) string {
	return deploymentNamePrefix + presetID
}

// Manager is the preset registry contract exposed to the rest of the SDK.
type Manager interface {
	CreatePreset(ctx context.Context, spec types.PresetSpec) (*types.PresetInfo, error)
	GetPreset(ctx context.Context, id string) (*types.PresetInfo, error)
	ListPresets(ctx context.Context, filters types.PresetFilters) ([]*types.PresetInfo, error)
	UpdatePreset(ctx context.Context, id string, spec types.PresetSpec) (*types.PresetInfo, error)
	DeletePreset(ctx context.Context, id string) error
	ValidatePreset(spec types.PresetSpec) error
	RenderPreset(ctx context.Context, id string, overrides *corev1.ResourceRequirements) (*types.ComputeSpec, error)
	EnsurePresetDeployment(ctx context.Context, id string) (*appsv1.Deployment, error)
	GetPresetDeploymentStatus(ctx context.Context, id string) (*types.DeploymentStatus, error)
}

// Config holds registry configuration.
type Config struct {
	Namespace string
}

type manager struct {
	logger      logger.Interface
	pods        kubernetes.PodInterface
	deployments kubernetes.DeploymentInterface
	metrics     *metrics.Recorder
	namespace   string
}

var _ Manager = (*manager)(nil)

// New creates a new preset registry.
func New(log logger.Interface, pods kubernetes.PodInterface, deployments kubernetes.DeploymentInterface, rec *metrics.Recorder, cfg *Config) (Manager, error) {
	if log == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if pods == nil {
		return nil, fmt.Errorf("pod client cannot be nil")
	}
	if deployments == nil {
		return nil, fmt.Errorf("deployment client cannot be nil")
	}
	if rec == nil {
		rec = metrics.NewNop()
	}
	if cfg == nil {
		cfg = &Config{Namespace: "default"}
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "default"
	}

	return &manager{
		logger:      log,
		pods:        pods,
		deployments: deployments,
		metrics:     rec,
		namespace:   cfg.Namespace,
	}, nil
}

// CreatePreset validates the spec and creates the backing deployment. The
// replica count is pinned to the current number of live compute pods for
// this preset, which is zero for a fresh preset.
func (m *manager) CreatePreset(ctx context.Context, spec types.PresetSpec) (info *types.PresetInfo, err error) {
	start := time.Now()
	defer func() { m.metrics.RecordOperation("preset", "CreatePreset", start, err) }()

	if err = m.ValidatePreset(spec); err != nil {
		m.logger.Warn("Invalid preset spec", "presetId", spec.ID, "error", err.Error())
		return nil, err
	}

	m.logger.Info("Creating preset", "presetId", spec.ID, "image", spec.Image, "namespace", m.namespace)

	baseReplicas, err := m.countLiveComputes(ctx, spec.ID)
	if err != nil {
		return nil, errors.NewPresetError(spec.ID, "create", err)
	}

	deployment := buildDeployment(spec, m.namespace, baseReplicas)
	created, err := m.deployments.Create(ctx, m.namespace, deployment)
	if err != nil {
		m.logger.Error("Failed to create preset deployment", err, "presetId", spec.ID, "deployment", deployment.Name)
		return nil, errors.NewPresetError(spec.ID, "create", err)
	}

	m.logger.Info("Preset created", "presetId", spec.ID, "deployment", created.Name, "baseReplicas", baseReplicas)
	return projectPresetInfo(created), nil
}

// GetPreset retrieves a preset by ID.
func (m *manager) GetPreset(ctx context.Context, id string) (info *types.PresetInfo, err error) {
	start := time.Now()
	defer func() { m.metrics.RecordOperation("preset", "GetPreset", start, err) }()

	deployment, err := m.deployments.Get(ctx, m.namespace, DeploymentName(id))
	if err != nil {
		return nil, errors.NewPresetError(id, "get", err)
	}
	return projectPresetInfo(deployment), nil
}

// ListPresets lists presets matching the filters.
func (m *manager) ListPresets(ctx context.Context, filters types.PresetFilters) (infos []*types.PresetInfo, err error) {
	start := time.Now()
	defer func() { m.metrics.RecordOperation("preset", "ListPresets", start, err) }()

	selector := labels.Set{types.LabelApp: types.AppPreset}
	if filters.PresetID != "" {
		selector[types.LabelPresetID] = filters.PresetID
	}
	for k, v := range filters.Labels {
		selector[k] = v
	}

	list, err := m.deployments.List(ctx, m.namespace, selector.String())
	if err != nil {
		return nil, errors.NewPresetError(filters.PresetID, "list", err)
	}

	infos = make([]*types.PresetInfo, 0, len(list.Items))
	for i := range list.Items {
		infos = append(infos, projectPresetInfo(&list.Items[i]))
	}
	return infos, nil
}

// UpdatePreset re-validates and rebuilds the deployment body from the new
// spec while preserving the live replica count and the resource's identity
// metadata. Updating a template must never silently change how many
// instances are live.
func (m *manager) UpdatePreset(ctx context.Context, id string, spec types.PresetSpec) (info *types.PresetInfo, err error) {
	start := time.Now()
	defer func() { m.metrics.RecordOperation("preset", "UpdatePreset", start, err) }()

	if spec.ID == "" {
		spec.ID = id
	}
	if spec.ID != id {
		return nil, errors.NewValidationError(
			"preset ID in spec does not match the preset being updated",
			map[string]interface{}{"field": "id", "value": spec.ID},
			nil,
		)
	}
	if err = m.ValidatePreset(spec); err != nil {
		return nil, err
	}

	existing, err := m.deployments.Get(ctx, m.namespace, DeploymentName(id))
	if err != nil {
		return nil, errors.NewPresetError(id, "update", err)
	}

	rebuilt := buildDeployment(spec, m.namespace, 0)
	updated := existing.DeepCopy()
	updated.Labels = rebuilt.Labels
	updated.Annotations = mergeAnnotations(existing.Annotations, rebuilt.Annotations)
	updated.Annotations[annotationUpdatedAt] = time.Now().UTC().Format(time.RFC3339)
	updated.Spec.Template = rebuilt.Spec.Template
	// Replicas and selector stay untouched: the selector is immutable and
	// the replica count belongs to the compute lifecycle manager.

	result, err := m.deployments.Update(ctx, m.namespace, updated)
	if err != nil {
		m.logger.Error("Failed to update preset deployment", err, "presetId", id)
		return nil, errors.NewPresetError(id, "update", err)
	}

	m.logger.Info("Preset updated", "presetId", id, "deployment", result.Name)
	return projectPresetInfo(result), nil
}

// DeletePreset deletes a preset. A preset with live instances cannot be
// deleted; the replica count is read from the cluster, never the cache.
func (m *manager) DeletePreset(ctx context.Context, id string) (err error) {
	start := time.Now()
	defer func() { m.metrics.RecordOperation("preset", "DeletePreset", start, err) }()

	deployment, err := m.deployments.Get(ctx, m.namespace, DeploymentName(id))
	if err != nil {
		return errors.NewPresetError(id, "delete", err)
	}

	if replicas := replicaCount(deployment); replicas > 0 {
		m.logger.Warn("Refusing to delete preset with live instances", "presetId", id, "replicas", replicas)
		return errors.NewPresetError(id, "delete", errors.NewInUseError("preset", id, replicas))
	}

	if err = m.deployments.Delete(ctx, m.namespace, deployment.Name); err != nil {
		return errors.NewPresetError(id, "delete", err)
	}

	m.logger.Info("Preset deleted", "presetId", id, "deployment", deployment.Name)
	return nil
}

// RenderPreset produces a ComputeSpec skeleton bound to the preset. The
// compute ID is filled in later by the compute lifecycle manager. No cluster
// state is mutated.
func (m *manager) RenderPreset(ctx context.Context, id string, overrides *corev1.ResourceRequirements) (*types.ComputeSpec, error) {
	if _, err := m.deployments.Get(ctx, m.namespace, DeploymentName(id)); err != nil {
		return nil, errors.NewPresetError(id, "render", err)
	}

	return &types.ComputeSpec{
		PresetID:  id,
		Resources: overrides,
	}, nil
}

// EnsurePresetDeployment returns the preset's backing deployment. A missing
// preset is always an error at this layer; creation-on-demand is explicitly
// not performed.
func (m *manager) EnsurePresetDeployment(ctx context.Context, id string) (*appsv1.Deployment, error) {
	deployment, err := m.deployments.Get(ctx, m.namespace, DeploymentName(id))
	if err != nil {
		return nil, errors.NewPresetError(id, "ensure", err)
	}
	return deployment, nil
}

// GetPresetDeploymentStatus projects the deployment's replica and condition
// fields into a DeploymentStatus.
func (m *manager) GetPresetDeploymentStatus(ctx context.Context, id string) (*types.DeploymentStatus, error) {
	deployment, err := m.deployments.Get(ctx, m.namespace, DeploymentName(id))
	if err != nil {
		return nil, errors.NewPresetError(id, "status", err)
	}

	status := &types.DeploymentStatus{
		DesiredReplicas:   replicaCount(deployment),
		ReadyReplicas:     deployment.Status.ReadyReplicas,
		AvailableReplicas: deployment.Status.AvailableReplicas,
		UpdatedReplicas:   deployment.Status.UpdatedReplicas,
	}
	for _, cond := range deployment.Status.Conditions {
		status.Conditions = append(status.Conditions, types.DeploymentCondition{
			Type:    string(cond.Type),
			Status:  string(cond.Status),
			Reason:  cond.Reason,
			Message: cond.Message,
		})
	}
	return status, nil
}

// countLiveComputes counts pods currently materialized for a preset.
func (m *manager) countLiveComputes(ctx context.Context, presetID string) (int32, error) {
	selector := labels.Set{
		types.LabelApp:      types.AppCompute,
		types.LabelPresetID: presetID,
	}
	pods, err := m.pods.List(ctx, m.namespace, selector.String())
	if err != nil {
		return 0, err
	}

	var n int32
	for i := range pods.Items {
		if pods.Items[i].DeletionTimestamp == nil {
			n++
		}
	}
	return n, nil
}

// replicaCount reads a deployment's desired replica count, treating a nil
// pointer as zero.
func replicaCount(deployment *appsv1.Deployment) int32 {
	if deployment.Spec.Replicas == nil {
		return 0
	}
	return *deployment.Spec.Replicas
}

// mergeAnnotations overlays the rebuilt annotations on the existing set so
// orchestrator-owned annotations survive a template update.
func mergeAnnotations(existing, rebuilt map[string]string) map[string]string {
	merged := make(map[string]string, len(existing)+len(rebuilt))
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range rebuilt {
		merged[k] = v
	}
	return merged
}
