// Package types defines the data model shared between the preset registry
// and the compute lifecycle manager. The structs here are the currency of
// the orchestrator's public API; cluster-level objects (pods, deployments)
// never leak past the kubernetes package boundary.
package types

import (
	"time"

	corev1 "k8s.io/api/core/v1"
)

// Label keys form the de facto persisted schema: there is no store other
// than the cluster's own resource metadata, so changing any of these keys
// is a breaking change to discovery.
const (
	LabelApp       = "app"
	LabelPresetID  = "presetId"
	LabelComputeID = "computeId"
	LabelName      = "name"
	LabelVersion   = "version"

	// AppCompute marks pods that are compute instances.
	AppCompute = "compute"
	// AppPreset marks deployments that back presets.
	AppPreset = "preset"
)

// ComputePhase describes the lifecycle phase of a compute instance,
// projected from the underlying pod phase.
type ComputePhase string

const (
	ComputePending   ComputePhase = "Pending"
	ComputeRunning   ComputePhase = "Running"
	ComputeSucceeded ComputePhase = "Succeeded"
	ComputeFailed    ComputePhase = "Failed"
	ComputeUnknown   ComputePhase = "Unknown"
)

// PresetSpec is a named, versioned container template. It is the unit of
// reuse for provisioning computes: one preset backs exactly one deployment
// whose replica count starts at zero.
type PresetSpec struct {
	ID              string                      `json:"id" validate:"required"`
	Name            string                      `json:"name" validate:"required"`
	Version         string                      `json:"version,omitempty"`
	Image           string                      `json:"image" validate:"required"`
	ImagePullPolicy corev1.PullPolicy           `json:"imagePullPolicy,omitempty"`
	Command         []string                    `json:"command,omitempty"`
	Args            []string                    `json:"args,omitempty"`
	WorkingDir      string                      `json:"workingDir,omitempty"`
	Env             []corev1.EnvVar             `json:"env,omitempty"`
	Ports           []corev1.ContainerPort      `json:"ports,omitempty"`
	VolumeMounts    []corev1.VolumeMount        `json:"volumeMounts,omitempty"`
	Volumes         []corev1.Volume             `json:"volumes,omitempty"`
	Resources       corev1.ResourceRequirements `json:"resources,omitempty"`
	Labels          map[string]string           `json:"labels,omitempty"`
	Annotations     map[string]string           `json:"annotations,omitempty"`
}

// PresetInfo is the materialized state of a preset, projected back from its
// backing deployment.
type PresetInfo struct {
	PresetSpec `json:",inline"`

	// DeploymentName is a pure function of the preset ID, so lookup never
	// requires a side index.
	DeploymentName string    `json:"deploymentName"`
	BaseReplicas   int32     `json:"baseReplicas"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt,omitempty"`
}

// ComputeSpec is the creation request for a single compute instance.
type ComputeSpec struct {
	// ComputeID is caller-supplied or generated at creation time.
	ComputeID string `json:"computeId,omitempty"`
	PresetID  string `json:"presetId" validate:"required"`

	// Labels are merged over the preset's pod labels. The reserved keys
	// (app, presetId, computeId) cannot be overridden.
	Labels map[string]string `json:"labels,omitempty"`

	// Resources, when set, override the preset's resource requirements.
	Resources *corev1.ResourceRequirements `json:"resources,omitempty"`
}

// ComputeCondition is a typed condition projected from the pod.
type ComputeCondition struct {
	Type               string    `json:"type"`
	Status             string    `json:"status"`
	Reason             string    `json:"reason,omitempty"`
	Message            string    `json:"message,omitempty"`
	LastTransitionTime time.Time `json:"lastTransitionTime,omitempty"`
}

// ComputeStatus is the observed state of a compute instance.
type ComputeStatus struct {
	Phase      ComputePhase       `json:"phase"`
	Ready      bool               `json:"ready"`
	Message    string             `json:"message,omitempty"`
	Conditions []ComputeCondition `json:"conditions,omitempty"`
}

// ComputeInfo is the materialized state of a running compute instance.
// Every ComputeInfo carries a non-empty compute ID and preset ID; a pod
// lacking either label is not a valid compute and is never surfaced.
type ComputeInfo struct {
	ComputeID      string                      `json:"computeId"`
	PodName        string                      `json:"podName"`
	PresetID       string                      `json:"presetId"`
	DeploymentName string                      `json:"deploymentName"`
	Status         ComputeStatus               `json:"status"`
	Resources      corev1.ResourceRequirements `json:"resources,omitempty"`
	PodIP          string                      `json:"podIP,omitempty"`
	HostIP         string                      `json:"hostIP,omitempty"`
	Ports          map[string]int32            `json:"ports,omitempty"`
	Labels         map[string]string           `json:"labels,omitempty"`
	Annotations    map[string]string           `json:"annotations,omitempty"`
	CreatedAt      time.Time                   `json:"createdAt"`
	StartedAt      *time.Time                  `json:"startedAt,omitempty"`
}

// ComputeFilters narrows ListComputes results. Zero values match everything.
type ComputeFilters struct {
	PresetID string            `json:"presetId,omitempty"`
	Phase    ComputePhase      `json:"phase,omitempty"`
	Labels   map[string]string `json:"labels,omitempty"`
}

// PresetFilters narrows ListPresets results. Zero values match everything.
type PresetFilters struct {
	PresetID string            `json:"presetId,omitempty"`
	Labels   map[string]string `json:"labels,omitempty"`
}

// DeploymentCondition is a read-only projection of a deployment condition.
type DeploymentCondition struct {
	Type    string `json:"type"`
	Status  string `json:"status"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

// DeploymentStatus reports the provisioning health of a preset's backing
// deployment without exposing cluster internals.
type DeploymentStatus struct {
	DesiredReplicas   int32                 `json:"desiredReplicas"`
	ReadyReplicas     int32                 `json:"readyReplicas"`
	AvailableReplicas int32                 `json:"availableReplicas"`
	UpdatedReplicas   int32                 `json:"updatedReplicas"`
	Conditions        []DeploymentCondition `json:"conditions,omitempty"`
}
