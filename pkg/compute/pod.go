package compute

import (
	"fmt"

	corev1 "k8s.io/api/core/v1"

	"github.com/computesdk/orchestrator/pkg/kubernetes"
	"github.com/computesdk/orchestrator/pkg/preset"
	"github.com/computesdk/orchestrator/pkg/types"
)

// projectComputeInfo projects a pod into a ComputeInfo. A pod lacking the
// compute or preset identifier label is not a valid compute record and
// projects to nil; discovery paths skip it rather than surfacing it.
func projectComputeInfo(pod *corev1.Pod) *types.ComputeInfo {
	computeID := pod.Labels[types.LabelComputeID]
	presetID := pod.Labels[types.LabelPresetID]
	if computeID == "" || presetID == "" {
		return nil
	}

	info := &types.ComputeInfo{
		ComputeID:      computeID,
		PodName:        pod.Name,
		PresetID:       presetID,
		DeploymentName: preset.DeploymentName(presetID),
		Status:         projectComputeStatus(pod),
		PodIP:          pod.Status.PodIP,
		HostIP:         pod.Status.HostIP,
		Labels:         pod.Labels,
		Annotations:    pod.Annotations,
		CreatedAt:      pod.CreationTimestamp.Time,
	}

	if pod.Status.StartTime != nil {
		started := pod.Status.StartTime.Time
		info.StartedAt = &started
	}

	if containers := pod.Spec.Containers; len(containers) > 0 {
		info.Resources = containers[0].Resources
		info.Ports = portMap(containers[0].Ports)
	}
	return info
}

// projectComputeStatus maps the pod phase and conditions into the compute
// status shape.
func projectComputeStatus(pod *corev1.Pod) types.ComputeStatus {
	status := types.ComputeStatus{
		Phase:   projectPhase(pod.Status.Phase),
		Ready:   kubernetes.IsPodReady(pod),
		Message: pod.Status.Message,
	}

	for _, cond := range pod.Status.Conditions {
		status.Conditions = append(status.Conditions, types.ComputeCondition{
			Type:               string(cond.Type),
			Status:             string(cond.Status),
			Reason:             cond.Reason,
			Message:            cond.Message,
			LastTransitionTime: cond.LastTransitionTime.Time,
		})
	}
	return status
}

// projectPhase maps a pod phase into a compute phase.
func projectPhase(phase corev1.PodPhase) types.ComputePhase {
	switch phase {
	case corev1.PodPending:
		return types.ComputePending
	case corev1.PodRunning:
		return types.ComputeRunning
	case corev1.PodSucceeded:
		return types.ComputeSucceeded
	case corev1.PodFailed:
		return types.ComputeFailed
	default:
		return types.ComputeUnknown
	}
}

// portMap builds the named port to number map. Unnamed ports are keyed by
// their number.
func portMap(ports []corev1.ContainerPort) map[string]int32 {
	if len(ports) == 0 {
		return nil
	}
	out := make(map[string]int32, len(ports))
	for _, p := range ports {
		name := p.Name
		if name == "" {
			name = fmt.Sprintf("port-%d", p.ContainerPort)
		}
		out[name] = p.ContainerPort
	}
	return out
}
