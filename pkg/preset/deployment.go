package preset

import (
	"time"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/computesdk/orchestrator/pkg/types"
)

const (
	annotationManagedBy = "computesdk.dev/managed-by"
	annotationUpdatedAt = "computesdk.dev/updated-at"
	managedByValue      = "orchestrator"

	containerName = "compute"
)

// reservedLabels are owned by the orchestrator and cannot be overridden by
// caller-supplied labels.
var reservedLabels = map[string]bool{
	types.LabelApp:       true,
	types.LabelPresetID:  true,
	types.LabelComputeID: true,
	types.LabelName:      true,
	types.LabelVersion:   true,
}

// buildDeployment renders a PresetSpec into its backing deployment with the
// given replica count. The selector and pod template both carry the compute
// discovery labels; the deployment itself carries the preset labels.
func buildDeployment(spec types.PresetSpec, namespace string, replicas int32) *appsv1.Deployment {
	deploymentLabels := map[string]string{
		types.LabelApp:      types.AppPreset,
		types.LabelPresetID: spec.ID,
		types.LabelName:     spec.Name,
	}
	if spec.Version != "" {
		deploymentLabels[types.LabelVersion] = spec.Version
	}

	podLabels := map[string]string{
		types.LabelApp:      types.AppCompute,
		types.LabelPresetID: spec.ID,
	}
	for k, v := range spec.Labels {
		if reservedLabels[k] {
			continue
		}
		deploymentLabels[k] = v
		podLabels[k] = v
	}

	annotations := map[string]string{
		annotationManagedBy: managedByValue,
	}
	for k, v := range spec.Annotations {
		annotations[k] = v
	}

	container := corev1.Container{
		Name:            containerName,
		Image:           spec.Image,
		ImagePullPolicy: spec.ImagePullPolicy,
		Command:         spec.Command,
		Args:            spec.Args,
		WorkingDir:      spec.WorkingDir,
		Env:             spec.Env,
		Ports:           spec.Ports,
		VolumeMounts:    spec.VolumeMounts,
		Resources:       spec.Resources,
	}

	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{
			Name:        DeploymentName(spec.ID),
			Namespace:   namespace,
			Labels:      deploymentLabels,
			Annotations: annotations,
		},
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{
				MatchLabels: map[string]string{
					types.LabelApp:      types.AppCompute,
					types.LabelPresetID: spec.ID,
				},
			},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels:      podLabels,
					Annotations: spec.Annotations,
				},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{container},
					Volumes:    spec.Volumes,
				},
			},
		},
	}
}

// projectPresetInfo projects a deployment back into a PresetInfo.
func projectPresetInfo(deployment *appsv1.Deployment) *types.PresetInfo {
	spec := types.PresetSpec{
		ID:          deployment.Labels[types.LabelPresetID],
		Name:        deployment.Labels[types.LabelName],
		Version:     deployment.Labels[types.LabelVersion],
		Labels:      callerLabels(deployment.Labels),
		Annotations: deployment.Annotations,
	}

	if containers := deployment.Spec.Template.Spec.Containers; len(containers) > 0 {
		c := containers[0]
		spec.Image = c.Image
		spec.ImagePullPolicy = c.ImagePullPolicy
		spec.Command = c.Command
		spec.Args = c.Args
		spec.WorkingDir = c.WorkingDir
		spec.Env = c.Env
		spec.Ports = c.Ports
		spec.VolumeMounts = c.VolumeMounts
		spec.Resources = c.Resources
	}
	spec.Volumes = deployment.Spec.Template.Spec.Volumes

	info := &types.PresetInfo{
		PresetSpec:     spec,
		DeploymentName: deployment.Name,
		BaseReplicas:   replicaCount(deployment),
		CreatedAt:      deployment.CreationTimestamp.Time,
	}
	if raw, ok := deployment.Annotations[annotationUpdatedAt]; ok {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			info.UpdatedAt = t
		}
	}
	return info
}

// callerLabels strips the orchestrator-owned label keys, leaving the
// caller-supplied set.
func callerLabels(all map[string]string) map[string]string {
	if len(all) == 0 {
		return nil
	}
	out := make(map[string]string)
	for k, v := range all {
		if reservedLabels[k] {
			continue
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
