package kubernetes

import (
	"context"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
)

// PodInterface is the capability set the orchestrator needs over pods.
// A fake in-memory implementation backs unit tests without a real cluster.
type PodInterface interface {
	Get(ctx context.Context, namespace, name string) (*corev1.Pod, error)
	List(ctx context.Context, namespace, labelSelector string) (*corev1.PodList, error)
	Create(ctx context.Context, namespace string, pod *corev1.Pod) (*corev1.Pod, error)
	Update(ctx context.Context, namespace string, pod *corev1.Pod) (*corev1.Pod, error)
	Delete(ctx context.Context, namespace, name string) error
	DeleteCollection(ctx context.Context, namespace, labelSelector string) error
	WaitForReady(ctx context.Context, namespace, name string, timeout time.Duration) error
}

// DeploymentInterface is the capability set the orchestrator needs over
// deployments.
type DeploymentInterface interface {
	Get(ctx context.Context, namespace, name string) (*appsv1.Deployment, error)
	List(ctx context.Context, namespace, labelSelector string) (*appsv1.DeploymentList, error)
	Create(ctx context.Context, namespace string, deployment *appsv1.Deployment) (*appsv1.Deployment, error)
	Update(ctx context.Context, namespace string, deployment *appsv1.Deployment) (*appsv1.Deployment, error)
	Delete(ctx context.Context, namespace, name string) error
}
