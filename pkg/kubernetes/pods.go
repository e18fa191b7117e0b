package kubernetes

import (
	"context"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/computesdk/orchestrator/pkg/errors"
)

// readyPollInterval is the pod readiness wait interval.
const readyPollInterval = time.Second

// podClient implements PodInterface against the cluster API.
type podClient struct {
	client *Client
}

var _ PodInterface = (*podClient)(nil)

// Get retrieves a pod by name.
func (p *podClient) Get(ctx context.Context, namespace, name string) (*corev1.Pod, error) {
	ctx, cancel := p.client.ensureDeadline(ctx)
	defer cancel()

	pod, err := p.client.clientset.CoreV1().Pods(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, wrapAPIError(err, "get", "pod", namespace, name)
	}
	return pod, nil
}

// List lists pods matching the label selector.
func (p *podClient) List(ctx context.Context, namespace, labelSelector string) (*corev1.PodList, error) {
	ctx, cancel := p.client.ensureDeadline(ctx)
	defer cancel()

	pods, err := p.client.clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: labelSelector,
	})
	if err != nil {
		return nil, wrapAPIError(err, "list", "pods", namespace, labelSelector)
	}
	return pods, nil
}

// Create creates a pod.
func (p *podClient) Create(ctx context.Context, namespace string, pod *corev1.Pod) (*corev1.Pod, error) {
	ctx, cancel := p.client.ensureDeadline(ctx)
	defer cancel()

	created, err := p.client.clientset.CoreV1().Pods(namespace).Create(ctx, pod, metav1.CreateOptions{})
	if err != nil {
		return nil, wrapAPIError(err, "create", "pod", namespace, pod.Name)
	}
	return created, nil
}

// Update updates a pod. The update is conditional on the pod's resource
// version; callers that race must retry on conflict.
func (p *podClient) Update(ctx context.Context, namespace string, pod *corev1.Pod) (*corev1.Pod, error) {
	ctx, cancel := p.client.ensureDeadline(ctx)
	defer cancel()

	updated, err := p.client.clientset.CoreV1().Pods(namespace).Update(ctx, pod, metav1.UpdateOptions{})
	if err != nil {
		return nil, wrapAPIError(err, "update", "pod", namespace, pod.Name)
	}
	return updated, nil
}

// Delete deletes a pod. Deleting an already-absent pod is not an error.
func (p *podClient) Delete(ctx context.Context, namespace, name string) error {
	ctx, cancel := p.client.ensureDeadline(ctx)
	defer cancel()

	err := p.client.clientset.CoreV1().Pods(namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if err != nil && !isNotFound(err) {
		return wrapAPIError(err, "delete", "pod", namespace, name)
	}
	return nil
}

// DeleteCollection deletes all pods matching the label selector. An empty
// selector is rejected so a bug can never wipe an entire namespace.
func (p *podClient) DeleteCollection(ctx context.Context, namespace, labelSelector string) error {
	if labelSelector == "" {
		return fmt.Errorf("refusing to delete pod collection in %s: empty label selector", namespace)
	}

	ctx, cancel := p.client.ensureDeadline(ctx)
	defer cancel()

	err := p.client.clientset.CoreV1().Pods(namespace).DeleteCollection(ctx, metav1.DeleteOptions{}, metav1.ListOptions{
		LabelSelector: labelSelector,
	})
	if err != nil && !isNotFound(err) {
		return wrapAPIError(err, "deleteCollection", "pods", namespace, labelSelector)
	}
	return nil
}

// WaitForReady polls until the pod's Ready condition is true, the timeout
// elapses, or the caller's context is cancelled.
func (p *podClient) WaitForReady(ctx context.Context, namespace, name string, timeout time.Duration) error {
	err := wait.PollUntilContextTimeout(ctx, readyPollInterval, timeout, true, func(ctx context.Context) (bool, error) {
		pod, err := p.client.clientset.CoreV1().Pods(namespace).Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			if isNotFound(err) {
				// The pod may not be visible yet, keep polling.
				return false, nil
			}
			return false, wrapAPIError(err, "get", "pod", namespace, name)
		}
		return IsPodReady(pod), nil
	})
	if err != nil {
		if wait.Interrupted(err) {
			return errors.NewTimeoutError("WaitForReady",
				fmt.Sprintf("pod %s/%s not ready after %s", namespace, name, timeout), err)
		}
		return err
	}
	return nil
}

// IsPodReady reports whether the pod's Ready condition is true.
func IsPodReady(pod *corev1.Pod) bool {
	for _, cond := range pod.Status.Conditions {
		if cond.Type == corev1.PodReady {
			return cond.Status == corev1.ConditionTrue
		}
	}
	return false
}
