package kubernetes

import (
	"context"
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/computesdk/orchestrator/pkg/errors"
)

// deploymentClient implements DeploymentInterface against the cluster API.
type deploymentClient struct {
	client *Client
}

var _ DeploymentInterface = (*deploymentClient)(nil)

// Get retrieves a deployment by name.
func (d *deploymentClient) Get(ctx context.Context, namespace, name string) (*appsv1.Deployment, error) {
	ctx, cancel := d.client.ensureDeadline(ctx)
	defer cancel()

	deployment, err := d.client.clientset.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, wrapAPIError(err, "get", "deployment", namespace, name)
	}
	return deployment, nil
}

// List lists deployments matching the label selector.
func (d *deploymentClient) List(ctx context.Context, namespace, labelSelector string) (*appsv1.DeploymentList, error) {
	ctx, cancel := d.client.ensureDeadline(ctx)
	defer cancel()

	deployments, err := d.client.clientset.AppsV1().Deployments(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: labelSelector,
	})
	if err != nil {
		return nil, wrapAPIError(err, "list", "deployments", namespace, labelSelector)
	}
	return deployments, nil
}

// Create creates a deployment.
func (d *deploymentClient) Create(ctx context.Context, namespace string, deployment *appsv1.Deployment) (*appsv1.Deployment, error) {
	ctx, cancel := d.client.ensureDeadline(ctx)
	defer cancel()

	created, err := d.client.clientset.AppsV1().Deployments(namespace).Create(ctx, deployment, metav1.CreateOptions{})
	if err != nil {
		return nil, wrapAPIError(err, "create", "deployment", namespace, deployment.Name)
	}
	return created, nil
}

// Update updates a deployment. The update is conditional on the resource
// version; replica-count mutations must retry on conflict.
func (d *deploymentClient) Update(ctx context.Context, namespace string, deployment *appsv1.Deployment) (*appsv1.Deployment, error) {
	ctx, cancel := d.client.ensureDeadline(ctx)
	defer cancel()

	updated, err := d.client.clientset.AppsV1().Deployments(namespace).Update(ctx, deployment, metav1.UpdateOptions{})
	if err != nil {
		return nil, wrapAPIError(err, "update", "deployment", namespace, deployment.Name)
	}
	return updated, nil
}

// Delete deletes a deployment. Deleting an already-absent deployment is not
// an error.
func (d *deploymentClient) Delete(ctx context.Context, namespace, name string) error {
	ctx, cancel := d.client.ensureDeadline(ctx)
	defer cancel()

	err := d.client.clientset.AppsV1().Deployments(namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if err != nil && !isNotFound(err) {
		return wrapAPIError(err, "delete", "deployment", namespace, name)
	}
	return nil
}

// isNotFound reports whether the cluster API answered 404 for the resource.
func isNotFound(err error) bool {
	return apierrors.IsNotFound(err)
}

// wrapAPIError translates a cluster API failure into the orchestrator's
// error taxonomy. Not-found responses become the recoverable NotFound kind;
// everything else is wrapped with the operation, namespace and resource name
// for diagnosis.
func wrapAPIError(err error, op, kind, namespace, name string) error {
	if apierrors.IsNotFound(err) {
		return errors.NewNotFoundError(kind, name, err)
	}
	return errors.NewInternalError(fmt.Sprintf("failed to %s %s %s/%s", op, kind, namespace, name), err)
}
