// Package kubernetes wraps the cluster control-plane API for the two
// resource kinds the orchestrator manipulates: pods and deployments. Every
// entry point enforces a default operation deadline when the caller supplies
// none, and translates cluster "not found" responses into the orchestrator's
// NotFound error kind so the managers never inspect raw API errors.
package kubernetes

import (
	"context"
	"fmt"
	"time"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/computesdk/orchestrator/pkg/config"
	"github.com/computesdk/orchestrator/pkg/logger"
)

// DefaultTimeout bounds cluster calls whose context carries no deadline.
const DefaultTimeout = 30 * time.Second

// Client manages Kubernetes API interactions
type Client struct {
	clientset      kubernetes.Interface
	restConfig     *rest.Config
	logger         logger.Interface
	defaultTimeout time.Duration
}

// New creates a new Kubernetes client
func New(cfg *config.Config, log logger.Interface) (*Client, error) {
	var restConfig *rest.Config
	var err error

	if cfg.Kubernetes.InCluster {
		restConfig, err = rest.InClusterConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to create in-cluster config: %w", err)
		}
		log.Info("Using in-cluster Kubernetes configuration")
	} else {
		restConfig, err = clientcmd.BuildConfigFromFlags("", cfg.Kubernetes.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to build config from kubeconfig: %w", err)
		}
		log.Info("Using external Kubernetes configuration", "path", cfg.Kubernetes.ConfigPath)
	}

	// Configure connection pooling
	restConfig.QPS = cfg.Kubernetes.QPS
	restConfig.Burst = cfg.Kubernetes.Burst
	restConfig.Timeout = cfg.Orchestrator.DefaultTimeout

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kubernetes clientset: %w", err)
	}

	timeout := cfg.Orchestrator.DefaultTimeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		clientset:      clientset,
		restConfig:     restConfig,
		logger:         log,
		defaultTimeout: timeout,
	}, nil
}

// NewForClientset wraps an existing clientset. Used by tests with the fake
// clientset standing in for a real cluster.
func NewForClientset(clientset kubernetes.Interface, log logger.Interface, defaultTimeout time.Duration) *Client {
	if defaultTimeout <= 0 {
		defaultTimeout = DefaultTimeout
	}
	return &Client{
		clientset:      clientset,
		logger:         log,
		defaultTimeout: defaultTimeout,
	}
}

// Clientset returns the Kubernetes clientset
func (c *Client) Clientset() kubernetes.Interface {
	return c.clientset
}

// RESTConfig returns the REST config
func (c *Client) RESTConfig() *rest.Config {
	return c.restConfig
}

// Pods returns the pod resource client
func (c *Client) Pods() PodInterface {
	return &podClient{client: c}
}

// Deployments returns the deployment resource client
func (c *Client) Deployments() DeploymentInterface {
	return &deploymentClient{client: c}
}

// ensureDeadline derives a default deadline when the caller's context has
// none. The returned cancel func must be called on return to release the
// timer.
func (c *Client) ensureDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.defaultTimeout)
}
