package compute

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/computesdk/orchestrator/pkg/errors"
	"github.com/computesdk/orchestrator/pkg/kubernetes"
	"github.com/computesdk/orchestrator/pkg/logger"
	"github.com/computesdk/orchestrator/pkg/preset"
	"github.com/computesdk/orchestrator/pkg/types"
)

// setupManager wires a compute manager and its preset registry against a fake
// cluster. The claim loop runs with short intervals so timeout paths stay
// fast.
func setupManager(t *testing.T) (Manager, preset.Manager, *fake.Clientset) {
	t.Helper()
	clientset := fake.NewSimpleClientset()
	client := kubernetes.NewForClientset(clientset, logger.NewNop(), 5*time.Second)

	presets, err := preset.New(logger.NewNop(), client.Pods(), client.Deployments(), nil, &preset.Config{
		Namespace: "default",
	})
	require.NoError(t, err)

	computes, err := New(logger.NewNop(), client.Pods(), client.Deployments(), presets, nil, &Config{
		Namespace:     "default",
		CreateTimeout: 500 * time.Millisecond,
		PollInterval:  10 * time.Millisecond,
	})
	require.NoError(t, err)
	return computes, presets, clientset
}

func createPreset(t *testing.T, presets preset.Manager, presetID string) {
	t.Helper()
	_, err := presets.CreatePreset(context.Background(), types.PresetSpec{
		ID:      presetID,
		Name:    presetID,
		Version: "v1",
		Image:   "nginx:latest",
		Ports: []corev1.ContainerPort{
			{Name: "http", ContainerPort: 80},
		},
	})
	require.NoError(t, err)
}

// newUnclaimedPod builds the pod the deployment controller would materialize
// after a scale-up: preset labels present, no compute identifier yet.
func newUnclaimedPod(name, presetID string) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: "default",
			Labels: map[string]string{
				types.LabelApp:      types.AppCompute,
				types.LabelPresetID: presetID,
			},
		},
		Spec: corev1.PodSpec{
			Containers: []corev1.Container{{
				Name:  "compute",
				Image: "nginx:latest",
				Ports: []corev1.ContainerPort{{Name: "http", ContainerPort: 80}},
			}},
		},
		Status: corev1.PodStatus{
			Phase: corev1.PodRunning,
			PodIP: "10.0.0.5",
			Conditions: []corev1.PodCondition{
				{Type: corev1.PodReady, Status: corev1.ConditionTrue},
			},
		},
	}
}

func addPod(t *testing.T, clientset *fake.Clientset, pod *corev1.Pod) {
	t.Helper()
	_, err := clientset.CoreV1().Pods("default").Create(context.Background(), pod, metav1.CreateOptions{})
	require.NoError(t, err)
}

func deploymentReplicas(t *testing.T, clientset *fake.Clientset, name string) int32 {
	t.Helper()
	deployment, err := clientset.AppsV1().Deployments("default").Get(context.Background(), name, metav1.GetOptions{})
	require.NoError(t, err)
	require.NotNil(t, deployment.Spec.Replicas)
	return *deployment.Spec.Replicas
}

func TestCreateCompute(t *testing.T) {
	computes, presets, clientset := setupManager(t)
	ctx := context.Background()

	createPreset(t, presets, "web")
	// The fake cluster has no deployment controller, so the pod a scale-up
	// would materialize is created up front.
	addPod(t, clientset, newUnclaimedPod("pod-a", "web"))

	info, err := computes.CreateCompute(ctx, types.ComputeSpec{
		ComputeID: "cmp-1",
		PresetID:  "web",
		Labels:    map[string]string{"team": "platform"},
	})
	require.NoError(t, err)

	assert.Equal(t, "cmp-1", info.ComputeID)
	assert.Equal(t, "pod-a", info.PodName)
	assert.Equal(t, "web", info.PresetID)
	assert.Equal(t, "preset-web", info.DeploymentName)
	assert.Equal(t, "10.0.0.5", info.PodIP)
	assert.Equal(t, int32(80), info.Ports["http"])

	// The claim wrote the compute identity and the caller labels onto the pod.
	pod, err := clientset.CoreV1().Pods("default").Get(ctx, "pod-a", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "cmp-1", pod.Labels[types.LabelComputeID])
	assert.Equal(t, "platform", pod.Labels["team"])

	assert.Equal(t, int32(1), deploymentReplicas(t, clientset, "preset-web"))
}

func TestCreateComputeGeneratesID(t *testing.T) {
	computes, presets, clientset := setupManager(t)

	createPreset(t, presets, "web")
	addPod(t, clientset, newUnclaimedPod("pod-a", "web"))

	info, err := computes.CreateCompute(context.Background(), types.ComputeSpec{PresetID: "web"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(info.ComputeID, "cmp-"))
}

func TestCreateComputeUnknownPreset(t *testing.T) {
	computes, _, _ := setupManager(t)

	_, err := computes.CreateCompute(context.Background(), types.ComputeSpec{
		ComputeID: "cmp-1",
		PresetID:  "missing",
	})
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestCreateComputeValidation(t *testing.T) {
	computes, _, _ := setupManager(t)

	_, err := computes.CreateCompute(context.Background(), types.ComputeSpec{ComputeID: "cmp-1"})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestCreateComputeTimeoutRollsBackReplicas(t *testing.T) {
	computes, presets, clientset := setupManager(t)

	createPreset(t, presets, "web")
	// No pod ever shows up: the claim loop times out.

	_, err := computes.CreateCompute(context.Background(), types.ComputeSpec{
		ComputeID: "cmp-1",
		PresetID:  "web",
	})
	require.Error(t, err)
	assert.True(t, errors.IsTimeout(err))

	// The failed creation left the replica count where it started.
	assert.Equal(t, int32(0), deploymentReplicas(t, clientset, "preset-web"))
}

func TestCreateComputeSkipsClaimedPods(t *testing.T) {
	computes, presets, clientset := setupManager(t)
	ctx := context.Background()

	createPreset(t, presets, "web")

	taken := newUnclaimedPod("pod-taken", "web")
	taken.Labels[types.LabelComputeID] = "cmp-other"
	addPod(t, clientset, taken)
	addPod(t, clientset, newUnclaimedPod("pod-free", "web"))

	info, err := computes.CreateCompute(ctx, types.ComputeSpec{
		ComputeID: "cmp-1",
		PresetID:  "web",
	})
	require.NoError(t, err)
	assert.Equal(t, "pod-free", info.PodName)

	// The already claimed pod is untouched.
	pod, err := clientset.CoreV1().Pods("default").Get(ctx, "pod-taken", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "cmp-other", pod.Labels[types.LabelComputeID])
}

func TestGetCompute(t *testing.T) {
	computes, presets, clientset := setupManager(t)
	ctx := context.Background()

	createPreset(t, presets, "web")
	addPod(t, clientset, newUnclaimedPod("pod-a", "web"))

	created, err := computes.CreateCompute(ctx, types.ComputeSpec{ComputeID: "cmp-1", PresetID: "web"})
	require.NoError(t, err)

	got, err := computes.GetCompute(ctx, "cmp-1")
	require.NoError(t, err)
	assert.Equal(t, created.PodName, got.PodName)

	_, err = computes.GetCompute(ctx, "cmp-missing")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))

	var computeErr *errors.ComputeError
	require.ErrorAs(t, err, &computeErr)
	assert.Equal(t, "cmp-missing", computeErr.ComputeID)
}

func TestGetComputeServesFromCache(t *testing.T) {
	computes, presets, clientset := setupManager(t)
	ctx := context.Background()

	createPreset(t, presets, "web")
	addPod(t, clientset, newUnclaimedPod("pod-a", "web"))

	_, err := computes.CreateCompute(ctx, types.ComputeSpec{ComputeID: "cmp-1", PresetID: "web"})
	require.NoError(t, err)

	// The pod disappears behind the cache's back; reads still serve the
	// cached record until something refreshes it.
	require.NoError(t, clientset.CoreV1().Pods("default").Delete(ctx, "pod-a", metav1.DeleteOptions{}))

	got, err := computes.GetCompute(ctx, "cmp-1")
	require.NoError(t, err)
	assert.Equal(t, "pod-a", got.PodName)
}

func TestListComputes(t *testing.T) {
	computes, presets, clientset := setupManager(t)
	ctx := context.Background()

	createPreset(t, presets, "web")
	createPreset(t, presets, "db")

	webPod := newUnclaimedPod("pod-web", "web")
	webPod.Labels[types.LabelComputeID] = "cmp-web"
	addPod(t, clientset, webPod)

	dbPod := newUnclaimedPod("pod-db", "db")
	dbPod.Labels[types.LabelComputeID] = "cmp-db"
	dbPod.Status.Phase = corev1.PodPending
	addPod(t, clientset, dbPod)

	// Unclaimed pods are capacity, not computes; discovery skips them.
	addPod(t, clientset, newUnclaimedPod("pod-unclaimed", "web"))

	all, err := computes.ListComputes(ctx, types.ComputeFilters{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	byPreset, err := computes.ListComputes(ctx, types.ComputeFilters{PresetID: "db"})
	require.NoError(t, err)
	require.Len(t, byPreset, 1)
	assert.Equal(t, "cmp-db", byPreset[0].ComputeID)

	byPhase, err := computes.ListComputes(ctx, types.ComputeFilters{Phase: types.ComputeRunning})
	require.NoError(t, err)
	require.Len(t, byPhase, 1)
	assert.Equal(t, "cmp-web", byPhase[0].ComputeID)
}

func TestDeleteCompute(t *testing.T) {
	computes, presets, clientset := setupManager(t)
	ctx := context.Background()

	createPreset(t, presets, "web")
	addPod(t, clientset, newUnclaimedPod("pod-a", "web"))

	_, err := computes.CreateCompute(ctx, types.ComputeSpec{ComputeID: "cmp-1", PresetID: "web"})
	require.NoError(t, err)
	require.Equal(t, int32(1), deploymentReplicas(t, clientset, "preset-web"))

	require.NoError(t, computes.DeleteCompute(ctx, "cmp-1"))

	assert.Equal(t, int32(0), deploymentReplicas(t, clientset, "preset-web"))
	_, err = clientset.CoreV1().Pods("default").Get(ctx, "pod-a", metav1.GetOptions{})
	assert.Error(t, err)

	_, err = computes.GetCompute(ctx, "cmp-1")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestDeleteComputeUnknown(t *testing.T) {
	computes, _, _ := setupManager(t)

	err := computes.DeleteCompute(context.Background(), "cmp-missing")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestGetComputeStatus(t *testing.T) {
	computes, presets, clientset := setupManager(t)
	ctx := context.Background()

	createPreset(t, presets, "web")
	addPod(t, clientset, newUnclaimedPod("pod-a", "web"))

	_, err := computes.CreateCompute(ctx, types.ComputeSpec{ComputeID: "cmp-1", PresetID: "web"})
	require.NoError(t, err)

	status, err := computes.GetComputeStatus(ctx, "cmp-1")
	require.NoError(t, err)
	assert.Equal(t, types.ComputeRunning, status.Phase)
	assert.True(t, status.Ready)
}

func TestWaitForComputeReady(t *testing.T) {
	computes, presets, clientset := setupManager(t)
	ctx := context.Background()

	createPreset(t, presets, "web")
	addPod(t, clientset, newUnclaimedPod("pod-a", "web"))

	_, err := computes.CreateCompute(ctx, types.ComputeSpec{ComputeID: "cmp-1", PresetID: "web"})
	require.NoError(t, err)

	info, err := computes.WaitForComputeReady(ctx, "cmp-1", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", info.PodIP)
	assert.True(t, info.Status.Ready)
}

func TestWaitForComputeReadyTimeout(t *testing.T) {
	computes, presets, clientset := setupManager(t)
	ctx := context.Background()

	createPreset(t, presets, "web")
	pod := newUnclaimedPod("pod-a", "web")
	pod.Status.Conditions = []corev1.PodCondition{
		{Type: corev1.PodReady, Status: corev1.ConditionFalse},
	}
	addPod(t, clientset, pod)

	_, err := computes.CreateCompute(ctx, types.ComputeSpec{ComputeID: "cmp-1", PresetID: "web"})
	require.NoError(t, err)

	_, err = computes.WaitForComputeReady(ctx, "cmp-1", 50*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.IsTimeout(err))
}

func TestRestartCompute(t *testing.T) {
	computes, presets, clientset := setupManager(t)
	ctx := context.Background()

	createPreset(t, presets, "web")
	addPod(t, clientset, newUnclaimedPod("pod-old", "web"))

	_, err := computes.CreateCompute(ctx, types.ComputeSpec{ComputeID: "cmp-1", PresetID: "web"})
	require.NoError(t, err)

	// The replacement the controller would bring up after the delete.
	addPod(t, clientset, newUnclaimedPod("pod-new", "web"))

	info, err := computes.RestartCompute(ctx, "cmp-1")
	require.NoError(t, err)

	// Same compute identity, fresh pod.
	assert.Equal(t, "cmp-1", info.ComputeID)
	assert.Equal(t, "pod-new", info.PodName)

	pod, err := clientset.CoreV1().Pods("default").Get(ctx, "pod-new", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "cmp-1", pod.Labels[types.LabelComputeID])
}

func TestBackgroundRefreshPopulatesCache(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	client := kubernetes.NewForClientset(clientset, logger.NewNop(), 5*time.Second)

	presets, err := preset.New(logger.NewNop(), client.Pods(), client.Deployments(), nil, &preset.Config{
		Namespace: "default",
	})
	require.NoError(t, err)

	computes, err := New(logger.NewNop(), client.Pods(), client.Deployments(), presets, nil, &Config{
		Namespace:            "default",
		CacheRefreshInterval: 20 * time.Millisecond,
	})
	require.NoError(t, err)

	require.NoError(t, computes.Start())
	defer func() { require.NoError(t, computes.Stop()) }()

	// A compute appears in the cluster without going through this manager,
	// e.g. claimed by another replica. The refresher picks it up.
	pod := newUnclaimedPod("pod-a", "web")
	pod.Labels[types.LabelComputeID] = "cmp-1"
	addPod(t, clientset, pod)

	assert.Eventually(t, func() bool {
		// A cache hit survives the pod's deletion; probe via a list first so
		// the entry is guaranteed to come from the refresher.
		info, err := computes.GetCompute(context.Background(), "cmp-1")
		return err == nil && info.PodName == "pod-a"
	}, time.Second, 10*time.Millisecond)
}

func TestCreateComputeLifecycle(t *testing.T) {
	computes, presets, clientset := setupManager(t)
	ctx := context.Background()

	createPreset(t, presets, "web")
	addPod(t, clientset, newUnclaimedPod("pod-a", "web"))

	created, err := computes.CreateCompute(ctx, types.ComputeSpec{PresetID: "web"})
	require.NoError(t, err)

	ready, err := computes.WaitForComputeReady(ctx, created.ComputeID, time.Second)
	require.NoError(t, err)
	assert.True(t, ready.Status.Ready)

	listed, err := computes.ListComputes(ctx, types.ComputeFilters{PresetID: "web"})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, created.ComputeID, listed[0].ComputeID)

	require.NoError(t, computes.DeleteCompute(ctx, created.ComputeID))

	// Deleting the preset now succeeds: nothing is live anymore.
	require.NoError(t, presets.DeletePreset(ctx, "web"))
}
