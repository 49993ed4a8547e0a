package kube

import (
	"context"
	"fmt"
	"maps"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// DeploymentExists implements Client.
func (c *client) DeploymentExists(ctx context.Context, namespace, name string) (bool, error) {
	_, err := c.clientset.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get deployment %s/%s: %w", namespace, name, err)
	}
	return true, nil
}

// CountReadyPods implements Client.
func (c *client) CountReadyPods(ctx context.Context, namespace, selector string) (int, error) {
	pods, err := c.clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		return 0, fmt.Errorf("failed to list pods in %s with %q: %w", namespace, selector, err)
	}

	ready := 0
	for i := range pods.Items {
		if isPodReady(&pods.Items[i]) {
			ready++
		}
	}
	return ready, nil
}

func isPodReady(pod *corev1.Pod) bool {
	if pod.DeletionTimestamp != nil || pod.Status.Phase != corev1.PodRunning {
		return false
	}
	for _, cond := range pod.Status.Conditions {
		if cond.Type == corev1.PodReady {
			return cond.Status == corev1.ConditionTrue
		}
	}
	return false
}

// EnsureNamespace implements Client.
func (c *client) EnsureNamespace(ctx context.Context, namespace string, labels map[string]string) error {
	namespaces := c.clientset.CoreV1().Namespaces()

	ns, err := namespaces.Get(ctx, namespace, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		ns = &corev1.Namespace{
			ObjectMeta: metav1.ObjectMeta{Name: namespace, Labels: maps.Clone(labels)},
		}
		if _, err := namespaces.Create(ctx, ns, metav1.CreateOptions{}); err != nil && !apierrors.IsAlreadyExists(err) {
			return fmt.Errorf("failed to create namespace %s: %w", namespace, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get namespace %s: %w", namespace, err)
	}

	changed := false
	if ns.Labels == nil {
		ns.Labels = map[string]string{}
	}
	for k, v := range labels {
		if ns.Labels[k] != v {
			ns.Labels[k] = v
			changed = true
		}
	}
	if !changed {
		return nil
	}
	if _, err := namespaces.Update(ctx, ns, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("failed to label namespace %s: %w", namespace, err)
	}
	return nil
}
