package kube

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Well-known control-plane node metadata.
const (
	ControlPlaneLabel     = "node-role.kubernetes.io/control-plane"
	ControlPlaneTaintKey  = "node-role.kubernetes.io/control-plane"
	NoScheduleTaintEffect = string(corev1.TaintEffectNoSchedule)
)

// NodeHasLabel implements Client.
func (c *client) NodeHasLabel(ctx context.Context, node, label string) (bool, error) {
	n, err := c.clientset.CoreV1().Nodes().Get(ctx, node, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get node %s: %w", node, err)
	}
	_, ok := n.Labels[label]
	return ok, nil
}

// NodeExists implements Client.
func (c *client) NodeExists(ctx context.Context, node string) (bool, error) {
	_, err := c.clientset.CoreV1().Nodes().Get(ctx, node, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get node %s: %w", node, err)
	}
	return true, nil
}

// RemoveTaint implements Client. Removing an absent taint is a no-op.
func (c *client) RemoveTaint(ctx context.Context, node, key, effect string) error {
	n, err := c.clientset.CoreV1().Nodes().Get(ctx, node, metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("failed to get node %s: %w", node, err)
	}

	kept := make([]corev1.Taint, 0, len(n.Spec.Taints))
	for _, taint := range n.Spec.Taints {
		if taint.Key == key && string(taint.Effect) == effect {
			continue
		}
		kept = append(kept, taint)
	}
	if len(kept) == len(n.Spec.Taints) {
		return nil
	}

	n.Spec.Taints = kept
	if _, err := c.clientset.CoreV1().Nodes().Update(ctx, n, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("failed to remove taint %s:%s from node %s: %w", key, effect, node, err)
	}
	return nil
}
