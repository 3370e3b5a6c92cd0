package cluster

import (
	"context"
	"fmt"
	"sort"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/klog/v2"

	"kube-aws-autoscaler/pkg/resources"
)

// Containers without resource requests are assumed to need at least this
// much, so a cluster full of request-less pods still drives sizing.
var defaultContainerRequests = resources.Vector{
	CPU:    10,               // 10m
	Memory: 50 * 1024 * 1024, // 50Mi
}

// Snapshot is one iteration's immutable view of the cluster: managed nodes,
// per-partition requested resources, and the pending bucket of demand that
// has no usable home yet.
type Snapshot struct {
	// Nodes maps node name to its classification. Only nodes carrying an
	// ASG label appear here.
	Nodes map[string]*Node

	// Usage accumulates requests of non-terminal pods assigned to usable
	// nodes, keyed by the node's partition.
	Usage map[PartitionKey]resources.Vector

	// Pending accumulates requests of non-terminal pods without a usable
	// home: unassigned pods, pods on unknown nodes, pods on unusable nodes.
	Pending resources.Vector
}

// ReadyNodesByASG counts ready nodes per ASG. Scale-downs are held while
// an ASG has fewer ready nodes than its desired capacity.
func (s *Snapshot) ReadyNodesByASG() map[string]int {
	ready := make(map[string]int)
	for _, n := range s.Nodes {
		if n.Ready {
			ready[n.ASG]++
		}
	}
	return ready
}

// ASGNames returns the sorted set of ASG names seen on nodes.
func (s *Snapshot) ASGNames() []string {
	seen := make(map[string]bool)
	for _, n := range s.Nodes {
		seen[n.ASG] = true
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Collector builds cluster snapshots from the Kubernetes API.
type Collector struct {
	kube           kubernetes.Interface
	includeMasters bool
}

func NewCollector(kube kubernetes.Interface, includeMasters bool) *Collector {
	return &Collector{kube: kube, includeMasters: includeMasters}
}

// Snapshot lists nodes and pods and aggregates requested resources. Nodes
// without an ASG label are ignored; pods referencing unknown nodes are
// counted as pending so their demand is not lost.
func (c *Collector) Snapshot(ctx context.Context) (*Snapshot, error) {
	nodeList, err := c.kube.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("listing nodes: %w", err)
	}

	snap := &Snapshot{
		Nodes: make(map[string]*Node),
		Usage: make(map[PartitionKey]resources.Vector),
	}

	for i := range nodeList.Items {
		node, ok := NewNode(&nodeList.Items[i])
		if !ok {
			klog.V(4).Infof("Node %s has no ASG label, ignoring", nodeList.Items[i].Name)
			continue
		}
		snap.Nodes[node.Name] = node
	}

	podList, err := c.kube.CoreV1().Pods(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("listing pods: %w", err)
	}

	for i := range podList.Items {
		c.accumulate(snap, &podList.Items[i])
	}

	return snap, nil
}

func (c *Collector) accumulate(snap *Snapshot, pod *corev1.Pod) {
	// Terminal pods no longer occupy capacity.
	if pod.Status.Phase == corev1.PodSucceeded || pod.Status.Phase == corev1.PodFailed {
		return
	}

	requests := podRequests(pod)

	node, known := snap.Nodes[pod.Spec.NodeName]
	switch {
	case known && node.Usable(c.includeMasters):
		key := node.Key()
		snap.Usage[key] = snap.Usage[key].Add(requests)
	case known && node.Master && !c.includeMasters:
		// Master workloads are outside the autoscaler's scope.
	case known:
		// The node exists but cannot host workloads (not ready or
		// cordoned); its pods will need capacity elsewhere.
		snap.Pending = snap.Pending.Add(requests)
	case pod.Spec.NodeName != "":
		klog.Warningf("Pod %s/%s references unknown node %s, counting as pending",
			pod.Namespace, pod.Name, pod.Spec.NodeName)
		snap.Pending = snap.Pending.Add(requests)
	default:
		snap.Pending = snap.Pending.Add(requests)
	}
}

// podRequests sums the pod's container requests. The pods dimension is
// always 1. Containers without a request fall back to the defaults.
func podRequests(pod *corev1.Pod) resources.Vector {
	total := resources.Vector{Pods: 1}
	for i := range pod.Spec.Containers {
		container := &pod.Spec.Containers[i]

		if cpu, ok := container.Resources.Requests[corev1.ResourceCPU]; ok {
			total.CPU += cpu.MilliValue()
		} else {
			klog.V(4).Infof("Container %s/%s/%s has no cpu request, assuming %dm",
				pod.Namespace, pod.Name, container.Name, defaultContainerRequests.CPU)
			total.CPU += defaultContainerRequests.CPU
		}

		if mem, ok := container.Resources.Requests[corev1.ResourceMemory]; ok {
			total.Memory += mem.Value()
		} else {
			klog.V(4).Infof("Container %s/%s/%s has no memory request, assuming %s",
				pod.Namespace, pod.Name, container.Name, resources.FormatMemory(defaultContainerRequests.Memory))
			total.Memory += defaultContainerRequests.Memory
		}
	}
	return total
}
