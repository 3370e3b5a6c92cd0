package cluster

import (
	corev1 "k8s.io/api/core/v1"

	"kube-aws-autoscaler/pkg/constants"
	"kube-aws-autoscaler/pkg/resources"
)

// PartitionKey identifies an (ASG, availability zone) pair, the unit at
// which demand and capacity are reconciled.
type PartitionKey struct {
	ASG  string
	Zone string
}

func (k PartitionKey) String() string {
	return k.ASG + "/" + k.Zone
}

// Node is the autoscaler's view of a worker node, valid for one iteration.
type Node struct {
	Name          string
	ASG           string
	Zone          string
	InstanceType  string
	Allocatable   resources.Vector
	Ready         bool
	Unschedulable bool
	Master        bool
}

// Key returns the partition the node belongs to.
func (n *Node) Key() PartitionKey {
	return PartitionKey{ASG: n.ASG, Zone: n.Zone}
}

// Usable reports whether the node can host workloads: it is ready, not
// cordoned, and either not a master or masters are included.
func (n *Node) Usable(includeMasters bool) bool {
	return n.Ready && !n.Unschedulable && (includeMasters || !n.Master)
}

// NewNode classifies a Kubernetes node. The second return value is false
// when the node carries no ASG label and is therefore not managed here.
func NewNode(obj *corev1.Node) (*Node, bool) {
	asg := obj.Labels[constants.NodeLabelASG]
	if asg == "" {
		return nil, false
	}

	zone := obj.Labels[constants.NodeLabelZone]
	if zone == "" {
		zone = obj.Labels[constants.NodeLabelZoneLegacy]
	}

	instanceType := obj.Labels[constants.NodeLabelInstanceType]
	if instanceType == "" {
		instanceType = obj.Labels[constants.NodeLabelInstanceTypeLegacy]
	}

	_, master := obj.Labels[constants.NodeLabelRoleMaster]
	if !master {
		_, master = obj.Labels[constants.NodeLabelRoleControlPlane]
	}

	return &Node{
		Name:         obj.Name,
		ASG:          asg,
		Zone:         zone,
		InstanceType: instanceType,
		Allocatable: resources.Vector{
			CPU:    obj.Status.Allocatable.Cpu().MilliValue(),
			Memory: obj.Status.Allocatable.Memory().Value(),
			Pods:   obj.Status.Allocatable.Pods().Value(),
		},
		Ready:         isNodeReady(obj),
		Unschedulable: obj.Spec.Unschedulable,
		Master:        master,
	}, true
}

func isNodeReady(obj *corev1.Node) bool {
	for _, cond := range obj.Status.Conditions {
		if cond.Type == corev1.NodeReady {
			return cond.Status == corev1.ConditionTrue
		}
	}
	return false
}
