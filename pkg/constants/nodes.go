package constants

// This file centralizes node-related constants, such as labels and conditions.

const (
	// NodeLabelASG is the label key carrying the name of the Auto Scaling
	// Group (node group) a worker node belongs to. Nodes without this label
	// are not managed by the autoscaler.
	NodeLabelASG = "eks.amazonaws.com/nodegroup"

	// NodeLabelZone is the stable topology label for the availability zone.
	NodeLabelZone = "topology.kubernetes.io/zone"
	// NodeLabelZoneLegacy is the deprecated zone label still set by older
	// cloud providers; used as a fallback when NodeLabelZone is absent.
	NodeLabelZoneLegacy = "failure-domain.beta.kubernetes.io/zone"

	// NodeLabelInstanceType is the stable instance type label.
	NodeLabelInstanceType = "node.kubernetes.io/instance-type"
	// NodeLabelInstanceTypeLegacy is the deprecated instance type label.
	NodeLabelInstanceTypeLegacy = "beta.kubernetes.io/instance-type"

	// NodeLabelRoleMaster and NodeLabelRoleControlPlane mark control plane
	// nodes. Either label present, with any value, identifies a master.
	NodeLabelRoleMaster       = "node-role.kubernetes.io/master"
	NodeLabelRoleControlPlane = "node-role.kubernetes.io/control-plane"
)
