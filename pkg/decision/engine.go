// Package decision implements the autoscale decision function: a pure
// computation from one cluster snapshot plus ASG state to one desired
// capacity per ASG. It performs no I/O.
package decision

import (
	"fmt"
	"sort"

	"k8s.io/klog/v2"

	"kube-aws-autoscaler/pkg/cluster"
	"kube-aws-autoscaler/pkg/constants"
	"kube-aws-autoscaler/pkg/resources"
)

// Config carries the sizing knobs. It is immutable after startup.
type Config struct {
	// BufferCPUPct, BufferMemoryPct and BufferPodsPct are the multiplicative
	// overhead per dimension, in percent.
	BufferCPUPct    int64
	BufferMemoryPct int64
	BufferPodsPct   int64

	// BufferFixed is the additive overhead per dimension.
	BufferFixed resources.Vector

	// SpareNodes is the minimum weakest-node units per partition.
	SpareNodes int

	// IncludeMasterNodes makes master nodes count as capacity.
	IncludeMasterNodes bool

	// ScaleDownStepFixed caps the per-iteration decrease in nodes.
	ScaleDownStepFixed int
	// ScaleDownStepPct caps the decrease as a percentage of the current
	// desired capacity. The larger of the two caps wins.
	ScaleDownStepPct int64
}

// ASGState is the cloud-side view of one Auto Scaling Group.
type ASGState struct {
	Name    string
	Min     int
	Max     int
	Current int
}

// Result is the per-ASG outcome of one decision run.
type Result struct {
	Name     string
	Current  int
	Required int
	Final    int
	Reason   string
	Err      error
}

type Engine struct {
	config Config
}

func NewEngine(config Config) *Engine {
	return &Engine{config: config}
}

// Decide computes one target capacity per ASG. Results are returned in
// ascending ASG name order and are deterministic for a fixed snapshot.
func (e *Engine) Decide(snap *cluster.Snapshot, asgs []ASGState) []Result {
	usableByPartition := make(map[cluster.PartitionKey][]*cluster.Node)
	partitionsByASG := make(map[string][]cluster.PartitionKey)
	seen := make(map[cluster.PartitionKey]bool)

	for _, node := range snap.Nodes {
		key := node.Key()
		if !seen[key] {
			seen[key] = true
			partitionsByASG[node.ASG] = append(partitionsByASG[node.ASG], key)
		}
		if node.Usable(e.config.IncludeMasterNodes) {
			usableByPartition[key] = append(usableByPartition[key], node)
		}
	}

	pendingShare := e.pendingShare(snap.Pending, len(usableByPartition))

	states := make([]ASGState, len(asgs))
	copy(states, asgs)
	sort.Slice(states, func(i, j int) bool { return states[i].Name < states[j].Name })

	results := make([]Result, 0, len(states))
	for _, state := range states {
		results = append(results, e.decideASG(state, partitionsByASG[state.Name], usableByPartition, snap, pendingShare))
	}
	return results
}

// pendingShare spreads the pending bucket evenly over all partitions with a
// usable node, rounding up per partition so the distributed total is never
// below the pending total.
func (e *Engine) pendingShare(pending resources.Vector, usablePartitions int) resources.Vector {
	if pending.IsZero() {
		return resources.Vector{}
	}
	if usablePartitions == 0 {
		klog.Warningf("Pending demand %s cannot be satisfied: no partition has a usable node", pending)
		return resources.Vector{}
	}
	n := int64(usablePartitions)
	return resources.Vector{
		CPU:    resources.CeilDiv(pending.CPU, n),
		Memory: resources.CeilDiv(pending.Memory, n),
		Pods:   resources.CeilDiv(pending.Pods, n),
	}
}

func (e *Engine) decideASG(
	state ASGState,
	keys []cluster.PartitionKey,
	usableByPartition map[cluster.PartitionKey][]*cluster.Node,
	snap *cluster.Snapshot,
	pendingShare resources.Vector,
) Result {
	asgWeakest, ok := weakestOfASG(keys, usableByPartition)
	if !ok {
		klog.Infof("ASG %s has no usable nodes, leaving desired capacity at %d", state.Name, state.Current)
		result := Result{Name: state.Name, Current: state.Current, Final: state.Current, Reason: constants.ReasonSkippedNoNodes}
		recordDecision(result)
		return result
	}

	sort.Slice(keys, func(i, j int) bool { return keys[i].Zone < keys[j].Zone })

	required := 0
	for _, key := range keys {
		usable := usableByPartition[key]

		weakest := asgWeakest
		if len(usable) > 0 {
			weakest = weakestNode(usable).Allocatable
		}

		usage := snap.Usage[key]
		demand := usage
		if len(usable) > 0 {
			demand = demand.Add(pendingShare)
		}
		buffered := demand.
			ScalePct(e.config.BufferCPUPct, e.config.BufferMemoryPct, e.config.BufferPodsPct).
			Add(e.config.BufferFixed)

		n, err := buffered.DivCeil(weakest)
		if err != nil {
			err = fmt.Errorf("partition %s: %w", key, err)
			klog.Errorf("Decision for ASG %s failed: %v", state.Name, err)
			result := Result{Name: state.Name, Current: state.Current, Final: state.Current, Reason: constants.ReasonError, Err: err}
			recordDecision(result)
			return result
		}
		count := int(n)
		if count < e.config.SpareNodes {
			count = e.config.SpareNodes
		}

		if klog.V(2).Enabled() {
			capacity := resources.Vector{}
			for i := 0; i < count; i++ {
				capacity = capacity.Add(weakest)
			}
			klog.Infof("%s: requested %s, with buffer %s, weakest node %s, overprovision %s, current nodes %d, required nodes %d",
				key, usage, buffered, weakest, capacity.Sub(buffered), len(usable), count)
		}

		required += count
	}

	final, clamped := e.damp(state, required)

	reason := constants.ReasonUnchanged
	switch {
	case final > state.Current:
		reason = constants.ReasonScaleUp
	case final < state.Current && clamped:
		reason = constants.ReasonScaleDownClamped
	case final < state.Current:
		reason = constants.ReasonScaleDown
	}

	result := Result{
		Name:     state.Name,
		Current:  state.Current,
		Required: required,
		Final:    final,
		Reason:   reason,
	}
	recordDecision(result)
	return result
}

// damp bounds a decrease to the configured step and clamps the target into
// the ASG's [min, max] band. Increases are never damped. The second return
// value reports whether damping or the min bound held the target above the
// required count.
func (e *Engine) damp(state ASGState, required int) (int, bool) {
	final := required

	if final < state.Current {
		step := e.config.ScaleDownStepFixed
		if pctStep := int(resources.CeilDiv(e.config.ScaleDownStepPct*int64(state.Current), 100)); pctStep > step {
			step = pctStep
		}
		if minAllowed := state.Current - step; final < minAllowed {
			final = minAllowed
		}
	}

	if final > state.Max {
		klog.Warningf("Desired capacity for ASG %s is %d, but exceeds max %d", state.Name, final, state.Max)
		final = state.Max
	}
	if final < state.Min {
		klog.Warningf("Desired capacity for ASG %s is %d, but is lower than min %d", state.Name, final, state.Min)
		final = state.Min
	}

	return final, final < state.Current && final > required
}

// weakestNode returns the node with the lexicographically smallest
// allocatable vector, ties broken by name for determinism.
func weakestNode(nodes []*cluster.Node) *cluster.Node {
	weakest := nodes[0]
	for _, node := range nodes[1:] {
		if node.Allocatable.Less(weakest.Allocatable) ||
			(node.Allocatable == weakest.Allocatable && node.Name < weakest.Name) {
			weakest = node
		}
	}
	return weakest
}

// weakestOfASG returns the weakest usable node model across all of an ASG's
// partitions, used as the fallback for partitions without usable nodes.
func weakestOfASG(keys []cluster.PartitionKey, usableByPartition map[cluster.PartitionKey][]*cluster.Node) (resources.Vector, bool) {
	var all []*cluster.Node
	for _, key := range keys {
		all = append(all, usableByPartition[key]...)
	}
	if len(all) == 0 {
		return resources.Vector{}, false
	}
	return weakestNode(all).Allocatable, true
}
