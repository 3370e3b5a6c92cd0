package cluster

import (
	"context"
	"testing"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"

	"kube-aws-autoscaler/pkg/constants"
	"kube-aws-autoscaler/pkg/resources"
)

type nodeOpts struct {
	asg           string
	zone          string
	ready         bool
	unschedulable bool
	master        bool
}

func testNode(name string, cpu, mem, pods string, opts nodeOpts) *corev1.Node {
	labels := map[string]string{}
	if opts.asg != "" {
		labels[constants.NodeLabelASG] = opts.asg
	}
	if opts.zone != "" {
		labels[constants.NodeLabelZone] = opts.zone
	}
	if opts.master {
		labels[constants.NodeLabelRoleMaster] = ""
	}
	status := corev1.ConditionFalse
	if opts.ready {
		status = corev1.ConditionTrue
	}
	return &corev1.Node{
		ObjectMeta: metav1.ObjectMeta{Name: name, Labels: labels},
		Spec:       corev1.NodeSpec{Unschedulable: opts.unschedulable},
		Status: corev1.NodeStatus{
			Allocatable: corev1.ResourceList{
				corev1.ResourceCPU:    resource.MustParse(cpu),
				corev1.ResourceMemory: resource.MustParse(mem),
				corev1.ResourcePods:   resource.MustParse(pods),
			},
			Conditions: []corev1.NodeCondition{
				{Type: corev1.NodeReady, Status: status},
			},
		},
	}
}

func testPod(namespace, name, nodeName string, phase corev1.PodPhase, cpu, mem string) *corev1.Pod {
	requests := corev1.ResourceList{}
	if cpu != "" {
		requests[corev1.ResourceCPU] = resource.MustParse(cpu)
	}
	if mem != "" {
		requests[corev1.ResourceMemory] = resource.MustParse(mem)
	}
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
		Spec: corev1.PodSpec{
			NodeName: nodeName,
			Containers: []corev1.Container{
				{Name: "main", Resources: corev1.ResourceRequirements{Requests: requests}},
			},
		},
		Status: corev1.PodStatus{Phase: phase},
	}
}

func TestNewNodeClassification(t *testing.T) {
	obj := testNode("n1", "4", "8Gi", "110", nodeOpts{asg: "workers", zone: "eu-central-1a", ready: true})
	node, ok := NewNode(obj)
	if !ok {
		t.Fatal("expected node to be managed")
	}
	want := resources.Vector{CPU: 4000, Memory: 8 << 30, Pods: 110}
	if node.Allocatable != want {
		t.Errorf("Allocatable = %+v, want %+v", node.Allocatable, want)
	}
	if node.Key() != (PartitionKey{ASG: "workers", Zone: "eu-central-1a"}) {
		t.Errorf("Key = %v", node.Key())
	}
	if !node.Usable(false) {
		t.Error("node should be usable")
	}

	// No ASG label: not managed.
	if _, ok := NewNode(testNode("n2", "4", "8Gi", "110", nodeOpts{zone: "eu-central-1a", ready: true})); ok {
		t.Error("node without ASG label must be ignored")
	}
}

func TestNewNodeLegacyZoneLabel(t *testing.T) {
	obj := testNode("n1", "4", "8Gi", "110", nodeOpts{asg: "workers", ready: true})
	obj.Labels[constants.NodeLabelZoneLegacy] = "eu-west-1b"
	node, _ := NewNode(obj)
	if node.Zone != "eu-west-1b" {
		t.Errorf("Zone = %q, want legacy fallback", node.Zone)
	}
}

func TestNodeUsable(t *testing.T) {
	cases := []struct {
		name           string
		opts           nodeOpts
		includeMasters bool
		want           bool
	}{
		{"ready", nodeOpts{asg: "a", ready: true}, false, true},
		{"not ready", nodeOpts{asg: "a"}, false, false},
		{"cordoned", nodeOpts{asg: "a", ready: true, unschedulable: true}, false, false},
		{"master excluded", nodeOpts{asg: "a", ready: true, master: true}, false, false},
		{"master included", nodeOpts{asg: "a", ready: true, master: true}, true, true},
	}
	for _, c := range cases {
		node, _ := NewNode(testNode("n", "1", "1Gi", "10", c.opts))
		if got := node.Usable(c.includeMasters); got != c.want {
			t.Errorf("%s: Usable = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestSnapshotUsageAndPending(t *testing.T) {
	objects := []runtime.Object{
		testNode("good", "4", "8Gi", "110", nodeOpts{asg: "workers", zone: "a", ready: true}),
		testNode("cordoned", "4", "8Gi", "110", nodeOpts{asg: "workers", zone: "b", ready: true, unschedulable: true}),
		testNode("master", "2", "4Gi", "110", nodeOpts{asg: "masters", zone: "a", ready: true, master: true}),
		testNode("unlabeled", "4", "8Gi", "110", nodeOpts{zone: "a", ready: true}),

		testPod("default", "on-good", "good", corev1.PodRunning, "500m", "1Gi"),
		testPod("default", "on-cordoned", "cordoned", corev1.PodRunning, "250m", "512Mi"),
		testPod("default", "on-master", "master", corev1.PodRunning, "100m", "128Mi"),
		testPod("default", "unassigned", "", corev1.PodPending, "100m", "256Mi"),
		testPod("default", "ghost", "gone", corev1.PodRunning, "50m", "64Mi"),
		testPod("default", "done", "good", corev1.PodSucceeded, "4", "8Gi"),
		testPod("default", "crashed", "good", corev1.PodFailed, "4", "8Gi"),
	}

	collector := NewCollector(fake.NewSimpleClientset(objects...), false)
	snap, err := collector.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	if len(snap.Nodes) != 3 {
		t.Fatalf("got %d managed nodes, want 3", len(snap.Nodes))
	}

	usage := snap.Usage[PartitionKey{ASG: "workers", Zone: "a"}]
	want := resources.Vector{CPU: 500, Memory: 1 << 30, Pods: 1}
	if usage != want {
		t.Errorf("usage = %+v, want %+v", usage, want)
	}

	// Pod on the cordoned node + unassigned pod + pod on unknown node.
	wantPending := resources.Vector{
		CPU:    250 + 100 + 50,
		Memory: 512<<20 + 256<<20 + 64<<20,
		Pods:   3,
	}
	if snap.Pending != wantPending {
		t.Errorf("pending = %+v, want %+v", snap.Pending, wantPending)
	}

	// The master pod contributes to neither bucket.
	if _, ok := snap.Usage[PartitionKey{ASG: "masters", Zone: "a"}]; ok {
		t.Error("master partition must not accumulate usage when masters are excluded")
	}

	names := snap.ASGNames()
	if len(names) != 2 || names[0] != "masters" || names[1] != "workers" {
		t.Errorf("ASGNames = %v", names)
	}
}

func TestSnapshotMastersIncluded(t *testing.T) {
	objects := []runtime.Object{
		testNode("master", "2", "4Gi", "110", nodeOpts{asg: "masters", zone: "a", ready: true, master: true}),
		testPod("kube-system", "apiserver", "master", corev1.PodRunning, "100m", "128Mi"),
	}

	collector := NewCollector(fake.NewSimpleClientset(objects...), true)
	snap, err := collector.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	usage := snap.Usage[PartitionKey{ASG: "masters", Zone: "a"}]
	if usage != (resources.Vector{CPU: 100, Memory: 128 << 20, Pods: 1}) {
		t.Errorf("usage = %+v", usage)
	}
}

func TestPodRequestsDefaults(t *testing.T) {
	pod := testPod("default", "bare", "", corev1.PodPending, "", "")
	got := podRequests(pod)
	want := resources.Vector{CPU: 10, Memory: 50 << 20, Pods: 1}
	if got != want {
		t.Errorf("podRequests = %+v, want %+v", got, want)
	}

	// Multi-container pods sum their containers.
	pod.Spec.Containers = append(pod.Spec.Containers, corev1.Container{
		Name: "sidecar",
		Resources: corev1.ResourceRequirements{
			Requests: corev1.ResourceList{
				corev1.ResourceCPU:    resource.MustParse("90m"),
				corev1.ResourceMemory: resource.MustParse("206Mi"),
			},
		},
	})
	got = podRequests(pod)
	want = resources.Vector{CPU: 100, Memory: 256 << 20, Pods: 1}
	if got != want {
		t.Errorf("podRequests = %+v, want %+v", got, want)
	}
}
