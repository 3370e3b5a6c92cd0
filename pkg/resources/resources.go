// Package resources holds the integer arithmetic the autoscaler sizes with:
// CPU in milli-cores, memory in bytes, pod slots as a plain count.
package resources

import (
	"fmt"

	"k8s.io/apimachinery/pkg/api/resource"
)

// Vector is a resource triple. All components are non-negative.
type Vector struct {
	CPU    int64 // milli-cores
	Memory int64 // bytes
	Pods   int64
}

// ParseCPU parses a Kubernetes CPU quantity ("250m", "1.5", "2") into
// milli-cores. Fractional milli-cores round up so we never under-provision.
func ParseCPU(s string) (int64, error) {
	q, err := resource.ParseQuantity(s)
	if err != nil {
		return 0, fmt.Errorf("invalid cpu quantity %q: %w", s, err)
	}
	if q.Sign() < 0 {
		return 0, fmt.Errorf("negative cpu quantity %q", s)
	}
	return q.MilliValue(), nil
}

// ParseMemory parses a Kubernetes memory quantity ("200Mi", "1Gi", "512M")
// into bytes.
func ParseMemory(s string) (int64, error) {
	q, err := resource.ParseQuantity(s)
	if err != nil {
		return 0, fmt.Errorf("invalid memory quantity %q: %w", s, err)
	}
	if q.Sign() < 0 {
		return 0, fmt.Errorf("negative memory quantity %q", s)
	}
	return q.Value(), nil
}

// ParsePods parses a pod count.
func ParsePods(s string) (int64, error) {
	q, err := resource.ParseQuantity(s)
	if err != nil {
		return 0, fmt.Errorf("invalid pod quantity %q: %w", s, err)
	}
	if q.Sign() < 0 {
		return 0, fmt.Errorf("negative pod quantity %q", s)
	}
	return q.Value(), nil
}

// Add returns the component-wise sum.
func (v Vector) Add(o Vector) Vector {
	return Vector{CPU: v.CPU + o.CPU, Memory: v.Memory + o.Memory, Pods: v.Pods + o.Pods}
}

// Sub returns the component-wise difference, saturating at zero.
func (v Vector) Sub(o Vector) Vector {
	return Vector{
		CPU:    satSub(v.CPU, o.CPU),
		Memory: satSub(v.Memory, o.Memory),
		Pods:   satSub(v.Pods, o.Pods),
	}
}

func satSub(a, b int64) int64 {
	if b >= a {
		return 0
	}
	return a - b
}

// Max returns the component-wise maximum.
func Max(a, b Vector) Vector {
	return Vector{
		CPU:    maxInt64(a.CPU, b.CPU),
		Memory: maxInt64(a.Memory, b.Memory),
		Pods:   maxInt64(a.Pods, b.Pods),
	}
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// Covers reports whether v is at least o on every dimension.
func (v Vector) Covers(o Vector) bool {
	return v.CPU >= o.CPU && v.Memory >= o.Memory && v.Pods >= o.Pods
}

// IsZero reports whether all components are zero.
func (v Vector) IsZero() bool {
	return v.CPU == 0 && v.Memory == 0 && v.Pods == 0
}

// Less orders vectors lexicographically on (CPU, Memory, Pods). This is the
// order used to pick the weakest node of a partition.
func (v Vector) Less(o Vector) bool {
	if v.CPU != o.CPU {
		return v.CPU < o.CPU
	}
	if v.Memory != o.Memory {
		return v.Memory < o.Memory
	}
	return v.Pods < o.Pods
}

// ScalePct grows each component by its percentage, rounding up. The
// multiplication is exact integer arithmetic; the ceiling guarantees the
// scaled value never under-provisions.
func (v Vector) ScalePct(cpuPct, memoryPct, podsPct int64) Vector {
	return Vector{
		CPU:    scaleCeil(v.CPU, cpuPct),
		Memory: scaleCeil(v.Memory, memoryPct),
		Pods:   scaleCeil(v.Pods, podsPct),
	}
}

func scaleCeil(value, pct int64) int64 {
	return ceilDiv(value*(100+pct), 100)
}

// CeilDiv returns ceil(a/b) for non-negative a and positive b.
func CeilDiv(a, b int64) int64 {
	return ceilDiv(a, b)
}

func ceilDiv(a, b int64) int64 {
	return (a + b - 1) / b
}

// DivCeil returns how many units of o are needed to cover v on every
// dimension: the largest of the per-dimension ceilings.
// A zero divisor on a dimension with non-zero demand is an input error.
func (v Vector) DivCeil(o Vector) (int64, error) {
	var n int64
	for _, d := range []struct {
		name     string
		demand   int64
		capacity int64
	}{
		{"cpu", v.CPU, o.CPU},
		{"memory", v.Memory, o.Memory},
		{"pods", v.Pods, o.Pods},
	} {
		if d.capacity == 0 {
			if d.demand == 0 {
				continue
			}
			return 0, fmt.Errorf("weakest node has zero allocatable %s", d.name)
		}
		if c := ceilDiv(d.demand, d.capacity); c > n {
			n = c
		}
	}
	return n, nil
}

// String renders the vector the way the iteration log tables do: CPU in
// cores with one decimal, memory in Mi, pods as a plain count.
func (v Vector) String() string {
	return fmt.Sprintf("%s/%s/%s", FormatCPU(v.CPU), FormatMemory(v.Memory), FormatPods(v.Pods))
}

// FormatCPU renders milli-cores as cores with one decimal place.
func FormatCPU(milli int64) string {
	return fmt.Sprintf("%.1f", float64(milli)/1000)
}

// FormatMemory renders bytes as whole Mi.
func FormatMemory(bytes int64) string {
	return fmt.Sprintf("%dMi", bytes/(1024*1024))
}

// FormatPods renders a pod count.
func FormatPods(pods int64) string {
	return fmt.Sprintf("%d", pods)
}
