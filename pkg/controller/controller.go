// Package controller drives the autoscaler: every interval it snapshots the
// cluster, runs the pure decision function, and applies the per-ASG targets
// to the cloud provider.
package controller

import (
	"context"
	"fmt"
	"time"

	"k8s.io/client-go/kubernetes"
	"k8s.io/klog/v2"

	"kube-aws-autoscaler/pkg/cloud"
	"kube-aws-autoscaler/pkg/cluster"
	"kube-aws-autoscaler/pkg/config"
	"kube-aws-autoscaler/pkg/decision"
)

// CloudProvider is the cloud-side capability set the controller needs,
// satisfied by *cloud.Client and by in-memory fakes in tests.
type CloudProvider interface {
	DescribeASGs(ctx context.Context, names []string) (map[string]cloud.ASGInfo, error)
	SetDesiredCapacity(ctx context.Context, name string, capacity int) error
	ScalingActivityInProgress(ctx context.Context, name string) (bool, error)
}

type Controller struct {
	collector *cluster.Collector
	cloud     CloudProvider
	engine    *decision.Engine
	cfg       config.Config
}

func NewController(kubeClient kubernetes.Interface, cloudProvider CloudProvider, engine *decision.Engine, cfg config.Config) *Controller {
	return &Controller{
		collector: cluster.NewCollector(kubeClient, cfg.IncludeMasterNodes),
		cloud:     cloudProvider,
		engine:    engine,
		cfg:       cfg,
	}
}

// Run iterates until the stop channel closes. In --once mode it performs a
// single iteration and returns its error, if any.
func (c *Controller) Run(stopCh <-chan struct{}) error {
	klog.Infof("Starting autoscaler loop (interval: %s, dry-run: %v)", c.cfg.Interval(), c.cfg.DryRun)

	for {
		if err := c.RunOnce(context.Background()); err != nil {
			if c.cfg.Once {
				return err
			}
			klog.Errorf("Iteration failed, retrying next interval: %v", err)
			iterationsTotal.WithLabelValues("error").Inc()
		} else {
			iterationsTotal.WithLabelValues("ok").Inc()
		}

		if c.cfg.Once {
			return nil
		}

		select {
		case <-stopCh:
			klog.Info("Shutting down autoscaler loop")
			return nil
		case <-time.After(c.cfg.Interval()):
		}
	}
}

// RunOnce performs one full iteration: snapshot, decide, effect. A failed
// snapshot aborts the iteration before any effector call.
func (c *Controller) RunOnce(ctx context.Context) error {
	start := time.Now()
	defer func() {
		iterationDuration.Observe(time.Since(start).Seconds())
	}()

	snap, err := c.snapshot(ctx)
	if err != nil {
		return fmt.Errorf("cluster snapshot: %w", err)
	}

	names := snap.ASGNames()
	asgs, err := c.describeASGs(ctx, names)
	if err != nil {
		return fmt.Errorf("cloud snapshot: %w", err)
	}

	states := make([]decision.ASGState, 0, len(names))
	for _, name := range names {
		info, ok := asgs[name]
		if !ok {
			klog.Warningf("ASG %s is referenced by nodes but unknown to the cloud provider, skipping", name)
			continue
		}
		states = append(states, decision.ASGState{
			Name:    info.Name,
			Min:     info.Min,
			Max:     info.Max,
			Current: info.Desired,
		})
	}

	results := c.engine.Decide(snap, states)
	readyNodes := snap.ReadyNodesByASG()
	for _, result := range results {
		c.apply(ctx, result, readyNodes[result.Name])
	}
	return nil
}

// fetchTimeout bounds each snapshot fetch and effector call so a hung
// provider cannot eat into the next interval.
func (c *Controller) fetchTimeout() time.Duration {
	return c.cfg.Interval() / 3
}

func (c *Controller) snapshot(ctx context.Context) (*cluster.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, c.fetchTimeout())
	defer cancel()
	return c.collector.Snapshot(ctx)
}

func (c *Controller) describeASGs(ctx context.Context, names []string) (map[string]cloud.ASGInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, c.fetchTimeout())
	defer cancel()
	return c.cloud.DescribeASGs(ctx, names)
}

// apply issues the desired capacity update for one result. Failures are
// logged and do not affect the remaining ASGs.
func (c *Controller) apply(ctx context.Context, result decision.Result, readyNodes int) {
	klog.Infof("asg=%s current=%d required=%d final=%d reason=%s",
		result.Name, result.Current, result.Required, result.Final, result.Reason)

	if result.Final == result.Current {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, c.fetchTimeout())
	defer cancel()

	if result.Final < result.Current {
		// Nodes still booting or recovering would be double-removed by a
		// decrease issued now.
		if readyNodes < result.Current {
			klog.Infof("Some nodes are not ready in ASG %s, not scaling down from %d to %d",
				result.Name, result.Current, result.Final)
			return
		}

		busy, err := c.cloud.ScalingActivityInProgress(ctx, result.Name)
		if err != nil {
			klog.Errorf("Could not check scaling activities of ASG %s, holding scale-down: %v", result.Name, err)
			effectorErrorsTotal.WithLabelValues(result.Name).Inc()
			return
		}
		if busy {
			klog.Infof("Scaling activity in progress for ASG %s, not scaling down from %d to %d",
				result.Name, result.Current, result.Final)
			return
		}
	}

	if c.cfg.DryRun {
		klog.Infof("**DRY-RUN**: would set desired capacity of ASG %s from %d to %d",
			result.Name, result.Current, result.Final)
		return
	}

	if err := c.cloud.SetDesiredCapacity(ctx, result.Name, result.Final); err != nil {
		klog.Errorf("Failed to set desired capacity of ASG %s to %d: %v", result.Name, result.Final, err)
		effectorErrorsTotal.WithLabelValues(result.Name).Inc()
	}
}
