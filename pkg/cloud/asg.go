// Package cloud wraps the AWS Auto Scaling API behind the two capabilities
// the autoscaler needs: describing groups and setting desired capacity.
package cloud

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	"k8s.io/klog/v2"
)

// ASGInfo is the autoscaler's view of one Auto Scaling Group.
type ASGInfo struct {
	Name    string
	Min     int
	Max     int
	Desired int
	Zones   []string
}

// AutoScalingAPI is the subset of the AWS SDK client used here, extracted
// so tests can run against an in-memory fake.
type AutoScalingAPI interface {
	DescribeAutoScalingGroups(ctx context.Context, params *autoscaling.DescribeAutoScalingGroupsInput, optFns ...func(*autoscaling.Options)) (*autoscaling.DescribeAutoScalingGroupsOutput, error)
	SetDesiredCapacity(ctx context.Context, params *autoscaling.SetDesiredCapacityInput, optFns ...func(*autoscaling.Options)) (*autoscaling.SetDesiredCapacityOutput, error)
	DescribeScalingActivities(ctx context.Context, params *autoscaling.DescribeScalingActivitiesInput, optFns ...func(*autoscaling.Options)) (*autoscaling.DescribeScalingActivitiesOutput, error)
}

type Client struct {
	api AutoScalingAPI
}

// New builds a client from the default AWS credential chain. An empty
// region defers to the chain (env, shared config, instance metadata).
func New(ctx context.Context, region string) (*Client, error) {
	var optFns []func(*awsconfig.LoadOptions) error
	if region != "" {
		optFns = append(optFns, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return &Client{api: autoscaling.NewFromConfig(cfg)}, nil
}

// NewWithAPI wraps an existing API implementation; used by tests.
func NewWithAPI(api AutoScalingAPI) *Client {
	return &Client{api: api}
}

// DescribeASGs returns the named groups keyed by name. Names the provider
// does not know are simply absent from the result.
func (c *Client) DescribeASGs(ctx context.Context, names []string) (map[string]ASGInfo, error) {
	if len(names) == 0 {
		return map[string]ASGInfo{}, nil
	}

	asgs := make(map[string]ASGInfo)
	input := &autoscaling.DescribeAutoScalingGroupsInput{AutoScalingGroupNames: names}
	for {
		out, err := c.api.DescribeAutoScalingGroups(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("describing auto scaling groups: %w", err)
		}
		for _, group := range out.AutoScalingGroups {
			name := aws.ToString(group.AutoScalingGroupName)
			asgs[name] = ASGInfo{
				Name:    name,
				Min:     int(aws.ToInt32(group.MinSize)),
				Max:     int(aws.ToInt32(group.MaxSize)),
				Desired: int(aws.ToInt32(group.DesiredCapacity)),
				Zones:   group.AvailabilityZones,
			}
		}
		if out.NextToken == nil {
			break
		}
		input.NextToken = out.NextToken
	}
	return asgs, nil
}

// SetDesiredCapacity updates one group's desired capacity.
func (c *Client) SetDesiredCapacity(ctx context.Context, name string, capacity int) error {
	_, err := c.api.SetDesiredCapacity(ctx, &autoscaling.SetDesiredCapacityInput{
		AutoScalingGroupName: aws.String(name),
		DesiredCapacity:      aws.Int32(int32(capacity)),
	})
	if err != nil {
		return fmt.Errorf("setting desired capacity of %s to %d: %w", name, capacity, err)
	}
	klog.Infof("Set desired capacity of ASG %s to %d", name, capacity)
	return nil
}

// ScalingActivityInProgress reports whether the group has a recent activity
// still running, e.g. an instance being replaced or drained.
func (c *Client) ScalingActivityInProgress(ctx context.Context, name string) (bool, error) {
	out, err := c.api.DescribeScalingActivities(ctx, &autoscaling.DescribeScalingActivitiesInput{
		AutoScalingGroupName: aws.String(name),
		MaxRecords:           aws.Int32(20),
	})
	if err != nil {
		return false, fmt.Errorf("describing scaling activities of %s: %w", name, err)
	}
	for _, activity := range out.Activities {
		// Progress is a percentage; anything below 100 is still running.
		if aws.ToInt32(activity.Progress) < 100 {
			return true, nil
		}
	}
	return false, nil
}
