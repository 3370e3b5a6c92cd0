package main

import (
	"context"
	"flag"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/klog/v2"

	"kube-aws-autoscaler/pkg/cloud"
	"kube-aws-autoscaler/pkg/config"
	"kube-aws-autoscaler/pkg/controller"
	"kube-aws-autoscaler/pkg/decision"
	"kube-aws-autoscaler/pkg/metricsserver"
	"kube-aws-autoscaler/pkg/signals"
)

func main() {
	klog.InitFlags(nil)

	cfg, err := config.Load()
	if err != nil {
		klog.Fatalf("Error loading config: %s", err.Error())
	}

	flag.StringVar(&cfg.Kubeconfig, "kubeconfig", cfg.Kubeconfig, "Path to kubeconfig (in-cluster config when empty)")
	flag.StringVar(&cfg.Master, "master", cfg.Master, "Kubernetes API server URL")
	flag.StringVar(&cfg.AWSRegion, "aws-region", cfg.AWSRegion, "AWS region (default credential chain when empty)")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Listen address for /metrics and /healthz")
	flag.IntVar(&cfg.IntervalSeconds, "interval", cfg.IntervalSeconds, "Loop interval in seconds")
	flag.BoolVar(&cfg.Once, "once", cfg.Once, "Run a single iteration and exit")
	flag.BoolVar(&cfg.DryRun, "dry-run", cfg.DryRun, "Do not change anything, just log what would be done")
	flag.Int64Var(&cfg.BufferCPUPercentage, "buffer-cpu-percentage", cfg.BufferCPUPercentage, "CPU buffer percentage")
	flag.Int64Var(&cfg.BufferMemoryPercentage, "buffer-memory-percentage", cfg.BufferMemoryPercentage, "Memory buffer percentage")
	flag.Int64Var(&cfg.BufferPodsPercentage, "buffer-pods-percentage", cfg.BufferPodsPercentage, "Pods buffer percentage")
	flag.StringVar(&cfg.BufferCPUFixed, "buffer-cpu-fixed", cfg.BufferCPUFixed, "CPU buffer (fixed amount)")
	flag.StringVar(&cfg.BufferMemoryFixed, "buffer-memory-fixed", cfg.BufferMemoryFixed, "Memory buffer (fixed amount)")
	flag.StringVar(&cfg.BufferPodsFixed, "buffer-pods-fixed", cfg.BufferPodsFixed, "Pods buffer (fixed amount)")
	flag.IntVar(&cfg.BufferSpareNodes, "buffer-spare-nodes", cfg.BufferSpareNodes, "Minimum spare nodes per ASG/AZ partition")
	flag.BoolVar(&cfg.IncludeMasterNodes, "include-master-nodes", cfg.IncludeMasterNodes, "Count master nodes as capacity")
	flag.IntVar(&cfg.ScaleDownStepFixed, "scale-down-step-fixed", cfg.ScaleDownStepFixed, "Maximum node decrease per ASG per iteration")
	flag.Int64Var(&cfg.ScaleDownStepPercentage, "scale-down-step-percentage", cfg.ScaleDownStepPercentage, "Maximum decrease as percentage of current desired capacity")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		klog.Fatalf("Invalid configuration: %s", err.Error())
	}
	decisionCfg, err := cfg.DecisionConfig()
	if err != nil {
		klog.Fatalf("Invalid configuration: %s", err.Error())
	}

	// Setup signal handler
	stopCh := signals.SetupSignalHandler()

	// Build clients
	restCfg, err := clientcmd.BuildConfigFromFlags(cfg.Master, cfg.Kubeconfig)
	if err != nil {
		klog.Fatalf("Error building kubeconfig: %s", err.Error())
	}

	kubeClient, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		klog.Fatalf("Error building kubernetes clientset: %s", err.Error())
	}

	cloudClient, err := cloud.New(context.Background(), cfg.AWSRegion)
	if err != nil {
		klog.Fatalf("Error building AWS client: %s", err.Error())
	}

	go metricsserver.Serve(cfg.MetricsAddr, stopCh)

	if cfg.DryRun {
		klog.Info("**DRY-RUN**: no autoscaling will be performed!")
	}

	ctrl := controller.NewController(kubeClient, cloudClient, decision.NewEngine(decisionCfg), cfg)
	if err := ctrl.Run(stopCh); err != nil {
		klog.Fatalf("Error running autoscaler: %s", err.Error())
	}
}
