package version

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	"github.com/imagevault/imagevault/image"
	ivmetrics "github.com/imagevault/imagevault/metrics"
)

var (
	serviceDuration = prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
		Namespace: "imagevault",
		Subsystem: "version",
		Name:      "request_duration_seconds",
		Help:      "Duration of version service calls, in seconds.",
		Buckets:   stdprometheus.DefBuckets,
	}, []string{ivmetrics.LabelMethod, ivmetrics.LabelAction, ivmetrics.LabelSuccess})
)

type instrumentedService struct {
	next Service
}

// Instrument wraps a Service so each call is timed and labelled by
// method, requested action, and success.
func Instrument(s Service) Service {
	return &instrumentedService{
		next: s,
	}
}

func (i *instrumentedService) GenerateVersion(ctx context.Context, a image.Artifact) (_ image.Metadata, err error) {
	defer func(begin time.Time) {
		serviceDuration.With(
			ivmetrics.LabelMethod, "GenerateVersion",
			ivmetrics.LabelAction, actionLabel(a),
			ivmetrics.LabelSuccess, fmt.Sprint(err == nil),
		).Observe(time.Since(begin).Seconds())
	}(time.Now())
	return i.next.GenerateVersion(ctx, a)
}

func (i *instrumentedService) FindOriginal(ctx context.Context, a image.Artifact) (_ image.OriginalParams, err error) {
	defer func(begin time.Time) {
		serviceDuration.With(
			ivmetrics.LabelMethod, "FindOriginal",
			ivmetrics.LabelAction, actionLabel(a),
			ivmetrics.LabelSuccess, fmt.Sprint(err == nil),
		).Observe(time.Since(begin).Seconds())
	}(time.Now())
	return i.next.FindOriginal(ctx, a)
}

func actionLabel(a image.Artifact) string {
	if a.Options.Action == "" {
		return "none"
	}
	return a.Options.Action
}
