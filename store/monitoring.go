package store

import (
	"fmt"
	"time"

	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	ivmetrics "github.com/imagevault/imagevault/metrics"
)

var (
	storeRequestDuration = prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
		Namespace: "imagevault",
		Subsystem: "store",
		Name:      "request_duration_seconds",
		Help:      "Duration of key-value store requests, in seconds.",
		Buckets:   stdprometheus.DefBuckets,
	}, []string{ivmetrics.LabelMethod, ivmetrics.LabelSuccess})
)

type instrumentedClient struct {
	next Client
}

// Instrument wraps a store client so each operation is timed and
// labelled by success.
func Instrument(c Client) Client {
	return &instrumentedClient{
		next: c,
	}
}

func (i *instrumentedClient) Get(key string) (_ []byte, err error) {
	defer func(begin time.Time) {
		storeRequestDuration.With(
			ivmetrics.LabelMethod, "Get",
			ivmetrics.LabelSuccess, fmt.Sprint(err == nil || err == ErrNotFound),
		).Observe(time.Since(begin).Seconds())
	}(time.Now())
	return i.next.Get(key)
}

func (i *instrumentedClient) Set(key string, value []byte) (err error) {
	defer func(begin time.Time) {
		storeRequestDuration.With(
			ivmetrics.LabelMethod, "Set",
			ivmetrics.LabelSuccess, fmt.Sprint(err == nil),
		).Observe(time.Since(begin).Seconds())
	}(time.Now())
	return i.next.Set(key, value)
}

func (i *instrumentedClient) SetNX(key string, value []byte) (_ bool, err error) {
	defer func(begin time.Time) {
		storeRequestDuration.With(
			ivmetrics.LabelMethod, "SetNX",
			ivmetrics.LabelSuccess, fmt.Sprint(err == nil),
		).Observe(time.Since(begin).Seconds())
	}(time.Now())
	return i.next.SetNX(key, value)
}

func (i *instrumentedClient) Delete(keys ...string) (err error) {
	defer func(begin time.Time) {
		storeRequestDuration.With(
			ivmetrics.LabelMethod, "Delete",
			ivmetrics.LabelSuccess, fmt.Sprint(err == nil),
		).Observe(time.Since(begin).Seconds())
	}(time.Now())
	return i.next.Delete(keys...)
}

func (i *instrumentedClient) Ping() (err error) {
	defer func(begin time.Time) {
		storeRequestDuration.With(
			ivmetrics.LabelMethod, "Ping",
			ivmetrics.LabelSuccess, fmt.Sprint(err == nil),
		).Observe(time.Since(begin).Seconds())
	}(time.Now())
	return i.next.Ping()
}
