package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/go-kit/kit/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/imagevault/imagevault/blob"
	blobs3 "github.com/imagevault/imagevault/blob/s3"
	ivhttp "github.com/imagevault/imagevault/http"
	"github.com/imagevault/imagevault/keys"
	"github.com/imagevault/imagevault/lock"
	"github.com/imagevault/imagevault/store"
	"github.com/imagevault/imagevault/store/inmem"
	"github.com/imagevault/imagevault/store/memcached"
	"github.com/imagevault/imagevault/transform/magick"
	"github.com/imagevault/imagevault/version"
)

func main() {
	// Flag domain.
	fs := pflag.NewFlagSet("default", pflag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "DESCRIPTION\n")
		fmt.Fprintf(os.Stderr, "  imagevaultd serves on-demand derived versions of stored images.\n")
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "FLAGS\n")
		fs.PrintDefaults()
	}
	var (
		listenAddr        = fs.StringP("listen", "l", ":3031", "Listen address for API clients")
		standalone        = fs.Bool("standalone", false, "Use an in-process store instead of memcached (single-node only)")
		memcachedHostname = fs.String("memcached-hostname", "memcached", "Hostname for memcached service to use when caching")
		memcachedService  = fs.String("memcached-service", "memcached", "SRV service name under which to lookup memcached servers")
		memcachedTimeout  = fs.Duration("memcached-timeout", time.Second, "Maximum time to wait before giving up on memcached requests")
		s3Bucket          = fs.String("s3-bucket", "", "S3 bucket holding original and generated images")
		s3Region          = fs.String("s3-region", "us-east-1", "AWS region of the S3 bucket")
		namespace         = fs.String("namespace", "iv", "Prefix for all cache and lock keys")
		environment       = fs.String("environment", "p", "Single-character environment tag used in keys")
		pollInterval      = fs.Duration("poll-interval", lock.DefaultPollInterval, "How often a waiter re-reads a held build lock")
		waitTimeout       = fs.Duration("wait-timeout", 0, "How long to wait on a held build lock; defaults to 10x the poll interval")
	)
	fs.Parse(os.Args)

	// Logger domain.
	var logger log.Logger
	{
		logger = log.NewLogfmtLogger(os.Stderr)
		logger = log.With(logger, "ts", log.DefaultTimestampUTC)
		logger = log.With(logger, "caller", log.DefaultCaller)
	}

	// Store component.
	var kv store.Client
	{
		logger := log.With(logger, "component", "store")
		if *standalone {
			logger.Log("backend", "inmem")
			kv = inmem.New()
		} else {
			logger.Log("backend", "memcached", "hostname", *memcachedHostname)
			kv = memcached.NewMemcacheClient(memcached.MemcacheConfig{
				Host:           *memcachedHostname,
				Service:        *memcachedService,
				Timeout:        *memcachedTimeout,
				UpdateInterval: time.Minute,
				Logger:         logger,
				MaxIdleConns:   10,
			})
		}
		kv = store.Instrument(kv)
	}

	// Blob store component.
	var blobs blob.Store
	{
		logger := log.With(logger, "component", "blob")
		if *s3Bucket == "" {
			logger.Log("err", "an --s3-bucket is required")
			os.Exit(1)
		}
		sess, err := session.NewSession(&aws.Config{Region: aws.String(*s3Region)})
		if err != nil {
			logger.Log("err", err)
			os.Exit(1)
		}
		logger.Log("bucket", *s3Bucket, "region", *s3Region)
		blobs = blobs3.New(sess, *s3Bucket)
	}

	// Coordination domain.
	coordinator := &version.Coordinator{
		Store: kv,
		Locks: lock.New(kv, lock.Config{
			PollInterval: *pollInterval,
			WaitTimeout:  *waitTimeout,
		}),
		Blobs:       blobs,
		Transformer: &magick.Transformer{},
		Keys: keys.Deriver{
			Namespace: *namespace,
			Env:       *environment,
		},
		Logger: log.With(logger, "component", "coordinator"),
	}
	service := version.Instrument(coordinator)

	// Mechanical stuff.
	errc := make(chan error)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()

	// Transport domain.
	go func() {
		logger := log.With(logger, "transport", "HTTP")
		logger.Log("addr", *listenAddr)
		router := ivhttp.NewRouter()
		router.Handle("/metrics", promhttp.Handler())
		handler := ivhttp.NewHandler(service, kv, router, logger)
		errc <- http.ListenAndServe(*listenAddr, handler)
	}()

	logger.Log("exiting", <-errc)
}
