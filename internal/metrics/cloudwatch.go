package metrics

import (
	"context"
	"sync"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/rs/zerolog"

	"github.com/imrishuroy/go-sqs-order-worker/internal/aws"
)

const (
	putTimeout = 3 * time.Second

	// data points waiting for the publisher; Record drops beyond this
	bufferSize = 256

	// per PutMetricData call
	maxBatch = 20
)

// CloudWatch publishes one data point per outcome under namespace. Record only queues the
// point; a background goroutine sends batches, so a slow or unreachable CloudWatch never
// holds up the caller.
type CloudWatch struct {
	api       aws.CloudWatchAPI
	namespace string
	queue     string
	log       zerolog.Logger
	now       func() time.Time

	mu     sync.RWMutex
	closed bool
	points chan cwtypes.MetricDatum
	done   chan struct{}
}

// NewCloudWatch returns a recorder tagging every point with a Queue dimension and starts its
// publisher. Call Close to flush.
func NewCloudWatch(api aws.CloudWatchAPI, namespace, queue string, log zerolog.Logger) *CloudWatch {
	c := &CloudWatch{
		api:       api,
		namespace: namespace,
		queue:     queue,
		log:       log.With().Str("component", "metrics").Logger(),
		now:       time.Now,
		points:    make(chan cwtypes.MetricDatum, bufferSize),
		done:      make(chan struct{}),
	}
	go c.publish()
	return c
}

func (c *CloudWatch) Record(_ context.Context, o Outcome) {
	d := cwtypes.MetricDatum{
		MetricName: sdkaws.String("Messages"),
		Dimensions: []cwtypes.Dimension{
			{Name: sdkaws.String("Queue"), Value: sdkaws.String(c.queue)},
			{Name: sdkaws.String("Outcome"), Value: sdkaws.String(string(o))},
		},
		Timestamp: sdkaws.Time(c.now()),
		Unit:      cwtypes.StandardUnitCount,
		Value:     sdkaws.Float64(1),
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}

	select {
	case c.points <- d:
	default:
		c.log.Warn().Str("outcome", string(o)).Msg("metric buffer full, dropping data point")
	}
}

// Close stops accepting points and waits until the queued ones are sent or ctx expires.
func (c *CloudWatch) Close(ctx context.Context) error {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.points)
	}
	c.mu.Unlock()

	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *CloudWatch) publish() {
	defer close(c.done)

	for d := range c.points {
		batch := append(make([]cwtypes.MetricDatum, 0, maxBatch), d)
	drain:
		for len(batch) < maxBatch {
			select {
			case next, ok := <-c.points:
				if !ok {
					break drain
				}
				batch = append(batch, next)
			default:
				break drain
			}
		}
		c.put(batch)
	}
}

func (c *CloudWatch) put(batch []cwtypes.MetricDatum) {
	ctx, cancel := context.WithTimeout(context.Background(), putTimeout)
	defer cancel()

	_, err := c.api.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  sdkaws.String(c.namespace),
		MetricData: batch,
	})
	if err != nil {
		c.log.Warn().Err(err).Int("points", len(batch)).Msg("put metric data failed")
	}
}
