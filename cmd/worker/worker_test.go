package main

import (
	"testing"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
)

func TestRetryCount(t *testing.T) {
	cases := []struct {
		name    string
		headers amqp.Table
		want    int
	}{
		{"no headers", nil, 0},
		{"no retry count", amqp.Table{}, 0},
		{"int", amqp.Table{"x-retry-count": 2}, 2},
		{"int32", amqp.Table{"x-retry-count": int32(3)}, 3},
		{"int64", amqp.Table{"x-retry-count": int64(5)}, 5},
		{"unexpected type", amqp.Table{"x-retry-count": "three"}, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, retryCount(tc.headers))
		})
	}
}

// A job that keeps failing is retried a bounded number of times: each
// republish carries retries+1, and once the count reaches the limit the job
// is dropped rather than republished.
func TestRetrySequenceIsBounded(t *testing.T) {
	headers := amqp.Table(nil)
	republishes := 0
	for i := 0; i < 10; i++ {
		retries := retryCount(headers)
		if retries >= maxRetries {
			break
		}
		republishes++
		headers = amqp.Table{"x-retry-count": int32(retries + 1)}
	}
	assert.Equal(t, maxRetries, republishes)
}
