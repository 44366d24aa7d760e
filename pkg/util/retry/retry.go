// Copyright (C) 2019-2020 Zilliz. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software distributed under the License
// is distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express
// or implied. See the License for the specific language governing permissions and limitations under the License.

package retry

import (
	"context"
	"runtime"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/lk2023060901/garden-objstream/pkg/log"
	"github.com/lk2023060901/garden-objstream/pkg/util/merr"
)

type config struct {
	attempts     uint
	sleep        time.Duration
	maxSleepTime time.Duration
	isRetryErr   func(err error) bool
}

func newDefaultConfig() *config {
	return &config{
		attempts:     uint(3),
		sleep:        20 * time.Millisecond,
		maxSleepTime: 1 * time.Second,
		isRetryErr:   merr.IsRetryableErr,
	}
}

// Option 用于调整重试行为。
type Option func(*config)

// Attempts 设置最大尝试次数，0 表示一直重试直到 ctx 结束。
func Attempts(attempts uint) Option {
	return func(c *config) {
		c.attempts = attempts
	}
}

// Sleep 设置首次重试前的等待时间，之后按指数增长。
func Sleep(sleep time.Duration) Option {
	return func(c *config) {
		c.sleep = sleep
		if c.maxSleepTime < sleep {
			c.maxSleepTime = 2 * sleep
		}
	}
}

func MaxSleepTime(maxSleepTime time.Duration) Option {
	return func(c *config) {
		c.maxSleepTime = maxSleepTime
	}
}

// RetryErr 指定哪些错误值得重试，默认只重试 merr 中标记为 retriable 的错误。
func RetryErr(isRetryErr func(err error) bool) Option {
	return func(c *config) {
		c.isRetryErr = isRetryErr
	}
}

func getCaller(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "unknown"
	}
	return file + ":" + strconv.Itoa(line)
}

// Do 使用指数退避重试 fn，直到成功、遇到不可重试的错误、达到次数上限或 ctx 结束。
// 返回值为最后一次失败的错误。
func Do(ctx context.Context, fn func() error, opts ...Option) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	logger := log.Ctx(ctx)
	c := newDefaultConfig()
	for _, opt := range opts {
		opt(c)
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.sleep
	exp.MaxInterval = c.maxSleepTime
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxElapsedTime = 0

	var policy backoff.BackOff = exp
	if c.attempts > 0 {
		policy = backoff.WithMaxRetries(exp, uint64(c.attempts-1))
	}
	policy = backoff.WithContext(policy, ctx)

	var (
		lastErr error
		retried uint
	)
	caller := getCaller(2)
	err := backoff.RetryNotify(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if merr.IsCanceledOrTimeout(err) || (c.isRetryErr != nil && !c.isRetryErr(err)) {
			logger.Warn("retry func failed, not be recoverable",
				zap.Uint("retried", retried),
				zap.String("caller", caller),
				zap.Error(err))
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, next time.Duration) {
		if retried%4 == 0 {
			logger.Warn("retry func failed",
				zap.Uint("retried", retried),
				zap.Duration("next", next),
				zap.String("caller", caller),
				zap.Error(err))
		}
		retried++
	})
	if err == nil {
		return nil
	}
	if errors.IsAny(err, context.Canceled, context.DeadlineExceeded) && lastErr != nil {
		return lastErr
	}
	return err
}
