// Package retry выполняет операции с экспоненциальной задержкой между попытками.
package retry

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/rajivgeraev/flippy-swipe/internal/apperr"
)

// Policy описывает параметры повторов
type Policy struct {
	MaxRetries    uint
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64

	// OnRetry вызывается перед каждой паузой, attempt начинается с 1
	OnRetry func(attempt uint, delay time.Duration, err error)
}

// DefaultPolicy возвращает политику по умолчанию
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:    3,
		InitialDelay:  200 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2,
	}
}

// Delay возвращает паузу перед повтором n (n >= 1)
func (p Policy) Delay(n uint) time.Duration {
	if n == 0 {
		return 0
	}
	d := float64(p.InitialDelay) * math.Pow(p.factor(), float64(n-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	if d > math.MaxInt64 {
		return math.MaxInt64
	}
	return time.Duration(d)
}

func (p Policy) factor() float64 {
	if p.BackoffFactor < 1 {
		return 1
	}
	return p.BackoffFactor
}

func (p Policy) newBackOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.RandomizationFactor = 0
	exp.MaxElapsedTime = 0
	exp.Multiplier = p.factor()
	exp.MaxInterval = p.MaxDelay
	if exp.MaxInterval <= 0 {
		exp.MaxInterval = time.Duration(math.MaxInt64)
	}
	exp.InitialInterval = min(p.InitialDelay, exp.MaxInterval)
	exp.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(p.MaxRetries)), ctx)
}

// Execute выполняет op с повторами согласно политике
func (p Policy) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	_, err := Do(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Do выполняет op и возвращает её результат. Временные ошибки повторяются
// не более MaxRetries раз, остальные возвращаются сразу после первой попытки.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var (
		attempts uint
		lastErr  error
	)

	operation := func() (T, error) {
		attempts++
		res, err := op(ctx)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !apperr.IsRetryable(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}

	notify := func(err error, delay time.Duration) {
		if p.OnRetry != nil {
			p.OnRetry(attempts, delay, err)
		}
	}

	res, err := backoff.RetryNotifyWithTimerAndData(operation, p.newBackOff(ctx), notify, timerImpl())
	if err == nil {
		return res, nil
	}

	if !apperr.IsRetryable(err) {
		return res, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, ctxErr
	}

	return res, &apperr.Error{
		Kind: apperr.Transient,
		Msg:  fmt.Sprintf("Operation failed after %d retries", p.MaxRetries),
		Err:  lastErr,
	}
}

// timerImpl подменяется в тестах, nil означает обычный таймер backoff
var timerImpl = func() backoff.Timer { return nil }
