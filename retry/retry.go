// Copyright 2021, Square, Inc.

package retry

import (
	"context"
	"time"
)

type TryFunc func() error
type LogFunc func(error)

// Do calls tryFunc until it succeeds or it has been called tries times,
// sleeping between calls and logging each error except the last. It stops
// early if ctx is done and returns the last error from tryFunc.
// https://upgear.io/blog/simple-golang-retry-function/
func Do(ctx context.Context, tries int, sleep time.Duration, tryFunc TryFunc, logFunc LogFunc) error {
	err := tryFunc()
	if err == nil {
		return nil
	}
	if tries--; tries > 0 {
		if logFunc != nil {
			logFunc(err)
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(sleep):
		}
		return Do(ctx, tries, sleep, tryFunc, logFunc)
	}
	return err
}
