package scan

import (
	"context"
	"fmt"
	"time"

	"gradescan/api/internal/ocr"
)

type outcome struct {
	resp ocr.Response
	err  error
}

// race runs the call against a timer; whichever settles first wins. The
// losing call is not cancelled and its result is dropped.
func race(ctx context.Context, eng ocr.Engine, req ocr.Request, timeout time.Duration) (ocr.Response, error) {
	done := make(chan outcome, 1)
	go func() {
		resp, err := eng.Generate(ctx, req)
		done <- outcome{resp: resp, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case o := <-done:
		return o.resp, o.err
	case <-timer.C:
		return ocr.Response{}, ocr.NewError(ocr.KindTimeout, eng.GetModel(), fmt.Errorf("no response after %s", timeout))
	case <-ctx.Done():
		return ocr.Response{}, ocr.Classify(ctx.Err(), eng.GetModel())
	}
}
