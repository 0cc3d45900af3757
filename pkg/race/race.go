// Package race runs two LLM arms concurrently and resolves the first valid
// answer as the winner, cancelling the other arm. Validity is decided by a
// caller-supplied check so both arms are held to the same bar.
package race

import (
	"context"
	"fmt"

	"github.com/chatcoach/coachd/pkg/coacherr"
)

const component = "race"

// Arm is one competitor: a label for trace records and the work itself. Run
// must honor ctx cancellation promptly.
type Arm struct {
	Label string
	Run   func(ctx context.Context) (string, error)
}

// Result is the race outcome.
type Result struct {
	Winner string
	Output string
}

type armResult struct {
	label  string
	output string
	err    error
}

// Race starts both arms and returns the first output that passes valid.
// The losing arm is cancelled as soon as a winner is known. If both arms
// finish without a valid output, the failure carries the reason from the
// arm that finished last.
func Race(ctx context.Context, a, b Arm, valid func(string) error) (*Result, error) {
	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan armResult, 2)
	for _, arm := range []Arm{a, b} {
		go func(arm Arm) {
			output, err := arm.Run(raceCtx)
			if err == nil {
				err = valid(output)
			}
			results <- armResult{label: arm.Label, output: output, err: err}
		}(arm)
	}

	var lastErr error
	var lastLabel string
	for i := 0; i < 2; i++ {
		select {
		case res := <-results:
			if res.err == nil {
				cancel()
				return &Result{Winner: res.label, Output: res.output}, nil
			}
			lastErr = res.err
			lastLabel = res.label
		case <-ctx.Done():
			return nil, coacherr.Wrap(coacherr.KindTimeout, component,
				"race abandoned before any arm finished", ctx.Err())
		}
	}

	return nil, coacherr.Wrap(coacherr.KindRaceInvalid, component,
		fmt.Sprintf("no arm produced a valid answer (last failure from %s)", lastLabel),
		lastErr)
}
