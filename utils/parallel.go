// Package utils contains the worker fan-out shared by undistortion map builds and batched triangulation.
package utils

import (
	"context"
	"runtime"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
)

// ParallelFactor controls the default level of parallelization. This might be useful
// to set in tests where too much parallelism actually slows tests down in
// aggregate.
var ParallelFactor = runtime.GOMAXPROCS(0)

func init() {
	if ParallelFactor <= 0 {
		ParallelFactor = 1
	}
}

type (
	// BeforeParallelGroupWorkFunc executes before any work starts with the calculated number of groups.
	BeforeParallelGroupWorkFunc func(numGroups int)
	// MemberWorkFunc runs for each work item (member) of a group.
	MemberWorkFunc func(memberNum, workNum int)
	// GroupWorkDoneFunc runs when a single group's work is done; helpful for merge stages.
	GroupWorkDoneFunc func()
	// GroupWorkFunc runs to determine what work members should do, if any.
	GroupWorkFunc func(groupNum, groupSize, from, to int) (MemberWorkFunc, GroupWorkDoneFunc)
)

// NumGroups returns how many contiguous groups GroupWorkParallel uses for the given
// thread count and amount of work.
func NumGroups(threads, totalSize int) int {
	if threads <= 0 {
		threads = ParallelFactor
	}
	if totalSize < threads {
		return totalSize
	}
	return threads
}

// GroupWorkParallel splits [0, totalSize) into one contiguous range per worker and runs
// every range on its own goroutine. A threads value <= 0 uses ParallelFactor. The last group
// takes the remainder. Panics inside a group are recovered and returned as errors; the
// context is checked before a group starts.
func GroupWorkParallel(
	ctx context.Context,
	threads, totalSize int,
	before BeforeParallelGroupWorkFunc,
	groupWork GroupWorkFunc,
) error {
	numGroups := NumGroups(threads, totalSize)
	if before != nil {
		before(numGroups)
	}
	if numGroups == 0 {
		return nil
	}
	groupSize := totalSize / numGroups
	extra := totalSize % numGroups

	var (
		wait    sync.WaitGroup
		errMu   sync.Mutex
		errOut  error
		storeFn = func(err error) {
			errMu.Lock()
			errOut = multierr.Combine(errOut, err)
			errMu.Unlock()
		}
	)
	wait.Add(numGroups)
	for groupNum := 0; groupNum < numGroups; groupNum++ {
		groupNumCopy := groupNum
		utils.PanicCapturingGo(func() {
			defer wait.Done()
			defer func() {
				if thePanic := recover(); thePanic != nil {
					storeFn(errors.Errorf("panic in parallel group %d: %v", groupNumCopy, thePanic))
				}
			}()
			if err := ctx.Err(); err != nil {
				storeFn(err)
				return
			}
			groupNum := groupNumCopy

			thisGroupSize := groupSize
			thisExtra := 0
			if groupNum == (numGroups - 1) {
				thisExtra = extra
				thisGroupSize += thisExtra
			}
			from := groupSize * groupNum
			to := (groupSize * (groupNum + 1)) + thisExtra
			memberWork, groupWorkDone := groupWork(groupNum, thisGroupSize, from, to)
			if memberWork != nil {
				memberNum := 0
				for workNum := from; workNum < to; workNum++ {
					memberWork(memberNum, workNum)
					memberNum++
				}
			}
			if groupWorkDone != nil {
				groupWorkDone()
			}
		})
	}
	wait.Wait()
	return errOut
}
