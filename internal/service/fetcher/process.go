package fetcher

import (
	"errors"
	"os"

	"github.com/mitchellh/go-ps"
)

// terminateProcesses kills running processes whose executable name is listed.
func terminateProcesses(names []string) error {
	wanted := sliceToSet(names)

	processList, err := ps.Processes()
	if err != nil {
		return err
	}

	thisProcessID := os.Getpid()

	for _, process := range processList {
		if process.Pid() == thisProcessID {
			continue
		}

		if _, found := wanted[process.Executable()]; !found {
			continue
		}

		runningProcess, err := os.FindProcess(process.Pid())
		if err != nil {
			return err
		}

		if err := runningProcess.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return err
		}
	}

	return nil
}

// sliceToSet converts a slice to a set for quick lookups.
func sliceToSet[T comparable](elements []T) map[T]struct{} {
	result := make(map[T]struct{}, len(elements))
	for _, value := range elements {
		result[value] = struct{}{}
	}

	return result
}
