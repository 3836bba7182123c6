package preflight

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckAPIKey verifies that a required API credential is configured.
func CheckAPIKey(name, key string) Result {
	if strings.TrimSpace(key) == "" {
		return Result{Name: name, Detail: "missing (set steam.api_key or the STEAM_API_KEY environment variable)"}
	}
	return Result{Name: name, Passed: true, Detail: "configured"}
}

// CheckRateBudget verifies that a rate limiter budget can make progress.
func CheckRateBudget(name string, budget, windowSeconds int) Result {
	if budget < 1 {
		return Result{Name: name, Detail: fmt.Sprintf("budget %d (must allow at least one request)", budget)}
	}
	if windowSeconds < 1 {
		return Result{Name: name, Detail: fmt.Sprintf("window %ds (must span at least one second)", windowSeconds)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%d requests per %ds", budget, windowSeconds)}
}
