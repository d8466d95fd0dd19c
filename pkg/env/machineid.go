// Package env provides host identity used to name devices.
package env

import (
	"os"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
)

// AppID scopes ProtectedID.
const AppID = "taskcore"

// MachineID retrieves an ID identifying the machine, hashed with AppID so
// the raw machine ID is never published. The hostname is used when the
// platform has no machine ID.
func MachineID() string {
	id, err := machineid.ProtectedID(AppID)
	if err == nil {
		return id[:16]
	}
	glog.Warningf("machine id unavailable: %v", err)
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "unknown"
}
