// SPDX-License-Identifier: Apache-2.0

package core

import "path"

const (
	DefaultFilePerm = 0755

	ToolName = "stager"
)

var (
	StagerHomeDir = "/opt/stager"
	StateDir      = path.Join(StagerHomeDir, "state")
	LogsDir       = path.Join(StagerHomeDir, "logs")
	LockFile      = path.Join(StagerHomeDir, "stager.lock")
)
