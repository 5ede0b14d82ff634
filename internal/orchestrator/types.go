package orchestrator

import "encoding/json"

// odataList is the standard OData response envelope for collection queries.
type odataList struct {
	NextLink string            `json:"@odata.nextLink"`
	Value    []json.RawMessage `json:"value"`
}

// Folder is an organization unit. Folder-scoped API calls carry its ID in
// the X-UIPATH-OrganizationUnitId header.
type Folder struct {
	ID                 int64  `json:"Id"`
	DisplayName        string `json:"DisplayName"`
	FullyQualifiedName string `json:"FullyQualifiedName"`
}

// Release binds a published process package to a folder. Its Key is what
// StartJobs consumes.
type Release struct {
	ID         int64  `json:"Id"`
	Key        string `json:"Key"`
	Name       string `json:"Name"`
	ProcessKey string `json:"ProcessKey"`
}

// Robot is a registered execution agent.
type Robot struct {
	ID   int64  `json:"Id"`
	Name string `json:"Name"`
	Type string `json:"Type"`
}

// Machine is a registered host robots run on.
type Machine struct {
	ID   int64  `json:"Id"`
	Name string `json:"Name"`
}

// Job states reported by the Orchestrator.
const (
	JobStatePending     = "Pending"
	JobStateRunning     = "Running"
	JobStateStopping    = "Stopping"
	JobStateTerminating = "Terminating"
	JobStateSuccessful  = "Successful"
	JobStateFaulted     = "Faulted"
	JobStateStopped     = "Stopped"
)

// Job is one execution of a release.
type Job struct {
	ID          int64  `json:"Id"`
	Key         string `json:"Key"`
	State       string `json:"State"`
	ReleaseName string `json:"ReleaseName"`
	Info        string `json:"Info"`
	StartTime   string `json:"StartTime"`
	EndTime     string `json:"EndTime"`
}

// Terminal reports whether the job has reached a final state.
func (j Job) Terminal() bool {
	switch j.State {
	case JobStateSuccessful, JobStateFaulted, JobStateStopped:
		return true
	}
	return false
}

// Succeeded reports whether the job finished successfully.
func (j Job) Succeeded() bool {
	return j.State == JobStateSuccessful
}

// Target-selection strategies understood by StartJobs.
const (
	StrategySpecific        = "Specific"
	StrategyModernJobsCount = "ModernJobsCount"
)

// MachineRobot pairs a robot with the machine it must run on.
type MachineRobot struct {
	MachineID int64 `json:"MachineId"`
	RobotID   int64 `json:"RobotId"`
}

// StartInfo is the payload of a start-job request.
type StartInfo struct {
	ReleaseKey     string         `json:"ReleaseKey"`
	Strategy       string         `json:"Strategy"`
	JobsCount      int            `json:"JobsCount,omitempty"`
	RobotIDs       []int64        `json:"RobotIds,omitempty"`
	MachineRobots  []MachineRobot `json:"MachineRobots,omitempty"`
	JobPriority    string         `json:"JobPriority,omitempty"`
	InputArguments string         `json:"InputArguments,omitempty"`
}

type startJobsRequest struct {
	StartInfo StartInfo `json:"startInfo"`
}
