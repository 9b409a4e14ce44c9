package solr

import "encoding/json"

// Action is a Collections API action name.
type Action string

const (
	ActionClusterStatus Action = "CLUSTERSTATUS"
	ActionBackup        Action = "BACKUP"
	ActionRestore       Action = "RESTORE"
	ActionRequestStatus Action = "REQUESTSTATUS"
	ActionDeleteStatus  Action = "DELETESTATUS"
)

// State is the state of an async request as reported by REQUESTSTATUS.
type State string

const (
	StateSubmitted State = "submitted"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateNotFound  State = "notfound"
)

// Terminal reports whether no further progress will be reported.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateNotFound:
		return true
	}
	return false
}

// AsyncRequest is a BACKUP or RESTORE submission.
type AsyncRequest struct {
	Action     Action
	Collection string
	Name       string // backup name on the shared location
	Location   string
	Repository string
	RequestID  string
}

// ClusterState is the part of CLUSTERSTATUS the tool reads.
type ClusterState struct {
	Collections []string // sorted
	LiveNodes   []string
}

// Status is the result of polling an async request.
type Status struct {
	RequestID string
	State     State
	Msg       string
}

type responseHeader struct {
	Status int `json:"status"`
	QTime  int `json:"QTime"`
}

type errorBody struct {
	Msg  string `json:"msg"`
	Code int    `json:"code"`
}

type statusBody struct {
	State string `json:"state"`
	Msg   string `json:"msg"`
}

type exceptionBody struct {
	Msg     string `json:"msg"`
	RspCode int    `json:"rspCode"`
}

type clusterBody struct {
	Collections map[string]struct {
		ConfigName string `json:"configName"`
	} `json:"collections"`
	LiveNodes []string `json:"live_nodes"`
}

// envelope covers the fields of every response this client reads. Status is
// an object for REQUESTSTATUS but a plain string for DELETESTATUS.
type envelope struct {
	ResponseHeader responseHeader  `json:"responseHeader"`
	Error          *errorBody      `json:"error"`
	Status         json.RawMessage `json:"status"`
	Exception      *exceptionBody  `json:"exception"`
	Cluster        *clusterBody    `json:"cluster"`
}
