package orchestrator

import (
	"github.com/maastricht-university/edmo-capture/capture"
	"github.com/maastricht-university/edmo-capture/clients"
	"github.com/maastricht-university/edmo-capture/recording"
)

// Status is a point-in-time view of a session.
type Status struct {
	Session   string             `json:"session"`
	Camera    bool               `json:"camera"`
	Tracking  bool               `json:"tracking"`
	Recording recording.State    `json:"recording"`
	Closed    bool               `json:"closed"`
	Frame     *capture.Result    `json:"frame,omitempty"`
	Audio     *clients.AudioResp `json:"audio,omitempty"`
}
