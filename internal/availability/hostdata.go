package availability

import (
	"encoding/json"
	"fmt"
)

type hostDataPayload struct {
	HostData []HostData `json:"host data"`
}

// MarshalHostData encodes host availability as {"host data":[...]}.
func MarshalHostData(hosts []HostData) ([]byte, error) {
	if hosts == nil {
		hosts = []HostData{}
	}
	data, err := json.Marshal(hostDataPayload{HostData: hosts})
	if err != nil {
		return nil, fmt.Errorf("failed to encode host data: %w", err)
	}
	return data, nil
}

// UnmarshalHostData decodes a payload produced by MarshalHostData.
func UnmarshalHostData(data []byte) ([]HostData, error) {
	var payload hostDataPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode host data: %w", err)
	}
	return payload.HostData, nil
}

// HostDataMessage builds a CodeActiveHostData message for hosts.
func HostDataMessage(hosts []HostData) (Message, error) {
	data, err := MarshalHostData(hosts)
	if err != nil {
		return Message{}, err
	}
	return Message{Code: CodeActiveHostData, Data: data}, nil
}
