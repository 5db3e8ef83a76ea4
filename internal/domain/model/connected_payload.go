package model

// ServerVersion is reported to stream sessions on handshake.
const ServerVersion = "0.1.0"

// ConnectedPayload is the first frame a stream session receives.
type ConnectedPayload struct {
	Ok            bool   `json:"ok"`
	ConnectionID  string `json:"connection_id"`
	ServerVersion string `json:"server_version"`
}
