package model

// Telemetry is an out-of-band snapshot of the user's machine captured around the event.
type Telemetry struct {
	MemoryPressure bool    `json:"memoryPressure"`
	CPULoad        float64 `json:"cpuLoad,omitempty"`
	Activity       Session `json:"activity"`
	LastSession    Session `json:"lastSession"`
}

// Session describes a tracked foreground application run (gaming, coding).
type Session struct {
	Type            string `json:"type,omitempty"`
	Name            string `json:"name,omitempty"`
	Status          string `json:"status,omitempty"`
	DurationMinutes int    `json:"durationMinutes,omitempty"`
	MinutesAgo      int    `json:"minutesAgo,omitempty"`
}

// Active reports whether the session is still running.
func (s Session) Active() bool { return s.Status == "active" && s.Name != "" }
