package history

// DeviceSample is one persisted device reading.
type DeviceSample struct {
	DeviceID  string   `json:"deviceId"`
	Value     *float64 `json:"value"`
	Status    string   `json:"status"`
	Timestamp int64    `json:"timestamp"`
}

// SystemSample is one persisted fleet health reading.
type SystemSample struct {
	CPU       float64 `json:"cpu"`
	Memory    float64 `json:"memory"`
	Storage   float64 `json:"storage"`
	Network   string  `json:"network"`
	Timestamp int64   `json:"timestamp"`
}
