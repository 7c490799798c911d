package types

// ListenerInfo holds the runtime listening info of a listener.
type ListenerInfo struct {
	Address string `json:"address"`
	Port    int    `json:"port"`
}
