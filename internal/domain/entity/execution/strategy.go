package execution

// StrategyMeta describes a registered strategy for external readers. It is
// kept in the shared state mirror, never consumed by the engine itself.
type StrategyMeta struct {
	StrategyID  string   `json:"strategy_id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Symbols     []string `json:"symbols"`
	Timeframes  []string `json:"timeframes"`
	IsActive    bool     `json:"is_active"`
}
