// Package orchestrator provides options for the orchestrator agent.
package orchestrator

import (
	"fmt"
	"slices"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/dataagent/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// 历史记录存储后端。
const (
	HistoryDataServices = "data-services"
	HistoryDatabase     = "database"
)

// Options contains orchestrator settings.
type Options struct {
	Name        string `json:"name" mapstructure:"name"`
	Description string `json:"description" mapstructure:"description"`
	Version     string `json:"version" mapstructure:"version"`
	// AgentID 写入记忆与历史记录时使用的智能体标识
	AgentID string `json:"agent-id" mapstructure:"agent-id"`

	MaxLoops       int           `json:"max-loops" mapstructure:"max-loops"`
	LoopRetryDelay time.Duration `json:"loop-retry-delay" mapstructure:"loop-retry-delay"`
	TopAgents      int           `json:"top-agents" mapstructure:"top-agents"`
	Debug          bool          `json:"debug" mapstructure:"debug"`

	EnableHistory  bool   `json:"enable-history" mapstructure:"enable-history"`
	HistoryBackend string `json:"history-backend" mapstructure:"history-backend"`
	HistoryLimit   int    `json:"history-limit" mapstructure:"history-limit"`
	MemoryLimit    int    `json:"memory-limit" mapstructure:"memory-limit"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		Name:           "OrchestratorAgent",
		Description:    "plan user questions and dispatch them to expert agents.",
		Version:        "1.0.0",
		AgentID:        "orchestrator",
		MaxLoops:       2,
		LoopRetryDelay: time.Second,
		TopAgents:      5,
		HistoryBackend: HistoryDataServices,
		HistoryLimit:   10,
		MemoryLimit:    10,
	}
}

// AddFlags adds flags to the flagset.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...)
	fs.StringVar(&o.Name, p+"orchestrator.name", o.Name, "Agent name exposed on the agent card.")
	fs.StringVar(&o.Description, p+"orchestrator.description", o.Description, "Agent description exposed on the agent card.")
	fs.StringVar(&o.Version, p+"orchestrator.version", o.Version, "Agent card version.")
	fs.StringVar(&o.AgentID, p+"orchestrator.agent-id", o.AgentID, "Agent id used to scope memory and history.")
	fs.IntVar(&o.MaxLoops, p+"orchestrator.max-loops", o.MaxLoops, "Maximum re-planning attempts after a failed task.")
	fs.DurationVar(&o.LoopRetryDelay, p+"orchestrator.loop-retry-delay", o.LoopRetryDelay, "Delay before executing a re-planned task list.")
	fs.IntVar(&o.TopAgents, p+"orchestrator.top-agents", o.TopAgents, "Number of ranked agents offered to the planner.")
	fs.BoolVar(&o.Debug, p+"orchestrator.debug", o.Debug, "Stream the plan and every expert step to the caller.")
	fs.BoolVar(&o.EnableHistory, p+"orchestrator.enable-history", o.EnableHistory, "Feed conversation history to planning and synthesis.")
	fs.StringVar(&o.HistoryBackend, p+"orchestrator.history-backend", o.HistoryBackend, "History storage: data-services or database.")
	fs.IntVar(&o.HistoryLimit, p+"orchestrator.history-limit", o.HistoryLimit, "History records loaded per request.")
	fs.IntVar(&o.MemoryLimit, p+"orchestrator.memory-limit", o.MemoryLimit, "Memory snippets loaded per request.")
}

// Validate validates the options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}
	var errs []error
	if o.Name == "" {
		errs = append(errs, fmt.Errorf("orchestrator.name must not be empty"))
	}
	if o.MaxLoops < 0 {
		errs = append(errs, fmt.Errorf("orchestrator.max-loops must not be negative"))
	}
	if o.LoopRetryDelay < 0 {
		errs = append(errs, fmt.Errorf("orchestrator.loop-retry-delay must not be negative"))
	}
	if o.TopAgents <= 0 {
		errs = append(errs, fmt.Errorf("orchestrator.top-agents must be positive"))
	}
	if !slices.Contains([]string{HistoryDataServices, HistoryDatabase}, o.HistoryBackend) {
		errs = append(errs, fmt.Errorf("unknown orchestrator.history-backend %q", o.HistoryBackend))
	}
	if o.HistoryLimit <= 0 || o.MemoryLimit <= 0 {
		errs = append(errs, fmt.Errorf("orchestrator history and memory limits must be positive"))
	}
	return errs
}
