// Package expert provides options for expert agents.
package expert

import (
	"fmt"
	"slices"

	"github.com/spf13/pflag"

	"github.com/kart-io/dataagent/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// SQL 处理模式。
const (
	ModeDictionary = "dictionary"
	ModeDirect     = "direct"
)

// Options contains expert agent settings.
type Options struct {
	Name        string `json:"name" mapstructure:"name"`
	Description string `json:"description" mapstructure:"description"`
	Version     string `json:"version" mapstructure:"version"`
	// AdvertiseURL 注册到名片中的访问地址，为空时由 http 监听地址推导
	AdvertiseURL string `json:"advertise-url" mapstructure:"advertise-url"`
	SkillsFile   string `json:"skills-file" mapstructure:"skills-file"`

	Namespace       string   `json:"namespace" mapstructure:"namespace"`
	DataDescriptors []string `json:"data-descriptors" mapstructure:"data-descriptors"`
	DescriptorTypes string   `json:"descriptor-types" mapstructure:"descriptor-types"`

	MaxSteps           int    `json:"max-steps" mapstructure:"max-steps"`
	DuplicateThreshold int    `json:"duplicate-threshold" mapstructure:"duplicate-threshold"`
	SQLProcessMode     string `json:"sql-process-mode" mapstructure:"sql-process-mode"`
	DimensionWorkers   int    `json:"dimension-workers" mapstructure:"dimension-workers"`
	ParseAttempts      int    `json:"parse-attempts" mapstructure:"parse-attempts"`
	// DirectReturn 直接返回检索到的知识，不经过 LLM 推理
	DirectReturn bool `json:"direct-return" mapstructure:"direct-return"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		Name:               "ExpertAgent",
		Description:        "you are an smart agent, answer user question.",
		Version:            "1.0.0",
		SkillsFile:         "skills.yaml",
		MaxSteps:           5,
		DuplicateThreshold: 2,
		SQLProcessMode:     ModeDictionary,
		DimensionWorkers:   10,
		ParseAttempts:      3,
	}
}

// DictionaryMode 报告是否在生成 SQL 前枚举维度取值。
func (o *Options) DictionaryMode() bool {
	return o.SQLProcessMode == ModeDictionary
}

// AddFlags adds flags to the flagset.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...)
	fs.StringVar(&o.Name, p+"expert.name", o.Name, "Agent name registered in the registry.")
	fs.StringVar(&o.Description, p+"expert.description", o.Description, "Agent description registered in the registry.")
	fs.StringVar(&o.Version, p+"expert.version", o.Version, "Agent card version.")
	fs.StringVar(&o.AdvertiseURL, p+"expert.advertise-url", o.AdvertiseURL, "URL other services use to reach this agent, e.g. http://10.0.0.5:20002/.")
	fs.StringVar(&o.SkillsFile, p+"expert.skills-file", o.SkillsFile, "Skills file (yaml or json), watched for changes.")
	fs.StringVar(&o.Namespace, p+"expert.namespace", o.Namespace, "Data descriptor namespace.")
	fs.StringSliceVar(&o.DataDescriptors, p+"expert.data-descriptors", o.DataDescriptors, "Data descriptor names whose collections are searched.")
	fs.StringVar(&o.DescriptorTypes, p+"expert.descriptor-types", o.DescriptorTypes, "Descriptor type entries separated by ';'.")
	fs.IntVar(&o.MaxSteps, p+"expert.max-steps", o.MaxSteps, "Maximum loop steps per invocation.")
	fs.IntVar(&o.DuplicateThreshold, p+"expert.duplicate-threshold", o.DuplicateThreshold, "Repeated answers before the change-strategy prompt is injected.")
	fs.StringVar(&o.SQLProcessMode, p+"expert.sql-process-mode", o.SQLProcessMode, "SQL generation mode: dictionary or direct.")
	fs.IntVar(&o.DimensionWorkers, p+"expert.dimension-workers", o.DimensionWorkers, "Concurrent dimension enumeration queries.")
	fs.IntVar(&o.ParseAttempts, p+"expert.parse-attempts", o.ParseAttempts, "LLM calls before an unparseable answer is given up.")
	fs.BoolVar(&o.DirectReturn, p+"expert.direct-return", o.DirectReturn, "Return retrieved knowledge without LLM reasoning.")
}

// Validate validates the options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}
	var errs []error
	if o.Name == "" {
		errs = append(errs, fmt.Errorf("expert.name must not be empty"))
	}
	if o.DescriptorTypes == "" {
		errs = append(errs, fmt.Errorf("expert.descriptor-types must not be empty"))
	}
	if o.MaxSteps <= 0 {
		errs = append(errs, fmt.Errorf("expert.max-steps must be positive"))
	}
	if o.DuplicateThreshold <= 0 {
		errs = append(errs, fmt.Errorf("expert.duplicate-threshold must be positive"))
	}
	if !slices.Contains([]string{ModeDictionary, ModeDirect}, o.SQLProcessMode) {
		errs = append(errs, fmt.Errorf("unknown expert.sql-process-mode %q", o.SQLProcessMode))
	}
	if o.DimensionWorkers <= 0 {
		errs = append(errs, fmt.Errorf("expert.dimension-workers must be positive"))
	}
	if o.ParseAttempts <= 0 {
		errs = append(errs, fmt.Errorf("expert.parse-attempts must be positive"))
	}
	return errs
}
