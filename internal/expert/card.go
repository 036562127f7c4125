package expert

import (
	"sync"

	"github.com/kart-io/dataagent/internal/pkg/a2a"
	expertopts "github.com/kart-io/dataagent/pkg/options/expert"
)

// Card 维护本专家的名片，技能可在运行时替换。
type Card struct {
	opts *expertopts.Options
	addr func() string

	mu     sync.RWMutex
	skills []a2a.Skill
}

// NewCard creates a Card. addr 返回 HTTP 实际监听地址，AdvertiseURL 为空时用于推导 URL。
func NewCard(opts *expertopts.Options, addr func() string, skills []a2a.Skill) *Card {
	return &Card{opts: opts, addr: addr, skills: skills}
}

// SetSkills 替换技能列表。
func (c *Card) SetSkills(skills []a2a.Skill) {
	c.mu.Lock()
	c.skills = skills
	c.mu.Unlock()
}

// Card 返回当前名片。
func (c *Card) Card() a2a.AgentCard {
	c.mu.RLock()
	skills := append([]a2a.Skill{}, c.skills...)
	c.mu.RUnlock()

	return a2a.AgentCard{
		Name:               c.opts.Name,
		Description:        c.opts.Description,
		URL:                c.URL(),
		Version:            c.opts.Version,
		Skills:             skills,
		Capabilities:       a2a.Capabilities{Streaming: true},
		DefaultInputModes:  []string{"text"},
		DefaultOutputModes: []string{"text"},
	}
}

// URL 返回名片地址，形如 http://host:port/。
func (c *Card) URL() string {
	return a2a.ServiceURL(c.opts.AdvertiseURL, c.addr())
}
