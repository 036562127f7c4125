package expert

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/kart-io/logger"
	"gopkg.in/yaml.v3"

	"github.com/kart-io/dataagent/internal/pkg/a2a"
	"github.com/kart-io/dataagent/pkg/utils/json"
)

const skillsReloadDelay = 500 * time.Millisecond

type skillsFile struct {
	Skills []a2a.Skill `json:"skills" yaml:"skills"`
}

// LoadSkills 读取技能文件。.json 按 JSON 解析，其余按 YAML 解析；
// 文件可以是 {skills: [...]} 或直接是技能列表。文件不存在时返回空列表。
func LoadSkills(path string) ([]a2a.Skill, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		logger.Warnw("Skills file not found, card has no skills", "path", path)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read skills file: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, nil
	}

	unmarshal := yaml.Unmarshal
	if strings.EqualFold(filepath.Ext(path), ".json") {
		unmarshal = json.Unmarshal
	}

	var wrapped skillsFile
	if err := unmarshal(data, &wrapped); err == nil && wrapped.Skills != nil {
		return wrapped.Skills, nil
	}
	var list []a2a.Skill
	if err := unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parse skills file %s: %w", path, err)
	}
	return list, nil
}

// SkillsWatcher 监听技能文件，变化后重新加载并回调 onChange。
// 监听所在目录，编辑器以替换方式保存文件时同样生效。
type SkillsWatcher struct {
	path     string
	onChange func([]a2a.Skill)

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewSkillsWatcher creates a new SkillsWatcher.
func NewSkillsWatcher(path string, onChange func([]a2a.Skill)) *SkillsWatcher {
	return &SkillsWatcher{path: path, onChange: onChange}
}

// Name 实现 server.Runnable。
func (w *SkillsWatcher) Name() string { return "skills-watcher" }

// Start 实现 server.Runnable。
func (w *SkillsWatcher) Start(context.Context) error {
	if w.path == "" {
		return nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		_ = fw.Close()
		return fmt.Errorf("watch skills directory: %w", err)
	}
	w.watcher = fw
	w.done = make(chan struct{})
	w.wg.Add(1)
	go w.loop()
	logger.Infow("Skills watcher started", "path", w.path)
	return nil
}

// Stop 实现 server.Runnable。
func (w *SkillsWatcher) Stop(context.Context) error {
	if w.watcher == nil {
		return nil
	}
	close(w.done)
	err := w.watcher.Close()
	w.wg.Wait()
	w.watcher = nil
	return err
}

func (w *SkillsWatcher) loop() {
	defer w.wg.Done()
	target := filepath.Clean(w.path)

	// 合并短时间内的多次写入
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			timer.Reset(skillsReloadDelay)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warnw("Skills watcher error", "path", w.path, "error", err)
		case <-timer.C:
			skills, err := LoadSkills(w.path)
			if err != nil {
				logger.Errorw("Reload skills failed", "path", w.path, "error", err)
				continue
			}
			logger.Infow("Skills file changed", "path", w.path, "skills", len(skills))
			w.onChange(skills)
		}
	}
}
