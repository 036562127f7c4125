package expert

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/dataagent/internal/pkg/a2a"
	expertopts "github.com/kart-io/dataagent/pkg/options/expert"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadSkills(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		file    string
		content string
		want    []string
		wantErr bool
	}{
		{
			name: "yaml wrapped",
			file: "skills.yaml",
			content: `skills:
  - id: orders
    name: Order analytics
    description: Answers questions about orders
    tags: [sales]
    examples:
      - How many orders were placed yesterday?
`,
			want: []string{"orders"},
		},
		{
			name:    "yaml list",
			file:    "list.yaml",
			content: "- id: a\n  name: A\n- id: b\n  name: B\n",
			want:    []string{"a", "b"},
		},
		{
			name:    "json wrapped",
			file:    "skills.json",
			content: `{"skills":[{"id":"revenue","name":"Revenue","description":"sums revenue"}]}`,
			want:    []string{"revenue"},
		},
		{
			name:    "json list",
			file:    "list.json",
			content: `[{"id":"x","name":"X"}]`,
			want:    []string{"x"},
		},
		{name: "empty", file: "empty.yaml", content: "  \n"},
		{name: "invalid", file: "bad.json", content: `{"skills": 1}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			writeFile(t, path, tt.content)

			skills, err := LoadSkills(path)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			ids := make([]string, 0, len(skills))
			for _, s := range skills {
				ids = append(ids, s.ID)
			}
			if len(tt.want) == 0 {
				assert.Empty(t, ids)
				return
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestLoadSkillsFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "skills.yaml")
	writeFile(t, path, `skills:
  - id: orders
    name: Order analytics
    description: Answers questions about orders
    tags: [sales, orders]
    examples: ["How many orders?"]
`)
	skills, err := LoadSkills(path)
	require.NoError(t, err)
	assert.Equal(t, []a2a.Skill{{
		ID:          "orders",
		Name:        "Order analytics",
		Description: "Answers questions about orders",
		Tags:        []string{"sales", "orders"},
		Examples:    []string{"How many orders?"},
	}}, skills)
}

func TestLoadSkillsMissingFile(t *testing.T) {
	skills, err := LoadSkills(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Nil(t, skills)

	skills, err = LoadSkills("")
	require.NoError(t, err)
	assert.Nil(t, skills)
}

func TestSkillsWatcherReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "skills.yaml")
	writeFile(t, path, "- id: a\n  name: A\n")

	var (
		mu  sync.Mutex
		got []a2a.Skill
	)
	w := NewSkillsWatcher(path, func(skills []a2a.Skill) {
		mu.Lock()
		got = skills
		mu.Unlock()
	})
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { _ = w.Stop(context.Background()) })

	writeFile(t, path, "- id: a\n  name: A\n- id: b\n  name: B\n")

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, 5*time.Second, 50*time.Millisecond)
}

func TestCardURL(t *testing.T) {
	opts := expertopts.NewOptions()
	opts.Name = "OrdersAgent"

	card := NewCard(opts, func() string { return "10.0.0.5:20002" }, nil)
	assert.Equal(t, "http://10.0.0.5:20002/", card.URL())

	opts.AdvertiseURL = "http://orders.internal:20002"
	assert.Equal(t, "http://orders.internal:20002/", card.URL())

	opts.AdvertiseURL = ""
	card = NewCard(opts, func() string { return "[::]:20002" }, nil)
	assert.NotContains(t, card.URL(), "[::]")
	assert.Contains(t, card.URL(), ":20002/")
}

func TestCardSkillsReplaced(t *testing.T) {
	opts := expertopts.NewOptions()
	opts.Name = "OrdersAgent"
	card := NewCard(opts, func() string { return "127.0.0.1:1" }, []a2a.Skill{{ID: "a"}})

	c := card.Card()
	assert.Equal(t, "OrdersAgent", c.Name)
	assert.True(t, c.Capabilities.Streaming)
	assert.Len(t, c.Skills, 1)

	card.SetSkills([]a2a.Skill{{ID: "a"}, {ID: "b"}})
	assert.Len(t, card.Card().Skills, 2)
	assert.Len(t, c.Skills, 1)
}
