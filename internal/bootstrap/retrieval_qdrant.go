//go:build qdrant

package bootstrap

import _ "github.com/kart-io/dataagent/internal/pkg/retrieval/qdrant"
