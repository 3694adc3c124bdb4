// SPDX-FileCopyrightText: 2026 The pathprobe authors
//
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitTracing(t *testing.T) {
	t.Run("Disabled is a noop", func(t *testing.T) {
		shutdown, err := InitTracing(context.Background(), Config{}, "v0.1.0")
		require.NoError(t, err)
		assert.NoError(t, shutdown(context.Background()))
	})

	t.Run("Enabled installs a provider", func(t *testing.T) {
		shutdown, err := InitTracing(context.Background(), Config{Enabled: true}, "v0.1.0")
		require.NoError(t, err)
		require.NotNil(t, shutdown)
		assert.NoError(t, shutdown(context.Background()))
	})
}
